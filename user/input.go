package user

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("new"),
	readline.PcItem("insert"),
	readline.PcItem("remove"),
	readline.PcItem("set"),
	readline.PcItem("mark", readline.PcItem("bold"), readline.PcItem("italic"), readline.PcItem("underline")),
	readline.PcItem("unmark", readline.PcItem("bold"), readline.PcItem("italic"), readline.PcItem("underline")),
	readline.PcItem("merge"),
	readline.PcItem("broadcast"),
	readline.PcItem("deliver"),
	readline.PcItem("text"),
	readline.PcItem("marks"),
	readline.PcItem("log"),
	readline.PcItem("dot"),
	readline.PcItem("list"),
	readline.PcItem("save"),
	readline.PcItem("load"),
	readline.PcItem("serve"),
	readline.PcItem("discover"),
	readline.PcItem("sync"),
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

// Run reads commands until quit or end of input
func Run(s *Session, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "quilt> ",
		HistoryFile:     historyFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	defer s.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}

		quit, err := s.Execute(strings.TrimSpace(line))
		if err != nil {
			fmt.Fprintln(rl.Stderr(), "error:", err)
		}
		if quit {
			return nil
		}
	}
}
