package user

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"quilt/packages/communication"
	"quilt/packages/middleware"
	"quilt/packages/replica"
	"quilt/packages/store"

	"github.com/grandcat/zeroconf"
)

var (
	// ErrUsage is returned for malformed commands.
	ErrUsage = errors.New("usage")

	// ErrNoReplica is returned when a command names a replica that does not exist.
	ErrNoReplica = errors.New("no such replica")

	// ErrNoStore is returned by save and load when no store is configured.
	ErrNoStore = errors.New("no store configured")
)

// Session holds the named replicas driven by the interactive input
type Session struct {
	peers   map[string]*middleware.Peer
	network *middleware.Network
	store   *store.Store
	logger  *log.Logger
	out     io.Writer
	servers []*http.Server
	mdns    []*zeroconf.Server
}

// NewSession creates an empty session. st may be nil, in which case save and load fail.
func NewSession(out io.Writer, st *store.Store, network *middleware.Network, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	if network == nil {
		network = middleware.NewNetwork(middleware.WithNetworkLogger(logger))
	}
	return &Session{
		peers:   make(map[string]*middleware.Peer),
		network: network,
		store:   st,
		logger:  logger,
		out:     out,
	}
}

// Add registers a replica under name and joins it to the session's network
func (s *Session) Add(name string, r *replica.Replica) {
	s.peers[name] = middleware.NewPeer(r, s.logger)
	s.network.Join(r)
}

// Names returns the replica names in sorted order
func (s *Session) Names() []string {
	names := make([]string, 0, len(s.peers))
	for name := range s.peers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Text returns the text of the named replica
func (s *Session) Text(name string) (string, error) {
	p, err := s.peer(name)
	if err != nil {
		return "", err
	}
	var text string
	p.Do(func(r *replica.Replica) { text = r.Text() })
	return text, nil
}

// Close stops every server started with serve
func (s *Session) Close() {
	for _, m := range s.mdns {
		m.Shutdown()
	}
	for _, srv := range s.servers {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = srv.Shutdown(ctx)
		cancel()
	}
	s.servers, s.mdns = nil, nil
}

func (s *Session) peer(name string) (*middleware.Peer, error) {
	p, ok := s.peers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoReplica, name)
	}
	return p, nil
}

const help = `commands:
  new <name> [uuid]                  create a replica
  insert <name> <index> <text>       insert text at index
  remove <name> <index> [count]      remove characters starting at index
  set <name> <text>                  replace the whole text
  mark <name> <type> <from> <to>     add bold, italic or underline over from..to
  unmark <name> <type> <from> <to>   remove a mark added over exactly from..to
  merge <dst> <src>                  merge src's log into dst
  broadcast <name>                   queue name's log for every other replica
  deliver <name>                     merge the logs queued for name
  text <name>                        print the text
  marks <name>                       print formatted runs
  log <name>                         print the operation log
  dot <name> <file>                  write the causal graph as DOT
  list                               list replicas
  save <name>                        store a replica
  load <name> <uuid>                 load a stored replica
  serve <name> <addr>                accept websocket syncs on addr/sync
  discover                           list replicas served on the local network
  sync <name> <url>                  sync with a served replica
  quit`

// Execute runs one command line. It reports whether the session should end.
func (s *Session) Execute(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(s.out, help)
		return false, nil
	case "list":
		for _, name := range s.Names() {
			s.peers[name].Do(func(r *replica.Replica) {
				fmt.Fprintf(s.out, "%s %s %q\n", name, r.GetID(), r.Text())
			})
		}
		return false, nil
	case "new":
		return false, s.newReplica(args)
	case "merge":
		return false, s.merge(args)
	case "load":
		return false, s.load(args)
	case "discover":
		endpoints, err := middleware.Discover(context.Background(), 2*time.Second)
		if err != nil {
			return false, err
		}
		for _, e := range endpoints {
			fmt.Fprintf(s.out, "%s %s %s\n", e.Name, e.ID, e.URL)
		}
		return false, nil
	}

	if len(args) == 0 {
		return false, fmt.Errorf("%w: %s <name> ...", ErrUsage, cmd)
	}
	p, err := s.peer(args[0])
	if err != nil {
		return false, err
	}
	args = args[1:]

	switch cmd {
	case "insert":
		if len(args) < 2 {
			return false, fmt.Errorf("%w: insert <name> <index> <text>", ErrUsage)
		}
		at, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("%w: index %q", ErrUsage, args[0])
		}
		text := restOfLine(line, 3)
		p.Do(func(r *replica.Replica) { err = r.InsertText(text, at) })
		return false, err
	case "remove":
		return false, s.remove(p, args)
	case "set":
		text := restOfLine(line, 2)
		p.Do(func(r *replica.Replica) { r.SetText(text) })
		return false, nil
	case "mark", "unmark":
		return false, s.mark(p, cmd, args)
	case "text":
		p.Do(func(r *replica.Replica) { fmt.Fprintf(s.out, "%q\n", r.Text()) })
		return false, nil
	case "marks":
		p.Do(func(r *replica.Replica) {
			for _, run := range r.Runs() {
				fmt.Fprintf(s.out, "%d %q %v\n", run.Start, run.Text, run.Marks)
			}
		})
		return false, nil
	case "log":
		p.Do(func(r *replica.Replica) {
			for _, op := range r.Log() {
				fmt.Fprintln(s.out, op)
			}
		})
		return false, nil
	case "dot":
		return false, s.dot(p, args)
	case "broadcast":
		p.Do(func(r *replica.Replica) { err = s.network.Broadcast(r.GetID()) })
		return false, err
	case "deliver":
		var n int
		p.Do(func(r *replica.Replica) { n, err = s.network.Deliver(r.GetID()) })
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "delivered %d messages\n", n)
		return false, nil
	case "save":
		if s.store == nil {
			return false, ErrNoStore
		}
		p.Do(func(r *replica.Replica) { err = s.store.Save(r) })
		return false, err
	case "serve":
		return false, s.serve(fields[1], p, args)
	case "sync":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: sync <name> <url>", ErrUsage)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		res, err := p.Sync(ctx, args[0])
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "merged %d operations, discarded %d\n", res.Added, res.Discarded)
		return false, nil
	}
	return false, fmt.Errorf("%w: unknown command %q, try help", ErrUsage, cmd)
}

func (s *Session) newReplica(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: new <name> [uuid]", ErrUsage)
	}
	if _, exists := s.peers[args[0]]; exists {
		return fmt.Errorf("%w: replica %s exists", ErrUsage, args[0])
	}
	id := communication.NewReplicaID()
	if len(args) == 2 {
		var err error
		if id, err = communication.ParseReplicaID(args[1]); err != nil {
			return err
		}
	}
	s.Add(args[0], replica.NewReplica(id, replica.WithLogger(s.logger)))
	return nil
}

func (s *Session) merge(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: merge <dst> <src>", ErrUsage)
	}
	dst, err := s.peer(args[0])
	if err != nil {
		return err
	}
	src, err := s.peer(args[1])
	if err != nil {
		return err
	}
	var snapshot []communication.Operation
	src.Do(func(r *replica.Replica) { snapshot = r.Log() })
	dst.Do(func(r *replica.Replica) {
		res := r.Merge(snapshot)
		fmt.Fprintf(s.out, "merged %d operations, discarded %d\n", res.Added, res.Discarded)
	})
	return nil
}

func (s *Session) remove(p *middleware.Peer, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: remove <name> <index> [count]", ErrUsage)
	}
	at, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: index %q", ErrUsage, args[0])
	}
	count := 1
	if len(args) == 2 {
		if count, err = strconv.Atoi(args[1]); err != nil || count < 1 {
			return fmt.Errorf("%w: count %q", ErrUsage, args[1])
		}
	}
	p.Do(func(r *replica.Replica) { r.RemoveRange(at, at+count) })
	return nil
}

func (s *Session) mark(p *middleware.Peer, cmd string, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: %s <name> <type> <from> <to>", ErrUsage, cmd)
	}
	mark, err := communication.ParseMarkType(args[0])
	if err != nil {
		return err
	}
	from, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: from %q", ErrUsage, args[1])
	}
	to, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("%w: to %q", ErrUsage, args[2])
	}
	p.Do(func(r *replica.Replica) {
		if cmd == "mark" {
			err = r.AddMark(mark, from, to)
		} else {
			err = r.RemoveMark(mark, from, to)
		}
	})
	return err
}

func (s *Session) dot(p *middleware.Peer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: dot <name> <file>", ErrUsage)
	}
	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	p.Do(func(r *replica.Replica) { err = r.OperationLog().WriteDOT(f) })
	return err
}

func (s *Session) load(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: load <name> <uuid>", ErrUsage)
	}
	if s.store == nil {
		return ErrNoStore
	}
	id, err := communication.ParseReplicaID(args[1])
	if err != nil {
		return err
	}
	r, err := s.store.Load(id, replica.WithLogger(s.logger))
	if err != nil {
		return err
	}
	s.Add(args[0], r)
	return nil
}

func (s *Session) serve(name string, p *middleware.Peer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: serve <name> <addr>", ErrUsage)
	}
	srv := &http.Server{Addr: args[0], Handler: p.Router()}
	s.servers = append(s.servers, srv)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Println("serve:", err)
		}
	}()
	fmt.Fprintf(s.out, "serving on ws://%s/sync\n", args[0])

	var id communication.ReplicaID
	p.Do(func(r *replica.Replica) { id = r.GetID() })
	announced, err := middleware.Announce(name, id, args[0])
	if err != nil {
		// the replica is still reachable by url
		s.logger.Println("announce:", err)
		return nil
	}
	s.mdns = append(s.mdns, announced)
	return nil
}

// restOfLine returns line with its first n fields cut off, inner spacing kept
func restOfLine(line string, n int) string {
	rest := strings.TrimLeft(line, " \t")
	for i := 0; i < n; i++ {
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return ""
		}
		rest = strings.TrimLeft(rest[idx:], " \t")
	}
	return rest
}
