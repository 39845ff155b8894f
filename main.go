package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"

	"quilt/packages/config"
	"quilt/packages/middleware"
	"quilt/packages/replica"
	"quilt/packages/store"
	"quilt/packages/user"
)

func main() {
	configPath := flag.String("config", "quilt.toml", "path to the TOML configuration")
	serve := flag.Bool("serve", false, "accept websocket syncs for the default replica on network.listen")
	history := flag.String("history", "", "readline history file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalln(err)
	}
	logger := cfg.Logger()

	st, err := store.Open(cfg.Store.Path, cfg.Store.Bucket, logger)
	if err != nil {
		log.Fatalln(err)
	}
	defer st.Close()

	var opts []middleware.NetworkOption
	opts = append(opts, middleware.WithNetworkLogger(logger))
	if cfg.Network.Shuffle {
		opts = append(opts, middleware.WithShuffle(rand.New(rand.NewSource(cfg.Network.Seed))))
	}
	session := user.NewSession(os.Stdout, st, middleware.NewNetwork(opts...), logger)

	id := cfg.ReplicaID()
	r, err := st.Load(id, replica.WithLogger(logger))
	if errors.Is(err, store.ErrNotFound) {
		r = replica.NewReplica(id, replica.WithLogger(logger))
	} else if err != nil {
		log.Fatalln(err)
	}
	session.Add(cfg.Replica.Name, r)
	fmt.Printf("replica %s (%s), type help for commands\n", cfg.Replica.Name, id)

	if *serve {
		if _, err := session.Execute("serve " + cfg.Replica.Name + " " + cfg.Network.Listen); err != nil {
			log.Fatalln(err)
		}
	}

	if err := user.Run(session, *history); err != nil {
		log.Fatalln(err)
	}
}
