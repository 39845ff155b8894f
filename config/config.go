// Package config loads the settings of the quilt command from TOML.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"quilt/packages/communication"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalid is returned by Validate for settings that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Replica ReplicaConfig `toml:"replica"`
	Store   StoreConfig   `toml:"store"`
	Log     LogConfig     `toml:"log"`
	Network NetworkConfig `toml:"network"`
}

type ReplicaConfig struct {
	// ID is the UUID of the default replica; empty means a fresh random id.
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

type StoreConfig struct {
	Path   string `toml:"path"`
	Bucket string `toml:"bucket"`
}

type LogConfig struct {
	Verbose bool   `toml:"verbose"`
	Prefix  string `toml:"prefix"`
}

type NetworkConfig struct {
	Listen  string `toml:"listen"`
	Shuffle bool   `toml:"shuffle"`
	Seed    int64  `toml:"seed"`
}

func Default() Config {
	return Config{
		Replica: ReplicaConfig{Name: "local"},
		Store:   StoreConfig{Path: "quilt.db", Bucket: "replicas"},
		Log:     LogConfig{Prefix: "quilt "},
		Network: NetworkConfig{Listen: "localhost:8080"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Replica.ID != "" {
		if _, err := communication.ParseReplicaID(c.Replica.ID); err != nil {
			return fmt.Errorf("%w: replica.id: %v", ErrInvalid, err)
		}
	}
	if c.Replica.Name == "" {
		return fmt.Errorf("%w: replica.name is empty", ErrInvalid)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is empty", ErrInvalid)
	}
	return nil
}

// ReplicaID returns the configured replica id or a fresh one
func (c Config) ReplicaID() communication.ReplicaID {
	if c.Replica.ID == "" {
		return communication.NewReplicaID()
	}
	id, err := communication.ParseReplicaID(c.Replica.ID)
	if err != nil {
		return communication.NewReplicaID()
	}
	return id
}

// Logger builds the logger replicas and collaborators write to
func (c Config) Logger() *log.Logger {
	var w io.Writer = io.Discard
	if c.Log.Verbose {
		w = os.Stderr
	}
	return log.New(w, c.Log.Prefix, log.LstdFlags)
}
