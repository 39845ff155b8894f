package middleware

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"quilt/packages/communication"

	"github.com/grandcat/zeroconf"
)

const (
	service = "_quilt._tcp"
	domain  = "local."
)

// Endpoint is a served replica found on the local network
type Endpoint struct {
	Name string
	ID   communication.ReplicaID
	URL  string // websocket sync endpoint
}

// Announce advertises a served replica over mDNS until the returned server is shut down
func Announce(name string, id communication.ReplicaID, addr string) (*zeroconf.Server, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("announce %s: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("announce %s: bad port: %w", addr, err)
	}
	return zeroconf.Register(name, service, domain, port, []string{"id=" + string(id)}, nil)
}

// Discover browses the local network for announced replicas for the given duration
func Discover(ctx context.Context, wait time.Duration) ([]Endpoint, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	found := collect(entries)

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	// the resolver closes entries once ctx is done
	return <-found, nil
}

// collect turns resolved entries into endpoints until entries is closed
func collect(entries <-chan *zeroconf.ServiceEntry) <-chan []Endpoint {
	found := make(chan []Endpoint, 1)
	go func() {
		var endpoints []Endpoint
		for entry := range entries {
			if len(entry.AddrIPv4) == 0 {
				continue
			}
			e := Endpoint{
				Name: entry.Instance,
				URL:  "ws://" + net.JoinHostPort(entry.AddrIPv4[0].String(), strconv.Itoa(entry.Port)) + "/sync",
			}
			for _, txt := range entry.Text {
				if id, ok := strings.CutPrefix(txt, "id="); ok {
					e.ID = communication.ReplicaID(id)
				}
			}
			endpoints = append(endpoints, e)
		}
		found <- endpoints
	}()
	return found
}
