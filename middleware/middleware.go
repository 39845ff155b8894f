package middleware

import (
	"errors"
	"fmt"
	"log"
	"math/rand"

	"quilt/packages/communication"
	"quilt/packages/replica"
)

// ErrUnknownReplica is returned when a replica has not joined the network.
var ErrUnknownReplica = errors.New("unknown replica")

// Network connects replicas living in one process. Broadcasting queues a snapshot of a
// replica's log in every other replica's mailbox; delivering merges the queued snapshots.
type Network struct {
	replicas  map[communication.ReplicaID]*replica.Replica
	order     []communication.ReplicaID // join order
	mailboxes map[communication.ReplicaID][]communication.Message
	Observed  VClocks // versions each replica is known to have reached
	shuffle   *rand.Rand
	logger    *log.Logger
}

type NetworkOption func(*Network)

// WithShuffle delivers queued messages in a random order drawn from rnd
func WithShuffle(rnd *rand.Rand) NetworkOption {
	return func(n *Network) {
		n.shuffle = rnd
	}
}

func WithNetworkLogger(l *log.Logger) NetworkOption {
	return func(n *Network) {
		n.logger = l
	}
}

func NewNetwork(opts ...NetworkOption) *Network {
	n := &Network{
		replicas:  make(map[communication.ReplicaID]*replica.Replica),
		mailboxes: make(map[communication.ReplicaID][]communication.Message),
		Observed:  make(VClocks),
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Join adds a replica to the network
func (n *Network) Join(r *replica.Replica) {
	id := r.GetID()
	if _, ok := n.replicas[id]; !ok {
		n.order = append(n.order, id)
	}
	n.replicas[id] = r
	n.Observed.Update(id, r.Version())
}

// Replica returns a joined replica
func (n *Network) Replica(id communication.ReplicaID) (*replica.Replica, bool) {
	r, ok := n.replicas[id]
	return r, ok
}

// Broadcast queues a snapshot of the replica's log for every other replica
func (n *Network) Broadcast(from communication.ReplicaID) error {
	r, ok := n.replicas[from]
	if !ok {
		return fmt.Errorf("broadcast from %s: %w", from, ErrUnknownReplica)
	}
	msg := communication.NewMessage(communication.MSG, from, r.Version(), r.Log())
	n.Observed.Update(from, msg.Version)
	for _, id := range n.order {
		if id != from {
			n.mailboxes[id] = append(n.mailboxes[id], msg)
		}
	}
	n.logger.Println("[ REPLICA", from, "] BROADCASTED", len(msg.Operations), "operations")
	return nil
}

// Pending returns the number of messages waiting for a replica
func (n *Network) Pending(id communication.ReplicaID) int {
	return len(n.mailboxes[id])
}

// Deliver merges every queued message into the replica and returns how many were delivered
func (n *Network) Deliver(to communication.ReplicaID) (int, error) {
	r, ok := n.replicas[to]
	if !ok {
		return 0, fmt.Errorf("deliver to %s: %w", to, ErrUnknownReplica)
	}
	queue := n.mailboxes[to]
	delete(n.mailboxes, to)
	if n.shuffle != nil {
		n.shuffle.Shuffle(len(queue), func(i, j int) {
			queue[i], queue[j] = queue[j], queue[i]
		})
	}
	for _, msg := range queue {
		res := r.Merge(msg.Operations)
		n.logger.Println("[ REPLICA", to, "] RECEIVED", res.Added, "new operations FROM", msg.OriginID)
	}
	n.Observed.Update(to, r.Version())
	return len(queue), nil
}

// Flush delivers every mailbox
func (n *Network) Flush() {
	for _, id := range n.order {
		// ids come from the join order, so delivery cannot fail
		_, _ = n.Deliver(id)
	}
}

// Sync makes every replica broadcast and then delivers everything, after which all
// replicas hold the same operations.
func (n *Network) Sync() {
	for _, id := range n.order {
		_ = n.Broadcast(id)
	}
	n.Flush()
}

// StableVersion returns the version every replica is known to have reached
func (n *Network) StableVersion() communication.VClock {
	return n.Observed.Common()
}
