package communication

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ReplicaID identifies a replica. It is the canonical (lowercase) string form of a UUID.
type ReplicaID string

// NewReplicaID returns a fresh random replica id
func NewReplicaID() ReplicaID {
	return ReplicaID(uuid.NewString())
}

// ParseReplicaID validates s as a UUID and returns its canonical form
func ParseReplicaID(s string) (ReplicaID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid replica id %q: %w", s, err)
	}
	return ReplicaID(u.String()), nil
}

// OpID is the causal identifier stamped on every operation.
// Counter is the creating replica's sequence number; Replica breaks ties.
type OpID struct {
	Counter uint64    `json:"counter"`
	Replica ReplicaID `json:"replica"`
}

// Compare orders ids by counter, then by replica id. Returns -1, 0 or 1.
func (id OpID) Compare(other OpID) int {
	switch {
	case id.Counter < other.Counter:
		return -1
	case id.Counter > other.Counter:
		return 1
	}
	return strings.Compare(string(id.Replica), string(other.Replica))
}

func (id OpID) Less(other OpID) bool {
	return id.Compare(other) < 0
}

// IsZero reports whether id is the absent id (no replica)
func (id OpID) IsZero() bool {
	return id.Replica == ""
}

func (id OpID) String() string {
	return strconv.FormatUint(id.Counter, 10) + "@" + string(id.Replica)
}

// ParseOpID parses the "counter@replica" form produced by String
func ParseOpID(s string) (OpID, error) {
	counter, replica, found := strings.Cut(s, "@")
	if !found || replica == "" {
		return OpID{}, fmt.Errorf("could not find replica in op id %q", s)
	}
	c, err := strconv.ParseUint(counter, 10, 64)
	if err != nil {
		return OpID{}, fmt.Errorf("invalid counter in op id %q: %w", s, err)
	}
	return OpID{Counter: c, Replica: ReplicaID(replica)}, nil
}
