package communication

const (
	MSG int = 0 // unsolicited log broadcast
	SYN int = 1 // log sent expecting the peer's log back
	ACK int = 2 // reply to SYN carrying the peer's log
)

// Message carries a snapshot of a replica's log between replicas
type Message struct {
	MSGType    int         `json:"type"`       // type of message
	OriginID   ReplicaID   `json:"origin"`     // replica whose log this is
	Version    VClock      `json:"version"`    // origin's version vector when the snapshot was taken
	Operations []Operation `json:"operations"` // log snapshot
}

// NewMessage creates a new message with the given log snapshot and version vector
func NewMessage(tp int, originID ReplicaID, version VClock, operations []Operation) Message {
	return Message{
		MSGType:    tp,
		OriginID:   originID,
		Version:    version.Copy(),
		Operations: operations,
	}
}

// set type of message
func (e *Message) SetType(tp int) {
	e.MSGType = tp
}

// CompareTo compares the versions of the snapshots carried by two messages
func (e *Message) CompareTo(other *Message) Condition {
	return e.Version.Compare(other.Version)
}
