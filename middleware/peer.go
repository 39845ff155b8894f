package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"quilt/packages/communication"
	"quilt/packages/crdt"
	"quilt/packages/replica"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Peer shares a replica over websocket. Every access to the replica goes through the
// peer's mutex, since connections are served on their own goroutines.
type Peer struct {
	mu       sync.Mutex
	r        *replica.Replica
	upgrader websocket.Upgrader
	logger   *log.Logger

	// Retries is how many times Sync redials an unreachable peer
	Retries uint64
}

func NewPeer(r *replica.Replica, logger *log.Logger) *Peer {
	if logger == nil {
		logger = log.Default()
	}
	return &Peer{r: r, logger: logger, Retries: 3}
}

// Do runs f with exclusive access to the replica
func (p *Peer) Do(f func(r *replica.Replica)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f(p.r)
}

// snapshot returns a SYN or ACK message carrying the replica's log in causal order
func (p *Peer) snapshot(tp int) (communication.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops, err := p.r.CausalLog()
	if err != nil {
		return communication.Message{}, err
	}
	return communication.NewMessage(tp, p.r.GetID(), p.r.Version(), ops), nil
}

func (p *Peer) merge(msg communication.Message) crdt.MergeResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.r.Merge(msg.Operations)
}

type textView struct {
	ID   communication.ReplicaID `json:"id"`
	Text string                  `json:"text"`
}

// Router serves the websocket sync endpoint at /sync and read-only views of the
// replica at /text and /log
func (p *Peer) Router() http.Handler {
	r := mux.NewRouter()
	r.Handle("/sync", p)
	r.HandleFunc("/text", p.serveText).Methods(http.MethodGet)
	r.HandleFunc("/log", p.serveLog).Methods(http.MethodGet)
	return r
}

func (p *Peer) serveText(w http.ResponseWriter, _ *http.Request) {
	var view textView
	p.Do(func(r *replica.Replica) { view = textView{ID: r.GetID(), Text: r.Text()} })
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}

func (p *Peer) serveLog(w http.ResponseWriter, _ *http.Request) {
	var data []byte
	var err error
	p.Do(func(r *replica.Replica) { data, err = communication.EncodeLog(r.Log()) })
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// ServeHTTP upgrades the connection and answers every SYN with the merged local log
func (p *Peer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := p.upgrader.Upgrade(w, req, nil)
	if err != nil {
		p.logger.Println("upgrade:", err)
		return
	}
	defer conn.Close()

	for {
		var msg communication.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.logger.Println("read:", err)
			}
			return
		}
		if msg.MSGType != communication.SYN {
			p.logger.Println("ignoring message of type", msg.MSGType, "from", msg.OriginID)
			continue
		}
		res := p.merge(msg)
		p.logger.Println("[ PEER", p.r.GetID(), "] SYNCED WITH", msg.OriginID, "added", res.Added)

		reply, err := p.snapshot(communication.ACK)
		if err != nil {
			p.logger.Println("snapshot:", err)
			return
		}
		if err := conn.WriteJSON(reply); err != nil {
			p.logger.Println("write:", err)
			return
		}
	}
}

// Sync sends the local log to the peer at url, merges the peer's reply and returns the
// result of that merge
func (p *Peer) Sync(ctx context.Context, url string) (crdt.MergeResult, error) {
	var conn *websocket.Conn
	dial := func() error {
		var err error
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			p.logger.Println("dial", url+":", err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.Retries), ctx)
	if err := backoff.Retry(dial, policy); err != nil {
		return crdt.MergeResult{}, fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	msg, err := p.snapshot(communication.SYN)
	if err != nil {
		return crdt.MergeResult{}, err
	}
	if err := conn.WriteJSON(msg); err != nil {
		return crdt.MergeResult{}, fmt.Errorf("send log to %s: %w", url, err)
	}
	var reply communication.Message
	if err := conn.ReadJSON(&reply); err != nil {
		return crdt.MergeResult{}, fmt.Errorf("read log from %s: %w", url, err)
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return p.merge(reply), nil
}
