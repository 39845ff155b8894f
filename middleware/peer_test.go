package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quilt/packages/communication"
	"quilt/packages/replica"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestPeerSync(t *testing.T) {
	replicas := newReplicas(2)
	server, client := NewPeer(replicas[0], quiet), NewPeer(replicas[1], quiet)

	server.Do(func(r *replica.Replica) { _ = r.InsertText("world", 0) })
	client.Do(func(r *replica.Replica) { _ = r.InsertText("hello ", 0) })

	srv := httptest.NewServer(server)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := client.Sync(ctx, wsURL(srv))
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 5 {
		t.Errorf("client merged %d operations, want 5", res.Added)
	}

	var serverText, clientText string
	server.Do(func(r *replica.Replica) { serverText = r.Text() })
	client.Do(func(r *replica.Replica) { clientText = r.Text() })
	if serverText != clientText || len(clientText) != len("hello world") {
		t.Errorf("server = %q, client = %q", serverText, clientText)
	}

	// a second sync has nothing new
	res, err = client.Sync(ctx, wsURL(srv))
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 0 {
		t.Errorf("second sync added %d operations", res.Added)
	}
}

func TestPeerSyncUnreachable(t *testing.T) {
	client := NewPeer(newReplicas(1)[0], quiet)
	client.Retries = 1
	srv := httptest.NewServer(client)
	url := wsURL(srv)
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := client.Sync(ctx, url); err == nil {
		t.Error("sync with a closed server succeeded")
	}
}

func TestPeerRouter(t *testing.T) {
	r := newReplicas(1)[0]
	_ = r.InsertText("quilt", 0)
	p := NewPeer(r, quiet)
	srv := httptest.NewServer(p.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/text")
	if err != nil {
		t.Fatal(err)
	}
	var view textView
	err = json.NewDecoder(resp.Body).Decode(&view)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if view.Text != "quilt" || view.ID != r.GetID() {
		t.Errorf("/text = %+v", view)
	}

	resp, err = http.Get(srv.URL + "/log")
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	ops, err := communication.DecodeLog(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 5 {
		t.Errorf("/log has %d operations, want 5", len(ops))
	}

	resp, err = http.Post(srv.URL+"/log", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /log status = %d", resp.StatusCode)
	}

	// the websocket endpoint is routed too
	client := NewPeer(newReplicas(1)[0], quiet)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Sync(ctx, wsURL(srv)+"/sync"); err != nil {
		t.Fatal(err)
	}
	client.Do(func(c *replica.Replica) {
		if c.Text() != "quilt" {
			t.Errorf("synced text = %q", c.Text())
		}
	})
}
