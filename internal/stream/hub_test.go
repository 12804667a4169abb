package stream_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetwatch/fleetwatch/internal/fleet"
	"github.com/fleetwatch/fleetwatch/internal/state"
	"github.com/fleetwatch/fleetwatch/internal/stream"
)

var hubNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// --- helpers ----------------------------------------------------------------

func seededState(rates map[fleet.EntityID]float64) *state.State {
	st := state.New(0)
	var readings []fleet.Reading
	for id, r := range rates {
		readings = append(readings, fleet.Reading{Entity: id, RateBPS: r, SourceID: "t"})
	}
	st.Record(fleet.Aggregate(readings), nil, hubNow)
	return st
}

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
func startHub(t *testing.T, st *state.State) (wsURL string, hub *stream.Hub, cancel func()) {
	t.Helper()

	hub = stream.New(st)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads one text message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return msg
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesFleetSnapshot(t *testing.T) {
	st := seededState(map[fleet.EntityID]float64{"10.0.0.1": 100, "10.0.0.2": 0})
	wsURL, _, _ := startHub(t, st)

	conn := dial(t, wsURL)
	msg := readMessage(t, conn)

	var m map[string]interface{}
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["event"] != "fleet" {
		t.Errorf("event: got %v, want fleet", m["event"])
	}
	entities, ok := m["data"].([]interface{})
	if !ok {
		t.Fatal("data: missing or wrong type")
	}
	if len(entities) != 2 {
		t.Errorf("entities: got %d, want 2", len(entities))
	}
}

func TestHub_EmptyState_EmptyFleet(t *testing.T) {
	wsURL, _, _ := startHub(t, state.New(0))
	conn := dial(t, wsURL)
	msg := readMessage(t, conn)

	var m map[string]interface{}
	json.Unmarshal(msg, &m) //nolint:errcheck
	entities := m["data"].([]interface{})
	if len(entities) != 0 {
		t.Errorf("entities: got %d, want 0", len(entities))
	}
}

func TestHub_PublishBroadcastsTransitions(t *testing.T) {
	st := seededState(map[fleet.EntityID]float64{"10.0.0.1": 100})
	wsURL, hub, _ := startHub(t, st)

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume fleet snapshot

	hub.Publish(nil, []fleet.Transition{
		{Entity: "10.0.0.1", From: fleet.StatusUp, To: fleet.StatusDown, DetectedAt: hubNow},
	})

	msg := readMessage(t, conn)
	var m map[string]interface{}
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["event"] != "transitions" {
		t.Errorf("event: got %v, want transitions", m["event"])
	}
	trs := m["data"].([]interface{})
	if len(trs) != 1 {
		t.Fatalf("transitions: got %d, want 1", len(trs))
	}
	tr := trs[0].(map[string]interface{})
	if tr["entity"] != "10.0.0.1" || tr["previous_status"] != "up" || tr["new_status"] != "down" {
		t.Errorf("transition: got %v", tr)
	}
}

func TestHub_PublishEmptyBatch_NoBroadcast(t *testing.T) {
	wsURL, hub, _ := startHub(t, state.New(0))
	conn := dial(t, wsURL)
	readMessage(t, conn)

	hub.Publish(nil, nil)

	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("received a broadcast for an empty transition batch")
	}
}

func TestHub_AllClientsReceiveBroadcast(t *testing.T) {
	wsURL, hub, _ := startHub(t, state.New(0))

	conns := make([]*websocket.Conn, 3)
	for i := 0; i < 3; i++ {
		conns[i] = dial(t, wsURL)
		readMessage(t, conns[i]) // consume fleet snapshot
	}
	time.Sleep(10 * time.Millisecond)

	hub.Publish(nil, []fleet.Transition{
		{Entity: "10.0.0.7", To: fleet.StatusUp, DetectedAt: hubNow},
	})

	for i, conn := range conns {
		msg := readMessage(t, conn)
		var m map[string]interface{}
		if err := json.Unmarshal(msg, &m); err != nil {
			t.Errorf("client %d: unmarshal: %v", i, err)
			continue
		}
		if m["event"] != "transitions" {
			t.Errorf("client %d: event: got %v, want transitions", i, m["event"])
		}
	}
}

func TestHub_CountClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, state.New(0))

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	if n := hub.Count(); n != 1 {
		t.Errorf("Count before disconnect: got %d, want 1", n)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond) // let readPump detect the close

	if n := hub.Count(); n != 0 {
		t.Errorf("Count after disconnect: got %d, want 0", n)
	}
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, state.New(0))

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	cancel() // signal shutdown

	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel: got %d, want 0", n)
	}
}

func TestHub_PublishDuringDisconnectChurn(t *testing.T) {
	wsURL, hub, _ := startHub(t, state.New(0))

	stop := make(chan struct{})
	var wg sync.WaitGroup

	// Clients connect and drop immediately while broadcasts run, so every
	// Publish races at least one disconnecting client.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
				if err != nil {
					continue
				}
				conn.Close()
			}
		}()
	}

	batch := []fleet.Transition{
		{Entity: "10.0.0.1", From: fleet.StatusUp, To: fleet.StatusDown, DetectedAt: hubNow},
	}
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		hub.Publish(nil, batch) // must not panic against a closing client
	}

	close(stop)
	wg.Wait()
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := stream.New(state.New(0))
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
