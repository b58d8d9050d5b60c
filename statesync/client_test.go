// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package statesync

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/periscope-project/periscope/snapshot"
)

func testSnapshot(sequence uint64) *snapshot.Snapshot {
	payload := []byte("frame image bytes")
	return &snapshot.Snapshot{
		Sequence:  sequence,
		Viewport:  snapshot.Size{Width: 1920, Height: 1080},
		Image:     payload,
		ImageHash: snapshot.HashFrame(payload),
		Root: snapshot.ElementNode{
			Kind:     "div",
			Selector: "#root",
			Bounds:   snapshot.Rect{Width: 1920, Height: 1080},
		},
	}
}

// snapshotHandler responds to snapshot-returning endpoints with the
// frame envelope for the given sequence.
func snapshotHandler(t *testing.T, sequence uint64) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		envelope, err := snapshot.EncodeFrame(testSnapshot(sequence), snapshot.CompressionNone)
		if err != nil {
			t.Errorf("encode frame: %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/cbor")
		w.Write(envelope)
	}
}

func newTestClient(t *testing.T, apiURL string, network *MemoryNetwork) *Client {
	t.Helper()
	client, err := NewClient(Config{
		APIURL:         apiURL,
		PushAddress:    "memory",
		Dialer:         network,
		InitialBackoff: time.Hour, // keep redials quiet during tests
		PollInterval:   time.Hour, // polling enabled per-test
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnectReturnsSnapshotWhenPushNeverEstablishes(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathConnect, snapshotHandler(t, 7))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	network := NewMemoryNetwork()
	network.Refuse()
	client := newTestClient(t, server.URL, network)

	snap, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if snap.Sequence != 7 {
		t.Errorf("sequence: got %d, want 7", snap.Sequence)
	}
	if client.PushConnected() {
		t.Error("push reported connected with a refusing network")
	}
}

func TestPushStreamDeliversUpdates(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathConnect, snapshotHandler(t, 1))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	network := NewMemoryNetwork()
	client := newTestClient(t, server.URL, network)

	if _, err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	acceptCtx, cancelAccept := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelAccept()
	conn, err := network.Accept(acceptCtx)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer conn.Close()

	writeState(t, conn, 2)

	confirmFrame, err := NewInputConfirmedFrame(InputConfirmation{Key: "Enter", Sequence: 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(conn, confirmFrame); err != nil {
		t.Fatal(err)
	}

	errorFrame, err := NewErrorFrame(ErrorReport{Code: "reload", Message: "host reloading", Recoverable: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(conn, errorFrame); err != nil {
		t.Fatal(err)
	}

	update := <-client.Updates()
	if update.Snapshot == nil || update.Snapshot.Sequence != 2 {
		t.Fatalf("first update: got %+v, want snapshot sequence 2", update)
	}

	update = <-client.Updates()
	if update.Confirmed == nil || update.Confirmed.Key != "Enter" {
		t.Fatalf("second update: got %+v, want Enter confirmation", update)
	}

	update = <-client.Updates()
	var remoteErr *RemoteError
	if !errors.As(update.Err, &remoteErr) || remoteErr.Code != "reload" || !remoteErr.Recoverable {
		t.Fatalf("third update: got %+v, want recoverable reload error", update)
	}
}

func writeState(t *testing.T, conn net.Conn, sequence uint64) {
	t.Helper()
	envelope, err := snapshot.EncodeFrame(testSnapshot(sequence), snapshot.CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(conn, NewStateFrame(envelope)); err != nil {
		t.Fatal(err)
	}
}

func TestMalformedStateFrameDroppedStreamContinues(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathConnect, snapshotHandler(t, 1))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	network := NewMemoryNetwork()
	client := newTestClient(t, server.URL, network)
	if _, err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	acceptCtx, cancelAccept := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelAccept()
	conn, err := network.Accept(acceptCtx)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer conn.Close()

	if err := WriteFrame(conn, NewStateFrame([]byte("not valid CBOR"))); err != nil {
		t.Fatal(err)
	}
	writeState(t, conn, 9)

	update := <-client.Updates()
	var decodeErr *snapshot.DecodeError
	if !errors.As(update.Err, &decodeErr) {
		t.Fatalf("first update: got %+v, want decode error", update)
	}

	update = <-client.Updates()
	if update.Snapshot == nil || update.Snapshot.Sequence != 9 {
		t.Fatalf("second update: got %+v, want snapshot sequence 9", update)
	}
}

func TestCommandsTravelOverAPI(t *testing.T) {
	t.Parallel()
	var gotBatch BatchRequest
	var gotKey KeyRequest
	var gotSubmit SubmitRequest

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathConnect, snapshotHandler(t, 1))
	mux.HandleFunc("POST "+PathInputClick, snapshotHandler(t, 2))
	mux.HandleFunc("POST "+PathInputBatch, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBatch)
		json.NewEncoder(w).Encode(AckResponse{Accepted: true, Sequence: 3})
	})
	mux.HandleFunc("POST "+PathInputKey, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotKey)
		json.NewEncoder(w).Encode(AckResponse{Accepted: true, Sequence: 4})
	})
	mux.HandleFunc("POST "+PathInputSubmit, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotSubmit)
		json.NewEncoder(w).Encode(AckResponse{Accepted: true, Sequence: 5})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	network := NewMemoryNetwork()
	network.Refuse()
	client := newTestClient(t, server.URL, network)
	if _, err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	rect := snapshot.Rect{X: 10, Y: 20, Width: 100, Height: 40}
	if err := client.SendClick("#editor", rect); err != nil {
		t.Fatalf("SendClick: %v", err)
	}
	update := <-client.Updates()
	if update.Snapshot == nil || update.Snapshot.Sequence != 2 {
		t.Fatalf("click update: got %+v, want snapshot sequence 2", update)
	}

	if err := client.SendText("hello worl", "#editor"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if gotBatch.Text != "hello worl" || gotBatch.Selector != "#editor" {
		t.Errorf("batch request: got %+v", gotBatch)
	}

	if err := client.SendKey("Enter", []string{"ctrl"}, "#terminal"); err != nil {
		t.Fatalf("SendKey: %v", err)
	}
	if gotKey.Key != "Enter" || len(gotKey.Modifiers) != 1 || gotKey.Selector != "#terminal" {
		t.Errorf("key request: got %+v", gotKey)
	}

	ack, err := client.SubmitText(context.Background(), "ship it")
	if err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	if !ack.Accepted || ack.Sequence != 5 {
		t.Errorf("submit ack: got %+v", ack)
	}
	if gotSubmit.Text != "ship it" {
		t.Errorf("submit request: got %+v", gotSubmit)
	}
}

func TestHostErrorBecomesRemoteError(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathConnect, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(ErrorResponse{
			Code:        "session_exists",
			Message:     "another viewer is attached",
			Recoverable: false,
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	network := NewMemoryNetwork()
	network.Refuse()
	client := newTestClient(t, server.URL, network)

	_, err := client.Connect(context.Background())
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("Connect error: got %v, want *RemoteError", err)
	}
	if remoteErr.Code != "session_exists" || remoteErr.StatusCode != http.StatusConflict || remoteErr.Recoverable {
		t.Errorf("remote error: got %+v", remoteErr)
	}
}

func TestFallbackPollingWhilePushDown(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathConnect, snapshotHandler(t, 1))
	mux.HandleFunc("GET "+PathState, snapshotHandler(t, 2))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	network := NewMemoryNetwork()
	network.Refuse()
	client, err := NewClient(Config{
		APIURL:         server.URL,
		PushAddress:    "memory",
		Dialer:         network,
		InitialBackoff: time.Hour,
		PollInterval:   time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	if _, err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	update := <-client.Updates()
	if update.Snapshot == nil || update.Snapshot.Sequence != 2 {
		t.Fatalf("poll update: got %+v, want snapshot sequence 2", update)
	}
}

func TestExhaustedPollingReportsFatalTransportError(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathConnect, snapshotHandler(t, 1))
	mux.HandleFunc("GET "+PathState, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(ErrorResponse{Code: "down", Message: "host gone", Recoverable: true})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	network := NewMemoryNetwork()
	network.Refuse()
	client, err := NewClient(Config{
		APIURL:         server.URL,
		PushAddress:    "memory",
		Dialer:         network,
		InitialBackoff: time.Hour,
		PollInterval:   time.Millisecond,
		MaxAttempts:    3,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	if _, err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	update := <-client.Updates()
	var transportErr *TransportError
	if !errors.As(update.Err, &transportErr) {
		t.Fatalf("update: got %+v, want *TransportError", update)
	}
	if !transportErr.Exhausted {
		t.Error("transport error not marked exhausted")
	}
}

func TestReconnectAfterExhaustedTransport(t *testing.T) {
	t.Parallel()
	var healthy atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathConnect, snapshotHandler(t, 1))
	mux.HandleFunc("POST "+PathInputClick, snapshotHandler(t, 3))
	stateOK := snapshotHandler(t, 2)
	mux.HandleFunc("GET "+PathState, func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(ErrorResponse{Code: "down", Message: "host gone", Recoverable: true})
			return
		}
		stateOK(w, r)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	network := NewMemoryNetwork()
	network.Refuse()
	client, err := NewClient(Config{
		APIURL:         server.URL,
		PushAddress:    "memory",
		Dialer:         network,
		InitialBackoff: time.Hour,
		PollInterval:   time.Millisecond,
		MaxAttempts:    2,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	if _, err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Drain updates until the retry budget runs out.
	deadline := time.After(5 * time.Second)
	for {
		var update Update
		select {
		case update = <-client.Updates():
		case <-deadline:
			t.Fatal("no exhausted transport error")
		}
		var transportErr *TransportError
		if errors.As(update.Err, &transportErr) && transportErr.Exhausted {
			break
		}
	}

	// The host comes back. A fresh Connect must revive the client:
	// commands work and state flows again.
	healthy.Store(true)
	if _, err := client.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}

	if err := client.SendClick("#editor", snapshot.Rect{Width: 10, Height: 10}); err != nil {
		t.Fatalf("SendClick after reconnect: %v", err)
	}
	for {
		var update Update
		select {
		case update = <-client.Updates():
		case <-deadline:
			t.Fatal("no click snapshot after reconnect")
		}
		if update.Snapshot != nil && update.Snapshot.Sequence == 3 {
			return
		}
	}
}

// dialRecorder counts dial attempts without ever connecting.
type dialRecorder struct{ calls atomic.Int32 }

func (d *dialRecorder) DialContext(ctx context.Context, address string) (net.Conn, error) {
	d.calls.Add(1)
	return nil, errors.New("dial refused")
}

func TestEmptyPushAddressDisablesPushChannel(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathConnect, snapshotHandler(t, 1))
	mux.HandleFunc("GET "+PathState, snapshotHandler(t, 4))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	dialer := &dialRecorder{}
	client, err := NewClient(Config{
		APIURL:       server.URL,
		PushAddress:  "",
		Dialer:       dialer,
		PollInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	if _, err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	update := <-client.Updates()
	if update.Snapshot == nil || update.Snapshot.Sequence != 4 {
		t.Fatalf("poll update: got %+v, want snapshot sequence 4", update)
	}
	if got := dialer.calls.Load(); got != 0 {
		t.Errorf("dial attempts with no push address: got %d, want 0", got)
	}
	if client.PushConnected() {
		t.Error("push reported connected with no push address")
	}
}
