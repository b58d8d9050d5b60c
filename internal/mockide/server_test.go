// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package mockide

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/periscope-project/periscope/snapshot"
	"github.com/periscope-project/periscope/statesync"
	"github.com/periscope-project/periscope/zone"
)

// startHost wires a Server to an API test server and an in-memory
// push network, returning a connected client.
func startHost(t *testing.T) (*Server, *statesync.Client) {
	t.Helper()
	host := NewServer(Config{})

	api := httptest.NewServer(host.Handler())
	t.Cleanup(api.Close)

	network := statesync.NewMemoryNetwork()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		for {
			conn, err := network.Accept(ctx)
			if err != nil {
				return
			}
			go host.StreamPush(ctx, conn)
		}
	}()

	client, err := statesync.NewClient(statesync.Config{
		APIURL:         api.URL,
		PushAddress:    "memory",
		Dialer:         network,
		InitialBackoff: time.Hour,
		PollInterval:   time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	return host, client
}

func TestConnectDeliversSceneSnapshot(t *testing.T) {
	t.Parallel()
	_, client := startHost(t)

	snap, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if snap.Viewport.Zero() {
		t.Fatal("snapshot has no viewport")
	}
	if len(snap.Image) == 0 {
		t.Fatal("snapshot has no image payload")
	}

	// The initial push frame mirrors the bootstrap state.
	update := <-client.Updates()
	if update.Snapshot == nil {
		t.Fatalf("first push update: got %+v", update)
	}
	if update.Snapshot.Sequence != snap.Sequence {
		t.Errorf("push sequence: got %d, want %d", update.Snapshot.Sequence, snap.Sequence)
	}
}

func TestSceneExposesAllZoneTypes(t *testing.T) {
	t.Parallel()
	_, client := startHost(t)

	snap, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	zones := zone.Extract(&snap.Root, snap.Viewport)
	types := make(map[snapshot.ElementType]bool)
	for _, z := range zones {
		types[z.Type] = true
	}
	for _, want := range []snapshot.ElementType{
		snapshot.ElementEditor,
		snapshot.ElementChat,
		snapshot.ElementTerminal,
	} {
		if !types[want] {
			t.Errorf("no %s zone extracted; zones: %+v", want, zones)
		}
	}
}

func TestInputMutatesSceneAndPushesFrame(t *testing.T) {
	t.Parallel()
	host, client := startHost(t)

	first, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-client.Updates() // initial push frame

	if err := client.SendText("hello", "#editor"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	lines := host.EditorText()
	if got := lines[len(lines)-1]; got != "func main() {}hello" {
		t.Errorf("editor tail: got %q", got)
	}

	// The mutation reaches push subscribers with a higher sequence.
	update := <-client.Updates()
	if update.Snapshot == nil {
		t.Fatalf("push update: got %+v", update)
	}
	if update.Snapshot.Sequence <= first.Sequence {
		t.Errorf("pushed sequence %d not after %d", update.Snapshot.Sequence, first.Sequence)
	}
}

func TestChatSubmitAppendsTranscript(t *testing.T) {
	t.Parallel()
	host, client := startHost(t)

	if _, err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ack, err := client.SubmitText(context.Background(), "run the tests")
	if err != nil {
		t.Fatalf("SubmitText: %v", err)
	}
	if !ack.Accepted {
		t.Error("submit not accepted")
	}

	transcript := host.ChatTranscript()
	if len(transcript) < 3 || transcript[1] != "user: run the tests" {
		t.Errorf("transcript: got %q", transcript)
	}

	// Empty submits are rejected with a recoverable host error.
	if _, err := client.SubmitText(context.Background(), ""); err == nil {
		t.Error("empty submit accepted")
	}
}

func TestTerminalEnterOpensPrompt(t *testing.T) {
	t.Parallel()
	host, client := startHost(t)
	if _, err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := client.SendText("ls", "#terminal"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := client.SendKey("Enter", nil, "#terminal"); err != nil {
		t.Fatalf("SendKey: %v", err)
	}

	snap, err := client.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if snap.Sequence != host.Sequence() {
		t.Errorf("state sequence: got %d, want %d", snap.Sequence, host.Sequence())
	}
}
