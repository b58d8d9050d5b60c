// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package mockide

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/periscope-project/periscope/snapshot"
	"github.com/periscope-project/periscope/statesync"
)

// Config holds configuration for creating a Server.
type Config struct {
	// Viewport is the synthetic surface's native resolution. Zero
	// means 1280x800.
	Viewport snapshot.Size

	// Compression is the tag applied to pushed frame envelopes.
	Compression snapshot.CompressionTag

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Server is the synthetic IDE host. It serves the viewer API as an
// http.Handler and streams state frames to any number of push
// subscribers.
type Server struct {
	logger      *slog.Logger
	compression snapshot.CompressionTag

	mu          sync.Mutex
	scene       *scene
	sequence    uint64
	subscribers map[chan []byte]struct{}
}

// NewServer creates a Server with a fresh scene.
func NewServer(config Config) *Server {
	viewport := config.Viewport
	if viewport.Zero() {
		viewport = snapshot.Size{Width: 1280, Height: 800}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:      logger,
		compression: config.Compression,
		scene:       newScene(viewport),
		sequence:    1,
		subscribers: make(map[chan []byte]struct{}),
	}
}

// Handler returns the viewer API. Snapshot-returning endpoints
// respond with the CBOR frame envelope; command endpoints speak JSON.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+statesync.PathConnect, s.handleSnapshot)
	mux.HandleFunc("GET "+statesync.PathState, s.handleSnapshot)
	mux.HandleFunc("POST "+statesync.PathInputClick, s.handleClick)
	mux.HandleFunc("POST "+statesync.PathInputBatch, s.handleBatch)
	mux.HandleFunc("POST "+statesync.PathInputKey, s.handleKey)
	mux.HandleFunc("POST "+statesync.PathInputSubmit, s.handleSubmit)
	return mux
}

// StreamPush serves the push protocol on one connection: the current
// frame immediately, then a state frame per scene mutation. Blocks
// until ctx is cancelled or the connection drops.
func (s *Server) StreamPush(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	frames := make(chan []byte, 4)
	s.subscribe(frames)
	defer s.unsubscribe(frames)

	envelope, err := s.encodeCurrent()
	if err != nil {
		return err
	}
	if err := statesync.WriteFrame(conn, statesync.NewStateFrame(envelope)); err != nil {
		return fmt.Errorf("push initial frame: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case envelope := <-frames:
			if err := statesync.WriteFrame(conn, statesync.NewStateFrame(envelope)); err != nil {
				return fmt.Errorf("push frame: %w", err)
			}
		}
	}
}

// ServePush accepts push connections until ctx is cancelled.
func (s *Server) ServePush(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			if err := s.StreamPush(ctx, conn); err != nil && ctx.Err() == nil {
				s.logger.Debug("push subscriber left", "error", err)
			}
		}()
	}
}

func (s *Server) subscribe(frames chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[frames] = struct{}{}
}

func (s *Server) unsubscribe(frames chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, frames)
}

// mutate applies fn to the scene, bumps the sequence, and fans the
// new frame out to push subscribers. A slow subscriber skips frames
// rather than stalling the host.
func (s *Server) mutate(fn func(*scene)) error {
	s.mu.Lock()
	fn(s.scene)
	s.sequence++
	envelope, err := s.encodeCurrentLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	for frames := range s.subscribers {
		select {
		case frames <- envelope:
		default:
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *Server) encodeCurrent() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encodeCurrentLocked()
}

func (s *Server) encodeCurrentLocked() ([]byte, error) {
	payload, err := s.scene.render(s.sequence)
	if err != nil {
		return nil, err
	}
	snap := &snapshot.Snapshot{
		Sequence:   s.sequence,
		CapturedAt: time.Now(),
		Viewport:   s.scene.viewport,
		Image:      payload,
		ImageHash:  snapshot.HashFrame(payload),
		Root:       s.scene.tree(),
	}
	return snapshot.EncodeFrame(snap, s.compression)
}

// Sequence returns the current snapshot sequence.
func (s *Server) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// ChatTranscript returns a copy of the chat log.
func (s *Server) ChatTranscript() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scene.chat...)
}

// EditorText returns a copy of the editor's lines.
func (s *Server) EditorText() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scene.editor...)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	envelope, err := s.encodeCurrent()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "render_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.Write(envelope)
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var request statesync.ClickRequest
	if !s.decodeRequest(w, r, &request) {
		return
	}
	if err := s.mutate(func(sc *scene) { sc.focused = request.Selector }); err != nil {
		s.writeError(w, http.StatusInternalServerError, "render_failed", err.Error())
		return
	}
	s.handleSnapshot(w, r)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var request statesync.BatchRequest
	if !s.decodeRequest(w, r, &request) {
		return
	}
	if err := s.mutate(func(sc *scene) { sc.applyText(request.Text, request.Selector) }); err != nil {
		s.writeError(w, http.StatusInternalServerError, "render_failed", err.Error())
		return
	}
	s.writeAck(w)
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	var request statesync.KeyRequest
	if !s.decodeRequest(w, r, &request) {
		return
	}
	if err := s.mutate(func(sc *scene) { sc.applyKey(request.Key, request.Selector) }); err != nil {
		s.writeError(w, http.StatusInternalServerError, "render_failed", err.Error())
		return
	}
	s.writeAck(w)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var request statesync.SubmitRequest
	if !s.decodeRequest(w, r, &request) {
		return
	}
	if request.Text == "" {
		s.writeError(w, http.StatusBadRequest, "empty_message", "chat submit requires text")
		return
	}
	if err := s.mutate(func(sc *scene) { sc.applyChat(request.Text) }); err != nil {
		s.writeError(w, http.StatusInternalServerError, "render_failed", err.Error())
		return
	}
	s.writeAck(w)
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}
	return true
}

func (s *Server) writeAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statesync.AckResponse{
		Accepted: true,
		Sequence: s.Sequence(),
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(statesync.ErrorResponse{
		Code:        code,
		Message:     message,
		Recoverable: status < http.StatusInternalServerError,
	})
}
