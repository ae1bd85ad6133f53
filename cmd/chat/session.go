package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/murmur/chat/internal/chat"
	"github.com/murmur/chat/internal/directory"
	"github.com/murmur/chat/internal/hosted"
	"github.com/murmur/chat/internal/identity"
	"github.com/murmur/chat/internal/mesh"
	"github.com/murmur/chat/internal/view"
)

// hostedSession adapts the hosted-store channel and presence tracker to the
// view's channel interface. One long-lived channel serves every room; Join
// re-points its subscription.
type hostedSession struct {
	channel  *hosted.Channel
	tracker  *hosted.Tracker
	profile  *identity.Provider
	identity string

	mu   sync.Mutex
	name string

	controller *view.Controller
}

func (s *hostedSession) Join(ctx context.Context, roomID string) error {
	return s.channel.Subscribe(ctx, roomID, func(msgs []chat.Message) {
		s.controller.OnSnapshot(msgs)
	})
}

func (s *hostedSession) Publish(ctx context.Context, roomID, text string) error {
	s.mu.Lock()
	name := s.name
	s.mu.Unlock()

	_, err := s.channel.Publish(ctx, roomID, s.identity, name, text)
	return err
}

func (s *hostedSession) SetName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()

	// A failed profile write costs persistence, not the session.
	_ = s.profile.SetName(name)
	if s.tracker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.tracker.SetName(ctx, name); err != nil {
			s.controller.OnSystem(fmt.Sprintf("presence update failed: %v", err))
		}
	}
}

func (s *hostedSession) Leave() {
	s.channel.Unsubscribe()
}

func (s *hostedSession) close() {
	if s.tracker != nil {
		s.tracker.Close()
	}
	s.channel.Close()
}

// meshSession adapts the peer-mesh channel to the view's channel interface.
// Mesh channels are per-room: Join tears down the previous mesh (closing its
// listener and directory registration) and starts a fresh one.
type meshSession struct {
	dir      directory.Directory
	config   mesh.Config
	profile  *identity.Provider
	identity string

	mu      sync.Mutex
	name    string
	channel *mesh.Channel

	controller *view.Controller
}

func (s *meshSession) Join(ctx context.Context, roomID string) error {
	s.Leave()

	s.mu.Lock()
	name := s.name
	s.mu.Unlock()

	ch := mesh.NewChannel(s.dir, nil, s.config, roomID, s.identity, name, mesh.Handlers{
		OnMessage:  s.controller.OnMessage,
		OnSystem:   s.controller.OnSystem,
		OnPresence: s.controller.OnPeerPresence,
	})
	if err := ch.Start(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()
	return nil
}

func (s *meshSession) Publish(ctx context.Context, roomID, text string) error {
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()

	if ch == nil {
		return fmt.Errorf("mesh: no active room")
	}
	return ch.Publish(text)
}

func (s *meshSession) SetName(name string) {
	s.mu.Lock()
	s.name = name
	ch := s.channel
	s.mu.Unlock()

	_ = s.profile.SetName(name)
	if ch != nil {
		ch.SetName(name)
	}
}

func (s *meshSession) Leave() {
	s.mu.Lock()
	ch := s.channel
	s.channel = nil
	s.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
}

func (s *meshSession) close() {
	s.Leave()
}
