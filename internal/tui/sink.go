package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kuitang/sticky-canvas/internal/canvas"
)

// FrameMsg carries a controller frame into the bubbletea loop.
type FrameMsg canvas.Frame

// FrameSink is a canvas.Renderer that hands frames to a program without
// blocking the controller. Frames are full state, so only the newest one
// waiting is delivered.
type FrameSink struct {
	mu     sync.Mutex
	latest *canvas.Frame
	wake   chan struct{}
}

func NewFrameSink() *FrameSink {
	return &FrameSink{wake: make(chan struct{}, 1)}
}

// Render implements canvas.Renderer.
func (s *FrameSink) Render(fr canvas.Frame) {
	s.mu.Lock()
	s.latest = &fr
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run forwards frames to send until ctx is done.
func (s *FrameSink) Run(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		s.mu.Lock()
		fr := s.latest
		s.latest = nil
		s.mu.Unlock()
		if fr != nil {
			send(FrameMsg(*fr))
		}
	}
}
