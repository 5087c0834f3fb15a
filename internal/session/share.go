package session

import (
	"context"
	"time"

	"github.com/dkeye/Canvas/internal/wire"
)

// StartShare claims the broadcaster role and streams frames from src until
// StopShare, Close or ctx cancellation. Frames are sent fire-and-forget;
// a slow link drops frames instead of stalling drawing.
func (s *Session) StartShare(ctx context.Context, src FrameSource) bool {
	if !s.sharing.CompareAndSwap(false, true) {
		return false
	}
	s.mu.Lock()
	s.send(wire.TypeStartShare, nil)
	s.mu.Unlock()

	go s.shareLoop(ctx, src)
	return true
}

// StopShare releases the broadcaster role. It reports false if no share
// was running.
func (s *Session) StopShare() bool {
	if !s.sharing.CompareAndSwap(true, false) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.send(wire.TypeStopShare, nil)
	return true
}

func (s *Session) Sharing() bool { return s.sharing.Load() }

func (s *Session) shareLoop(ctx context.Context, src FrameSource) {
	ticker := time.NewTicker(s.opts.ShareInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.StopShare()
			return
		case <-ticker.C:
		}
		if !s.sharing.Load() {
			return
		}
		img, err := src.Capture(ctx)
		if err != nil {
			s.log.Debug().Err(err).Msg("frame capture")
			continue
		}
		s.mu.Lock()
		if !s.sharing.Load() {
			s.mu.Unlock()
			return
		}
		s.send(wire.TypeScreenShare, wire.Frame{Image: img})
		s.mu.Unlock()
	}
}

// Screenshot captures a single full-resolution frame and sends it.
func (s *Session) Screenshot(ctx context.Context, src FrameSource) error {
	img, err := src.Capture(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.send(wire.TypeScreenshot, wire.Frame{Image: img})
	return nil
}
