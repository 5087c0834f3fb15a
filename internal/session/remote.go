package session

import (
	"errors"

	"github.com/dkeye/Canvas/internal/domain"
	"github.com/dkeye/Canvas/internal/wire"
)

var errNoAuthor = errors.New("message without author")

// HandleMessage applies one relay message to the remote author's state.
// Nothing here is ever sent back out. Malformed and unknown messages are
// logged and dropped.
func (s *Session) HandleMessage(data []byte) {
	env, err := wire.Parse(data)
	if err != nil {
		s.log.Warn().Err(err).Str("type", string(env.Type)).Msg("dropping message")
		return
	}
	if env.AuthorID == s.opts.Author {
		s.log.Debug().Str("type", string(env.Type)).Msg("ignoring own echo")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if err := s.applyLocked(env); err != nil {
		s.log.Warn().Err(err).Str("type", string(env.Type)).Str("from", string(env.AuthorID)).Msg("dropping message")
	}
}

func (s *Session) applyLocked(env wire.Envelope) error {
	switch env.Type {
	case wire.TypeDrawStart:
		return s.remoteDrawStart(env)
	case wire.TypeDraw:
		return s.remoteDraw(env)
	case wire.TypeDrawEnd:
		return s.remoteDrawEnd(env)
	case wire.TypeClearDrawing:
		s.clearLocked()
	case wire.TypeScreenShare:
		var f wire.Frame
		if err := env.Decode(&f); err != nil {
			return err
		}
		s.background = f.Image
		s.redrawLocked()
	case wire.TypeStopShare:
		if s.background != "" {
			s.background = ""
			s.redrawLocked()
		}
	case wire.TypeScreenshot:
		var f wire.Frame
		if err := env.Decode(&f); err != nil {
			return err
		}
		if s.opts.OnScreenshot != nil {
			s.opts.OnScreenshot(env.AuthorID, f.Image)
		}
	case wire.TypeRecognizedText:
		var rt wire.RecognizedText
		if err := env.Decode(&rt); err != nil {
			return err
		}
		s.addLabelLocked(Label{Author: env.AuthorID, Text: rt.Text, X: rt.X, Y: rt.Y})
	case wire.TypeSignal:
		data, err := wire.DecodeSignal(env)
		if err != nil {
			return err
		}
		if s.opts.OnSignal != nil {
			s.opts.OnSignal(env.AuthorID, data)
		}
	case wire.TypeStartShare:
		// arbitration only, the relay keeps it
	}
	return nil
}

func (s *Session) remoteDrawStart(env wire.Envelope) error {
	if env.AuthorID == "" {
		return errNoAuthor
	}
	var ds wire.DrawStart
	if err := env.Decode(&ds); err != nil {
		return err
	}
	// A lost drawEnd leaves the previous stroke open; commit it first.
	if s.store.HasOpenStroke(env.AuthorID) {
		s.endRemoteLocked(env.AuthorID)
	}
	if err := s.store.BeginStroke(env.AuthorID); err != nil {
		return err
	}
	s.remote[env.AuthorID] = &remoteBrush{
		last:  point{ds.X, ds.Y},
		color: ds.Color,
		size:  float64(ds.BrushSize),
	}
	return nil
}

func (s *Session) remoteDraw(env wire.Envelope) error {
	if env.AuthorID == "" {
		return errNoAuthor
	}
	var d wire.Draw
	if err := env.Decode(&d); err != nil {
		return err
	}
	// A lost drawStart still yields ink.
	if !s.store.HasOpenStroke(env.AuthorID) {
		if err := s.store.BeginStroke(env.AuthorID); err != nil {
			return err
		}
	}
	seg := d.Segment()
	if err := s.store.AppendSegment(env.AuthorID, seg); err != nil {
		return err
	}
	if b, ok := s.remote[env.AuthorID]; ok {
		b.last = point{seg.X, seg.Y}
	}
	s.surface.DrawSegment(seg)
	return nil
}

func (s *Session) remoteDrawEnd(env wire.Envelope) error {
	if env.AuthorID == "" {
		return errNoAuthor
	}
	if !s.store.HasOpenStroke(env.AuthorID) {
		return nil
	}
	s.endRemoteLocked(env.AuthorID)
	return nil
}

func (s *Session) endRemoteLocked(author domain.AuthorID) {
	delete(s.remote, author)
	trace, err := s.store.EndStroke(author)
	if err != nil || len(trace) == 0 {
		return
	}
	s.commitBoxLocked(trace)
}
