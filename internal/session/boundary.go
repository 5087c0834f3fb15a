package session

import (
	"context"

	"github.com/dkeye/Canvas/internal/domain"
)

// Surface is the render target. Calls arrive already ordered; a full redraw
// is Clear, DrawBackground, every segment, boxes, then labels.
type Surface interface {
	Clear()
	DrawBackground(image string)
	DrawSegment(seg domain.Segment)
	DrawBox(box domain.BoundingBox)
	DrawLabel(text string, x, y float64)
}

// Transport is send-only and fire-and-forget. Send must not block.
type Transport interface {
	Send(data []byte) error
}

// FrameSource yields one encoded frame (data-URL) per call.
type FrameSource interface {
	Capture(ctx context.Context) (string, error)
}

type nopSurface struct{}

func (nopSurface) Clear() {}
func (nopSurface) DrawBackground(string) {}
func (nopSurface) DrawSegment(domain.Segment) {}
func (nopSurface) DrawBox(domain.BoundingBox) {}
func (nopSurface) DrawLabel(string, float64, float64) {}
