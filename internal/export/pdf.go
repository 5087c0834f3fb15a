// Package export renders committed canvas state to PDF.
package export

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dkeye/Canvas/internal/domain"
	"github.com/jung-kurt/gofpdf"
)

type Label struct {
	Text string
	X, Y float64
}

// Drawing is one snapshot of a canvas, in canvas pixel coordinates. The
// PDF page has the same size in points.
type Drawing struct {
	Width, Height float64
	Strokes       []domain.Stroke
	Boxes         []domain.BoundingBox
	Labels        []Label
}

func WritePDF(w io.Writer, d Drawing) error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("export: invalid page %vx%v", d.Width, d.Height)
	}
	orientation := "P"
	if d.Width > d.Height {
		orientation = "L"
	}
	p := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: orientation,
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: d.Width, Ht: d.Height},
	})
	p.SetMargins(0, 0, 0)
	p.SetAutoPageBreak(false, 0)
	p.AddPage()
	p.SetLineCapStyle("round")
	p.SetLineJoinStyle("round")

	for _, st := range d.Strokes {
		for _, seg := range st.Segments {
			r, g, b := parseColor(seg.Color)
			p.SetDrawColor(r, g, b)
			p.SetLineWidth(max(seg.Width, 0.5))
			p.Line(seg.PrevX, seg.PrevY, seg.X, seg.Y)
		}
	}

	if len(d.Boxes) > 0 {
		p.SetDrawColor(0, 120, 255)
		p.SetLineWidth(1)
		p.SetDashPattern([]float64{4, 2}, 0)
		for _, box := range d.Boxes {
			p.Rect(box.X, box.Y, box.Width, box.Height, "D")
		}
		p.SetDashPattern(nil, 0)
	}

	p.SetFont("Helvetica", "", 14)
	p.SetTextColor(255, 0, 0)
	for _, l := range d.Labels {
		p.Text(l.X, l.Y, l.Text)
	}

	return p.Output(w)
}

func WriteFile(path string, d Drawing) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := WritePDF(f, d); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// parseColor reads #rgb and #rrggbb; anything else is black.
func parseColor(s string) (int, int, int) {
	s = strings.TrimPrefix(s, "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
