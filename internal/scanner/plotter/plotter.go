// Package plotter renders published frames as top-down PNG scatter plots.
package plotter

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/lidarscan/internal/scanner"
	"github.com/banshee-data/lidarscan/internal/scanner/encoding"
)

// Layer is one published frame and the anchor its records are relative to.
type Layer struct {
	Name    string
	Records []scanner.Record
	Anchor  r3.Vec
}

// XZ returns the world X/Z coordinates of the valid records of l.
func (l Layer) XZ() plotter.XYs {
	points := encoding.Decode(l.Records, l.Anchor)
	xys := make(plotter.XYs, len(points))
	for i, p := range points {
		xys[i] = plotter.XY{X: p.X, Y: p.Z}
	}
	return xys
}

// WriteFramePNG plots every layer as a coloured X/Z scatter and saves the
// plot to path, creating the parent directory if needed.
func WriteFramePNG(path, title string, layers ...Layer) error {
	if len(layers) == 0 {
		return errors.New("no layers to plot")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Z (m)"
	p.Legend.Top = true

	colors := palette(len(layers))
	total := 0
	for i, l := range layers {
		xys := l.XZ()
		if len(xys) == 0 {
			continue
		}
		s, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("scatter %q: %w", l.Name, err)
		}
		s.GlyphStyle.Color = colors[i]
		s.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(s)
		p.Legend.Add(fmt.Sprintf("%s (%d)", l.Name, len(xys)), s)
		total += len(xys)
	}
	if total == 0 {
		// Keep the axes meaningful for an empty frame.
		p.X.Min, p.X.Max = -1, 1
		p.Y.Min, p.Y.Max = -1, 1
	}

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}

// palette returns n evenly spaced hues.
func palette(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := range colors {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	c := (1 - math.Abs(2*l-1)) * s
	hp := h * 6
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))
	var rf, gf, bf float64
	switch int(hp) % 6 {
	case 0:
		rf, gf = c, x
	case 1:
		rf, gf = x, c
	case 2:
		gf, bf = c, x
	case 3:
		gf, bf = x, c
	case 4:
		rf, bf = x, c
	default:
		rf, bf = c, x
	}
	m := l - c/2
	return uint8(math.Round((rf + m) * 255)), uint8(math.Round((gf + m) * 255)), uint8(math.Round((bf + m) * 255))
}
