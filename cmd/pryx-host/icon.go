package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
)

// generateTrayIcon renders a 22x22 terminal-prompt glyph for the system
// tray: a chevron and a cursor bar, the closest thing pryx has to a
// logo. On macOS this is used as a template icon, so it is drawn as a
// black shape on a transparent background and the system tints it for
// dark/light mode.
func generateTrayIcon() []byte {
	const size = 22
	img := image.NewNRGBA(image.Rect(0, 0, size, size))

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			px := float64(x) + 0.5
			py := float64(y) + 0.5

			if a := promptCoverage(px, py); a > 0 {
				img.SetNRGBA(x, y, color.NRGBA{A: uint8(255 * a)})
			}
		}
	}

	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

// promptCoverage returns the opacity of the glyph at point (px, py):
// 1 inside a stroke, 0 outside, with a soft falloff over the last
// half-pixel so the strokes stay legible at 22x22.
//
// Glyph layout (22x22 canvas):
//
//	Chevron: (5,6) to (10,11) to (5,16), stroke width 3
//	Cursor:  horizontal bar from (12,15) to (18,15), stroke width 3
func promptCoverage(px, py float64) float64 {
	const halfW = 1.5

	d := distToSegment(px, py, 5, 6, 10, 11)
	if d2 := distToSegment(px, py, 10, 11, 5, 16); d2 < d {
		d = d2
	}
	if d3 := distToSegment(px, py, 12, 15, 18, 15); d3 < d {
		d = d3
	}

	switch {
	case d <= halfW-0.5:
		return 1
	case d >= halfW:
		return 0
	default:
		return (halfW - d) * 2
	}
}

// distToSegment returns the distance from point (px, py) to the line
// segment (x1,y1)-(x2,y2).
func distToSegment(px, py, x1, y1, x2, y2 float64) float64 {
	dx, dy := x2-x1, y2-y1
	lenSq := dx*dx + dy*dy
	t := ((px-x1)*dx + (py-y1)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	cx, cy := x1+t*dx, y1+t*dy
	return math.Hypot(px-cx, py-cy)
}
