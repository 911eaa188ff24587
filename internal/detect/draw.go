package detect

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const outlineWidth = 2

// drawPolygon strokes the closed polygon through pts. Points outside the
// canvas are clamped to its bounds.
func drawPolygon(dst *image.RGBA, pts []image.Point, c color.RGBA) {
	if dst == nil || len(pts) < 2 {
		return
	}
	bounds := dst.Bounds()
	if bounds.Empty() {
		return
	}
	for i := range pts {
		a := clamp(pts[i], bounds)
		b := clamp(pts[(i+1)%len(pts)], bounds)
		drawLine(dst, a, b, c)
	}
}

// drawLine is Bresenham with a square pen of outlineWidth pixels.
func drawLine(dst *image.RGBA, a, b image.Point, c color.RGBA) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	err := dx + dy
	x, y := a.X, a.Y
	for {
		plot(dst, x, y, c)
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func plot(dst *image.RGBA, x, y int, c color.RGBA) {
	for oy := 0; oy < outlineWidth; oy++ {
		for ox := 0; ox < outlineWidth; ox++ {
			p := image.Point{X: x + ox, Y: y + oy}
			if p.In(dst.Rect) {
				dst.SetRGBA(p.X, p.Y, c)
			}
		}
	}
}

// drawLabel writes text just above the top-most point of the polygon.
func drawLabel(dst *image.RGBA, pts []image.Point, text string, c color.RGBA) {
	if dst == nil || len(pts) == 0 || text == "" {
		return
	}
	bounds := dst.Bounds()
	if bounds.Empty() {
		return
	}
	anchor := clamp(pts[0], bounds)
	for _, p := range pts[1:] {
		p = clamp(p, bounds)
		if p.Y < anchor.Y || (p.Y == anchor.Y && p.X < anchor.X) {
			anchor = p
		}
	}
	face := basicfont.Face7x13
	baseline := anchor.Y - 4
	if baseline-face.Ascent < bounds.Min.Y {
		baseline = bounds.Min.Y + face.Ascent
	}
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(anchor.X, baseline),
	}
	drawer.DrawString(text)
}

func clamp(p image.Point, r image.Rectangle) image.Point {
	if p.X < r.Min.X {
		p.X = r.Min.X
	}
	if p.X >= r.Max.X {
		p.X = r.Max.X - 1
	}
	if p.Y < r.Min.Y {
		p.Y = r.Min.Y
	}
	if p.Y >= r.Max.Y {
		p.Y = r.Max.Y - 1
	}
	return p
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
