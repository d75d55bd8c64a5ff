package assemble

import "math"

// Rect is a box in page space, in points, origin bottom-left.
type Rect struct {
	X, Y, W, H float64
}

// Page describes the page every image is placed on.
type Page struct {
	Width  float64
	Height float64
	Margin float64
}

// A4 portrait with 20pt margins.
var A4 = Page{Width: 595, Height: 842, Margin: 20}

// Placement is where one image lands on its page.
type Placement struct {
	Page  Rect
	Image Rect
}

// Content returns the usable box inside the margins.
func (p Page) Content() Rect {
	return Rect{
		X: p.Margin,
		Y: p.Margin,
		W: math.Max(0, p.Width-2*p.Margin),
		H: math.Max(0, p.Height-2*p.Margin),
	}
}

// Place scales a w x h image to the largest size that fits the content box
// with its aspect ratio intact, centred horizontally and hung from the top
// margin.
func (p Page) Place(w, h int) Placement {
	box := p.Content()
	pl := Placement{Page: Rect{W: p.Width, H: p.Height}}
	if w <= 0 || h <= 0 || box.W <= 0 || box.H <= 0 {
		return pl
	}

	aspect := float64(w) / float64(h)
	dw := box.W
	dh := dw / aspect
	if dh > box.H {
		dh = box.H
		dw = dh * aspect
	}
	pl.Image = Rect{
		X: box.X + (box.W-dw)/2,
		Y: box.Y + box.H - dh,
		W: dw,
		H: dh,
	}
	return pl
}
