package normalize

import (
	"fmt"
	"strings"
)

// Profile selects how aggressively a source image is recompressed.
type Profile int

const (
	// None copies the source bytes verbatim.
	None Profile = iota
	Medium
	Minimum
)

// Quality returns the JPEG quality used when re-encoding.
func (p Profile) Quality() int {
	switch p {
	case Medium:
		return 80
	case Minimum:
		return 50
	default:
		return 100
	}
}

func (p Profile) String() string {
	switch p {
	case None:
		return "none"
	case Medium:
		return "medium"
	case Minimum:
		return "minimum"
	default:
		return fmt.Sprintf("profile(%d)", int(p))
	}
}

// ParseProfile accepts the names printed by String.
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "original":
		return None, nil
	case "medium", "":
		return Medium, nil
	case "minimum", "min", "small":
		return Minimum, nil
	}
	return None, fmt.Errorf("unknown compression profile %q (want none, medium or minimum)", s)
}

// Bounds is the maximum raster box for a portrait image. Landscape rasters are
// checked against the transposed box.
type Bounds struct {
	Width  int
	Height int
}

// DefaultBounds is the 1200x1600 box shared by all recompressing profiles.
var DefaultBounds = Bounds{Width: 1200, Height: 1600}

// For returns the box matched to the orientation of a w x h raster.
func (b Bounds) For(w, h int) Bounds {
	short, long := b.Width, b.Height
	if short > long {
		short, long = long, short
	}
	if w > h {
		return Bounds{Width: long, Height: short}
	}
	return Bounds{Width: short, Height: long}
}

// Contains reports whether a w x h raster already fits the box.
func (b Bounds) Contains(w, h int) bool {
	return w <= b.Width && h <= b.Height
}
