package domain

// LayoutID selects how participant boxes tile the canvas.
type LayoutID string

const (
	LayoutSolo      LayoutID = "solo"
	LayoutGroup     LayoutID = "group"
	LayoutGrid      LayoutID = "grid"
	LayoutSpotlight LayoutID = "spotlight"
	LayoutNews      LayoutID = "news"
	LayoutCinema    LayoutID = "cinema"
	LayoutPiP       LayoutID = "pip"
	LayoutScreen    LayoutID = "screen"
)

// KnownLayouts lists every selectable layout.
var KnownLayouts = []LayoutID{
	LayoutSolo, LayoutGroup, LayoutGrid, LayoutSpotlight,
	LayoutNews, LayoutCinema, LayoutPiP, LayoutScreen,
}

// IsValidLayout reports whether id names a known layout.
func IsValidLayout(id LayoutID) bool {
	for _, l := range KnownLayouts {
		if l == id {
			return true
		}
	}
	return false
}

// BoundingBox is a pixel-space rectangle on the canvas.
type BoundingBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

// LayoutResult is one frame's box computation, used atomically within the
// frame even if participant count changes mid-cycle.
type LayoutResult struct {
	Layout    LayoutID
	Boxes     []BoundingBox
	ScreenBox *BoundingBox
}
