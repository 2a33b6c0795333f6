package services

import (
	"math"

	"stagecast/internal/core/domain"
)

// Layout geometry constants. The grid gap and PiP box size are fixed by
// design; thumbnails always split their strip into equal slices.
const (
	soloWidthRatio    = 0.6
	spotlightSplit    = 0.75
	screenStripRatio  = 0.2
	gridGap           = 8
	pipBoxWidth       = 240
	pipBoxHeight      = 180
	pipGap            = 12
)

// ComputeLayout maps (layout, participant count, screen share, container) to
// participant bounding boxes. Pure and deterministic: identical arguments
// always yield identical boxes, and the result never has zero boxes.
func ComputeLayout(layout domain.LayoutID, count int, screenShareActive bool, width, height int) domain.LayoutResult {
	if count <= 0 {
		// Full-container placeholder keeps the overlay stack positioned
		// consistently when nobody is on stage.
		return domain.LayoutResult{
			Layout: layout,
			Boxes:  []domain.BoundingBox{{X: 0, Y: 0, Width: width, Height: height}},
		}
	}

	if layout == domain.LayoutScreen && screenShareActive {
		return screenLayout(count, width, height)
	}

	switch layout {
	case domain.LayoutSolo:
		if count == 1 {
			return domain.LayoutResult{Layout: layout, Boxes: soloBox(width, height)}
		}
		// Single-occupant semantics should make this unreachable; tile
		// instead of clipping participants if it happens.
		return domain.LayoutResult{Layout: layout, Boxes: autoGrid(count, width, height, 0)}
	case domain.LayoutGrid:
		return domain.LayoutResult{Layout: layout, Boxes: autoGrid(count, width, height, gridGap)}
	case domain.LayoutSpotlight:
		return domain.LayoutResult{Layout: layout, Boxes: spotlight(count, width, height)}
	case domain.LayoutNews, domain.LayoutCinema:
		return domain.LayoutResult{Layout: layout, Boxes: columnSplit(count, width, height)}
	case domain.LayoutPiP:
		return domain.LayoutResult{Layout: layout, Boxes: pictureInPicture(count, width, height)}
	default:
		// Group, screen-without-share and anything unrecognized tile as a grid.
		return domain.LayoutResult{Layout: layout, Boxes: autoGrid(count, width, height, 0)}
	}
}

func soloBox(width, height int) []domain.BoundingBox {
	w := int(float64(width) * soloWidthRatio)
	h := w * 9 / 16
	return []domain.BoundingBox{{
		X:      (width - w) / 2,
		Y:      (height - h) / 2,
		Width:  w,
		Height: h,
	}}
}

// autoGrid tiles count boxes row-major: cols = ceil(sqrt(n)), rows = ceil(n/cols).
func autoGrid(count, width, height, gap int) []domain.BoundingBox {
	cols := int(math.Ceil(math.Sqrt(float64(count))))
	rows := (count + cols - 1) / cols

	cellW := width / cols
	cellH := height / rows

	boxes := make([]domain.BoundingBox, 0, count)
	for i := 0; i < count; i++ {
		col := i % cols
		row := i / cols
		boxes = append(boxes, domain.BoundingBox{
			X:      col*cellW + gap,
			Y:      row*cellH + gap,
			Width:  cellW - 2*gap,
			Height: cellH - 2*gap,
		})
	}
	return boxes
}

func spotlight(count, width, height int) []domain.BoundingBox {
	mainH := int(float64(height) * spotlightSplit)
	stripH := height - mainH

	boxes := []domain.BoundingBox{{
		X:      0,
		Y:      stripH,
		Width:  width,
		Height: mainH,
	}}

	rest := count - 1
	if rest == 0 {
		return boxes
	}
	thumbW := width / rest
	for i := 0; i < rest; i++ {
		boxes = append(boxes, domain.BoundingBox{
			X:      i * thumbW,
			Y:      0,
			Width:  thumbW,
			Height: stripH,
		})
	}
	return boxes
}

// columnSplit is the fixed half-and-half used by the news and cinema
// layouts. Extra participants beyond the two columns receive no box; callers
// must not render past the returned slice.
func columnSplit(count, width, height int) []domain.BoundingBox {
	half := width / 2
	boxes := []domain.BoundingBox{{X: 0, Y: 0, Width: half, Height: height}}
	if count > 1 {
		boxes = append(boxes, domain.BoundingBox{X: half, Y: 0, Width: width - half, Height: height})
	}
	return boxes
}

func pictureInPicture(count, width, height int) []domain.BoundingBox {
	boxes := []domain.BoundingBox{{X: 0, Y: 0, Width: width, Height: height}}
	for i := 1; i < count; i++ {
		offset := (i - 1) * (pipBoxHeight + pipGap)
		boxes = append(boxes, domain.BoundingBox{
			X:      width - pipBoxWidth - pipGap,
			Y:      height - pipBoxHeight - pipGap - offset,
			Width:  pipBoxWidth,
			Height: pipBoxHeight,
		})
	}
	return boxes
}

// screenLayout gives the shared screen the dominant region and shrinks every
// participant into an equal-slice thumbnail strip along the bottom.
func screenLayout(count, width, height int) domain.LayoutResult {
	stripH := int(float64(height) * screenStripRatio)
	screen := domain.BoundingBox{X: 0, Y: 0, Width: width, Height: height - stripH}

	thumbW := width / count
	boxes := make([]domain.BoundingBox, 0, count)
	for i := 0; i < count; i++ {
		boxes = append(boxes, domain.BoundingBox{
			X:      i * thumbW,
			Y:      height - stripH,
			Width:  thumbW,
			Height: stripH,
		})
	}

	return domain.LayoutResult{
		Layout:    domain.LayoutScreen,
		Boxes:     boxes,
		ScreenBox: &screen,
	}
}
