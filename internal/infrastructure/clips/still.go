// Package clips loads file-backed media used by broadcast playout.
package clips

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"stagecast/internal/core/domain"

	xdraw "golang.org/x/image/draw"
)

// Still is a single decoded image served as an always-ready video source.
// The broadcast orchestrator holds one over the composite for intro playout.
type Still struct {
	frame *domain.VideoFrame
}

// LoadStill decodes the image at path and scales it onto a width by height
// RGBA frame.
func LoadStill(path string, width, height int) (*Still, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open clip %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode clip %s: %w", path, err)
	}

	scaled := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	return &Still{frame: &domain.VideoFrame{
		Width:  width,
		Height: height,
		Data:   scaled.Pix,
	}}, nil
}

func (s *Still) Latest() (*domain.VideoFrame, bool) { return s.frame, true }
