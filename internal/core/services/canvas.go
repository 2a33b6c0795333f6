package services

import (
	"image"
	"image/color"
	"image/draw"

	"stagecast/internal/core/domain"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Canvas wraps an RGBA raster with the handful of primitives the compositor
// needs. All operations are deterministic: the same sequence of calls yields
// byte-identical pixels.
type Canvas struct {
	img    *image.RGBA
	width  int
	height int
}

func NewCanvas(width, height int) *Canvas {
	return &Canvas{
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
		width:  width,
		height: height,
	}
}

func (c *Canvas) Width() int  { return c.width }
func (c *Canvas) Height() int { return c.height }

// Fill paints the whole canvas.
func (c *Canvas) Fill(col color.RGBA) {
	draw.Draw(c.img, c.img.Bounds(), &image.Uniform{C: col}, image.Point{}, draw.Src)
}

// FillRect paints a box, clipped to the canvas.
func (c *Canvas) FillRect(box domain.BoundingBox, col color.RGBA) {
	r := image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height).Intersect(c.img.Bounds())
	draw.Draw(c.img, r, &image.Uniform{C: col}, image.Point{}, draw.Src)
}

// StrokeRect paints a rectangular ring of the given thickness.
func (c *Canvas) StrokeRect(box domain.BoundingBox, col color.RGBA, thickness int) {
	if thickness <= 0 {
		return
	}
	c.FillRect(domain.BoundingBox{X: box.X, Y: box.Y, Width: box.Width, Height: thickness}, col)
	c.FillRect(domain.BoundingBox{X: box.X, Y: box.Y + box.Height - thickness, Width: box.Width, Height: thickness}, col)
	c.FillRect(domain.BoundingBox{X: box.X, Y: box.Y, Width: thickness, Height: box.Height}, col)
	c.FillRect(domain.BoundingBox{X: box.X + box.Width - thickness, Y: box.Y, Width: thickness, Height: box.Height}, col)
}

// DrawFrame blits a video frame into a box with nearest-neighbor scaling.
func (c *Canvas) DrawFrame(frame *domain.VideoFrame, box domain.BoundingBox) {
	if frame == nil || frame.Width == 0 || frame.Height == 0 || box.Width <= 0 || box.Height <= 0 {
		return
	}
	for dy := 0; dy < box.Height; dy++ {
		ty := box.Y + dy
		if ty < 0 || ty >= c.height {
			continue
		}
		sy := dy * frame.Height / box.Height
		for dx := 0; dx < box.Width; dx++ {
			tx := box.X + dx
			if tx < 0 || tx >= c.width {
				continue
			}
			sx := dx * frame.Width / box.Width
			si := (sy*frame.Width + sx) * 4
			di := c.img.PixOffset(tx, ty)
			copy(c.img.Pix[di:di+4], frame.Data[si:si+4])
		}
	}
}

// DrawText renders a single line with the fixed 7x13 face; (x, y) is the
// baseline origin.
func (c *Canvas) DrawText(x, y int, text string, col color.RGBA) {
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// TextWidth measures a line in pixels under the fixed face.
func (c *Canvas) TextWidth(text string) int {
	return font.MeasureString(basicfont.Face7x13, text).Ceil()
}

// Snapshot copies the raster into a frame.
func (c *Canvas) Snapshot(seq uint64) *domain.VideoFrame {
	data := make([]byte, len(c.img.Pix))
	copy(data, c.img.Pix)
	return &domain.VideoFrame{
		Width:  c.width,
		Height: c.height,
		Data:   data,
		Seq:    seq,
	}
}

// CopyFrom overwrites this canvas with the pixels of another of equal size.
func (c *Canvas) CopyFrom(other *Canvas) {
	copy(c.img.Pix, other.img.Pix)
}
