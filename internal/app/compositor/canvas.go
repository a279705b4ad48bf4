package compositor

import (
	"image"
	"image/color"

	"github.com/dkeye/Huddle/internal/core"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	background  = color.RGBA{R: 16, G: 16, B: 20, A: 255}
	placeholder = color.RGBA{R: 48, G: 48, B: 56, A: 255}
	labelShade  = color.RGBA{A: 160}
)

// Input is one participant as seen by the compositor.
type Input struct {
	Label string
	Audio core.AudioSource
	Video core.FrameSource
}

// Canvas is the off-screen surface frames are drawn on.
type Canvas struct {
	img *image.RGBA
}

func NewCanvas(w, h int) *Canvas {
	return &Canvas{img: image.NewRGBA(image.Rect(0, 0, w, h))}
}

func (c *Canvas) Image() *image.RGBA { return c.img }

// Draw renders one frame of inputs on the grid.
func (c *Canvas) Draw(inputs []Input) {
	b := c.img.Bounds()
	draw.Draw(c.img, b, image.NewUniform(background), image.Point{}, draw.Src)

	for i, cell := range Layout(len(inputs), b.Dx(), b.Dy()) {
		in := inputs[i]
		var (
			frame image.Image
			ok    bool
		)
		if in.Video != nil {
			frame, ok = in.Video.Frame()
		}
		if ok {
			crop := CoverRect(frame.Bounds(), cell.Dx(), cell.Dy())
			draw.ApproxBiLinear.Scale(c.img, cell, frame, crop, draw.Src, nil)
		} else {
			draw.Draw(c.img, cell.Inset(2), image.NewUniform(placeholder), image.Point{}, draw.Src)
		}
		c.label(cell, in.Label)
	}
}

func (c *Canvas) label(cell image.Rectangle, text string) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	bar := image.Rect(cell.Min.X, cell.Max.Y-face.Height-6, cell.Max.X, cell.Max.Y)
	draw.Draw(c.img, bar, image.NewUniform(labelShade), image.Point{}, draw.Over)

	d := font.Drawer{
		Dst:  c.img,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(cell.Min.X+4, cell.Max.Y-4-face.Descent),
	}
	d.DrawString(text)
}
