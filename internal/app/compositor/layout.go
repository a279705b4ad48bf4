// Package compositor renders a session into one recording: every known video
// source on a grid canvas and every known audio source summed on one bus.
package compositor

import "image"

// Grid returns the column and row count for n tiles: one tile fills the
// canvas, up to four use two columns, more use three.
func Grid(n int) (cols, rows int) {
	switch {
	case n <= 1:
		return 1, 1
	case n <= 4:
		cols = 2
	default:
		cols = 3
	}
	return cols, (n + cols - 1) / cols
}

// Layout splits a w×h canvas into n cells in row-major order.
func Layout(n, w, h int) []image.Rectangle {
	if n <= 0 {
		return nil
	}
	cols, rows := Grid(n)
	cw, ch := w/cols, h/rows
	cells := make([]image.Rectangle, n)
	for i := range cells {
		x, y := (i%cols)*cw, (i/cols)*ch
		cells[i] = image.Rect(x, y, x+cw, y+ch)
	}
	return cells
}

// CoverRect is the centered part of src that, scaled, fills a w×h cell
// without distortion.
func CoverRect(src image.Rectangle, w, h int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw == 0 || sh == 0 || w == 0 || h == 0 {
		return src
	}
	// compare aspect ratios without floats: sw/sh vs w/h
	if sw*h > w*sh {
		cw := sh * w / h
		x := src.Min.X + (sw-cw)/2
		return image.Rect(x, src.Min.Y, x+cw, src.Max.Y)
	}
	ch := sw * h / w
	y := src.Min.Y + (sh-ch)/2
	return image.Rect(src.Min.X, y, src.Max.X, y+ch)
}
