package img

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/devanshuDesai/cse252d-sp21-hw3/num"
	"github.com/pkg/errors"
)

// Number of images per row in a batch grid
var GridColumns = 8

// SaveImages writes a [batch, 3, height, width] array as a grid of images to a PNG file.
// Values are rescaled so the minimum over the whole batch is black and the maximum is white.
func SaveImages(x *num.Array, path string) error {
	dims := x.Dims()
	if len(dims) != 4 || dims[1] != 3 {
		return errors.Errorf("SaveImages: expecting [batch, 3, height, width] array, got %v", dims)
	}
	batch, h, w := dims[0], dims[2], dims[3]
	lo, hi := minMax(x.Data)
	scale := float32(1)
	if hi > lo {
		scale = 1 / (hi - lo)
	}
	cols := GridColumns
	if batch < cols {
		cols = batch
	}
	rows := (batch + cols - 1) / cols
	dst := image.NewRGBA(image.Rect(0, 0, cols*w, rows*h))
	for i := 0; i < batch; i++ {
		src := &RGBImage{Pix: x.Sample(i).Data, Width: w, Height: h}
		x0, y0 := (i%cols)*w, (i/cols)*h
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := src.RGBAt(x, y)
				dst.Set(x0+x, y0+y, RGB{R: (c.R - lo) * scale, G: (c.G - lo) * scale, B: (c.B - lo) * scale})
			}
		}
	}
	return writePNG(dst, path)
}

// SaveLabel writes the argmax class of a [batch, classes, height, width] array as colors from cmap.
// Pixels where mask is zero are drawn black. The first rows*cols samples are tiled into the output.
func SaveLabel(label, mask *num.Array, cmap Colormap, path string, rows, cols int) error {
	dims := label.Dims()
	if len(dims) != 4 {
		return errors.Errorf("SaveLabel: expecting 4d array, got %v", dims)
	}
	batch, h, w := dims[0], dims[2], dims[3]
	if mask.Size() != batch*h*w {
		return errors.Errorf("SaveLabel: mask shape %v does not match label %v", mask.Dims(), dims)
	}
	n := rows * cols
	if n > batch {
		n = batch
	}
	classes := num.Unhot(label)
	black := color.RGBA{A: 0xff}
	dst := image.NewRGBA(image.Rect(0, 0, cols*w, rows*h))
	for i := 0; i < n; i++ {
		x0, y0 := (i%cols)*w, (i/cols)*h
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				ix := i*h*w + y*w + x
				c := black
				if mask.Data[ix] > 0 {
					c = cmap.Color(int(classes[ix]))
				}
				dst.SetRGBA(x0+x, y0+y, c)
			}
		}
	}
	return writePNG(dst, path)
}

func minMax(data []float32) (lo, hi float32) {
	if len(data) == 0 {
		return 0, 0
	}
	lo, hi = data[0], data[0]
	for _, v := range data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func writePNG(m image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "error creating image file")
	}
	if err = png.Encode(f, m); err != nil {
		f.Close()
		return errors.Wrapf(err, "error encoding %s", path)
	}
	return f.Close()
}
