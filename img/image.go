// Package img contains routines for loading segmentation images and labels and for writing visualisations.
package img

import (
	"image"
	"image/color"
)

var RGBModel = color.ModelFunc(rgbModel)

// RGB color is stored as a float for each channel with values in range 0-1
type RGB struct {
	R, G, B float32
}

func (c RGB) RGBA() (r, g, b, a uint32) {
	return clampu(c.R, 0, 1), clampu(c.G, 0, 1), clampu(c.B, 0, 1), 0xffff
}

func rgbModel(c color.Color) color.Color {
	if _, ok := c.(RGB); ok {
		return c
	}
	r, g, b, _ := c.RGBA()
	return RGB{R: float32(r) / 0xffff, G: float32(g) / 0xffff, B: float32(b) / 0xffff}
}

// RGBImage type stores the image data as float32 values in row major order with r, g and b color planes stored separately.
// This is the layout of one sample of a [batch, 3, height, width] array.
type RGBImage struct {
	Pix    []float32
	Height int
	Width  int
}

func NewRGB(width, height int) *RGBImage {
	return &RGBImage{Pix: make([]float32, height*width*3), Height: height, Width: width}
}

// NewRGBFrom converts any image to planar form with values scaled to 0-1.
func NewRGBFrom(src image.Image) *RGBImage {
	b := src.Bounds()
	m := NewRGB(b.Dx(), b.Dy())
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			m.Set(x, y, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return m
}

func (m *RGBImage) ColorModel() color.Model {
	return RGBModel
}

func (m *RGBImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

func (m *RGBImage) RGBAt(x, y int) RGB {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return RGB{}
	}
	i, plane := x+y*m.Width, m.Width*m.Height
	return RGB{R: m.Pix[i], G: m.Pix[i+plane], B: m.Pix[i+2*plane]}
}

func (m *RGBImage) At(x, y int) color.Color {
	return m.RGBAt(x, y)
}

func (m *RGBImage) Set(x, y int, c color.Color) {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return
	}
	rgb := rgbModel(c).(RGB)
	i, plane := x+y*m.Width, m.Width*m.Height
	m.Pix[i] = rgb.R
	m.Pix[i+plane] = rgb.G
	m.Pix[i+2*plane] = rgb.B
}

func (m *RGBImage) Pixels(ch int) []float32 {
	if ch >= 0 && ch <= 2 {
		return m.Pix[ch*m.Width*m.Height : (ch+1)*m.Width*m.Height]
	}
	return m.Pix
}

// Normalise subtracts the per channel mean and divides by the standard deviation.
func (m *RGBImage) Normalise(mean, std [3]float32) {
	for ch := 0; ch < 3; ch++ {
		pix := m.Pixels(ch)
		for i, v := range pix {
			pix[i] = (v - mean[ch]) / std[ch]
		}
	}
}

func clamp(x, x0, x1 float32) float32 {
	if x < x0 {
		return x0
	}
	if x > x1 {
		return x1
	}
	return x
}

func clampu(x, x0, x1 float32) uint32 {
	return uint32(clamp(x, x0, x1) * 0xffff)
}
