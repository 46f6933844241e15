package img

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// Name of the colormap variable in a MAT file
const ColormapVar = "cmap"

// Colormap maps a class index to a display color.
type Colormap []color.RGBA

// Color for class, out of range classes are black.
func (c Colormap) Color(class int) color.RGBA {
	if class < 0 || class >= len(c) {
		return color.RGBA{A: 0xff}
	}
	return c[class]
}

// LoadColormap reads an N x 3 color table from a MAT file (cmap variable) or a .npy file.
// Tables with all values <= 1 are taken as unit RGB and scaled to 0-255.
func LoadColormap(path string) (Colormap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening colormap")
	}
	defer f.Close()
	var rows int
	var at func(i, j int) float64
	if strings.ToLower(filepath.Ext(path)) == ".npy" {
		var m mat.Dense
		if err = npyio.Read(f, &m); err != nil {
			return nil, errors.Wrapf(err, "error reading %s", path)
		}
		var cols int
		rows, cols = m.Dims()
		if cols != 3 {
			return nil, errors.Errorf("%s: colormap must have 3 columns, got %d", path, cols)
		}
		at = m.At
	} else {
		vars, err := ReadMat(f)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading %s", path)
		}
		m, ok := vars[ColormapVar]
		if !ok {
			return nil, errors.Errorf("%s: no %s variable", path, ColormapVar)
		}
		if len(m.Dims) != 2 || m.Dims[1] != 3 {
			return nil, errors.Errorf("%s: colormap must be N x 3, got %v", path, m.Dims)
		}
		rows, at = m.Dims[0], m.At
	}
	return newColormap(rows, at), nil
}

func newColormap(rows int, at func(i, j int) float64) Colormap {
	scale := 1.0
	max := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < 3; j++ {
			if v := at(i, j); v > max {
				max = v
			}
		}
	}
	if max <= 1 {
		scale = 255
	}
	cmap := make(Colormap, rows)
	for i := range cmap {
		cmap[i] = color.RGBA{
			R: uint8(clamp(float32(at(i, 0)*scale+0.5), 0, 255)),
			G: uint8(clamp(float32(at(i, 1)*scale+0.5), 0, 255)),
			B: uint8(clamp(float32(at(i, 2)*scale+0.5), 0, 255)),
			A: 0xff,
		}
	}
	return cmap
}

// VOCColormap generates the standard Pascal VOC label colors for n classes.
func VOCColormap(n int) Colormap {
	cmap := make(Colormap, n)
	for i := range cmap {
		var r, g, b uint8
		c := i
		for j := uint(0); j < 8; j++ {
			r |= uint8(c&1) << (7 - j)
			g |= uint8((c>>1)&1) << (7 - j)
			b |= uint8((c>>2)&1) << (7 - j)
			c >>= 3
		}
		cmap[i] = color.RGBA{R: r, G: g, B: b, A: 0xff}
	}
	return cmap
}
