package img

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// Label value used by VOC for object boundaries, always masked out.
const Boundary = 255

// Channel statistics of the ImageNet training set used to normalise input images.
var (
	ImageNetMean   = [3]float32{0.485, 0.456, 0.406}
	ImageNetStdDev = [3]float32{0.229, 0.224, 0.225}
)

// Sample is a single training example.
type Sample struct {
	Image []float32 // 3 x height x width planar
	Label []int32   // height x width class index
	Mask  []float32 // height x width, 1 where the label is valid
}

// SegData is a segmentation data set in Pascal VOC layout: a list of ids with
// <imageRoot>/<id>.jpg input images and <labelRoot>/<id>.png label maps.
type SegData struct {
	ImageRoot string
	LabelRoot string
	ImageExt  string
	LabelExt  string
	IDs       []string
	Mean      [3]float32
	StdDev    [3]float32
	classes   int
	width     int
	height    int
}

// NewSegData reads the file list and returns a data set which resizes every sample to width x height.
func NewSegData(imageRoot, labelRoot, fileList string, classes, width, height int) (*SegData, error) {
	ids, err := ReadFileList(fileList)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errors.Errorf("no samples listed in %s", fileList)
	}
	return &SegData{
		ImageRoot: imageRoot,
		LabelRoot: labelRoot,
		ImageExt:  ".jpg",
		LabelExt:  ".png",
		IDs:       ids,
		Mean:      ImageNetMean,
		StdDev:    ImageNetStdDev,
		classes:   classes,
		width:     width,
		height:    height,
	}, nil
}

// ReadFileList returns the first field of each non blank line.
func ReadFileList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening file list")
	}
	defer f.Close()
	var ids []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		if fields := strings.Fields(s.Text()); len(fields) > 0 {
			ids = append(ids, fields[0])
		}
	}
	if err := s.Err(); err != nil {
		return nil, errors.Wrapf(err, "error reading %s", path)
	}
	return ids, nil
}

func (d *SegData) Len() int { return len(d.IDs) }

func (d *SegData) Classes() int { return d.classes }

// Shape returns channels, height, width
func (d *SegData) Shape() []int { return []int{3, d.height, d.width} }

// Sample loads, resizes and normalises sample i.
func (d *SegData) Sample(i int) (*Sample, error) {
	id := d.IDs[i]
	src, err := decodeFile(filepath.Join(d.ImageRoot, id+d.ImageExt))
	if err != nil {
		return nil, err
	}
	lbl, err := decodeFile(filepath.Join(d.LabelRoot, id+d.LabelExt))
	if err != nil {
		return nil, err
	}
	dst := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	im := NewRGBFrom(dst)
	im.Normalise(d.Mean, d.StdDev)
	s := &Sample{Image: im.Pix}
	s.Label, s.Mask = labelIndex(lbl, d.width, d.height, d.classes)
	return s, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening sample")
	}
	defer f.Close()
	m, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error decoding %s", path)
	}
	return m, nil
}

// labelIndex samples the label map at width x height with nearest neighbour lookup. Values outside
// 0..classes-1 are stored as Boundary with the mask cleared.
func labelIndex(m image.Image, width, height, classes int) (label []int32, mask []float32) {
	b := m.Bounds()
	label = make([]int32, width*height)
	mask = make([]float32, width*height)
	lookup := classLookup(m)
	for y := 0; y < height; y++ {
		sy := b.Min.Y + (2*y+1)*b.Dy()/(2*height)
		for x := 0; x < width; x++ {
			sx := b.Min.X + (2*x+1)*b.Dx()/(2*width)
			c := lookup(sx, sy)
			if c >= 0 && c < classes {
				label[x+y*width] = int32(c)
				mask[x+y*width] = 1
			} else {
				label[x+y*width] = Boundary
			}
		}
	}
	return label, mask
}

// classLookup reads the palette index, gray level or VOC color at a pixel.
func classLookup(m image.Image) func(x, y int) int {
	switch m := m.(type) {
	case *image.Paletted:
		return func(x, y int) int { return int(m.ColorIndexAt(x, y)) }
	case *image.Gray:
		return func(x, y int) int { return int(m.GrayAt(x, y).Y) }
	default:
		index := make(map[color.RGBA]int)
		for i, c := range VOCColormap(256) {
			index[c] = i
		}
		return func(x, y int) int {
			r, g, b, _ := m.At(x, y).RGBA()
			c := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 0xff}
			if i, ok := index[c]; ok {
				return i
			}
			return Boundary
		}
	}
}

func (d *SegData) String() string {
	return fmt.Sprintf("%d samples from %s, %dx%d, %d classes", d.Len(), d.ImageRoot, d.width, d.height, d.classes)
}
