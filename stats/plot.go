package stats

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgsvg"
)

// number of iterations used for the smoothed curve
const emaN = 50

// NewPlot returns a line plot of per iteration values with an exponential moving average overlaid.
func NewPlot(title string, values []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "iteration"
	p.X.Padding, p.Y.Padding = 0, 0
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	if len(values) == 0 {
		return p, nil
	}
	raw := make(plotter.XYs, len(values))
	smooth := make(plotter.XYs, len(values))
	var avg EMA
	for i, v := range values {
		raw[i].X, raw[i].Y = float64(i+1), v
		avg = EMA(avg.Add(v, emaN))
		smooth[i].X, smooth[i].Y = float64(i+1), float64(avg)
	}
	for i, pts := range []plotter.XYs{raw, smooth} {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, errors.Wrap(err, "plot "+title)
		}
		line.Width = vg.Points(1 + float64(i))
		line.Color = plotutil.Color(i)
		p.Add(line)
		if i == 0 {
			p.Legend.Add(title, line)
		} else {
			p.Legend.Add("average", line)
		}
	}
	return p, nil
}

// svgDPI is the nominal SVG resolution (formerly vgsvg.DPI, no longer exported by gonum/plot).
const svgDPI = 72

// WriteSVG renders plot to w in SVG format with the given size in pixels.
func WriteSVG(w io.Writer, p *plot.Plot, width, height int) error {
	wt, err := p.WriterTo(vg.Inch*vg.Length(width)/svgDPI, vg.Inch*vg.Length(height)/svgDPI, "svg")
	if err != nil {
		return errors.Wrap(err, "error writing plot")
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveHistory writes the loss and accuracy curves stacked in a single SVG file.
func SaveHistory(path string, loss, accuracy []float64) error {
	lossPlot, err := NewPlot("loss", loss)
	if err != nil {
		return err
	}
	accPlot, err := NewPlot("mean accuracy %", accuracy)
	if err != nil {
		return err
	}
	plots := [][]*plot.Plot{{lossPlot}, {accPlot}}
	canvas := vgsvg.New(8*vg.Inch, 8*vg.Inch)
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadY: vg.Points(8)}
	cells := plot.Align(plots, tiles, draw.New(canvas))
	for i := range plots {
		plots[i][0].Draw(cells[i][0])
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "error creating plot file")
	}
	if _, err = canvas.WriteTo(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "error writing %s", path)
	}
	return f.Close()
}
