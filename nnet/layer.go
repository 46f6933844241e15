package nnet

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/devanshuDesai/cse252d-sp21-hw3/num"
	"gonum.org/v1/gonum/mat"
)

// Param is a named trainable array with its gradient.
type Param struct {
	Name string
	W    *num.Array
	Grad *num.Array
}

func newParam(name string, dims ...int) *Param {
	return &Param{Name: name, W: num.New(dims...), Grad: num.New(dims...)}
}

// ParamLayer is a layer with weight and bias parameters
type ParamLayer interface {
	InitParams(rng *rand.Rand)
	Params() []*Param
}

// 1x1 convolution: a linear map of the channels at each pixel followed by an optional relu.
type pointwise struct {
	nin, nout int
	relu      bool
	w, b      *Param
	input     *num.Array
	output    *num.Array
}

func newPointwise(name string, nin, nout int, relu bool) *pointwise {
	return &pointwise{
		nin:  nin,
		nout: nout,
		relu: relu,
		w:    newParam(name+".weight", nout, nin),
		b:    newParam(name+".bias", nout),
	}
}

func (l *pointwise) String() string {
	act := ""
	if l.relu {
		act = " relu"
	}
	return fmt.Sprintf("conv1x1 %d->%d%s", l.nin, l.nout, act)
}

// Weights are uniform in +-1/sqrt(nin), bias starts at zero.
func (l *pointwise) InitParams(rng *rand.Rand) {
	scale := 1 / math.Sqrt(float64(l.nin))
	for i := range l.w.W.Data {
		l.w.W.Data[i] = float32((2*rng.Float64() - 1) * scale)
	}
	num.Fill(l.b.W, 0)
}

func (l *pointwise) Params() []*Param { return []*Param{l.w, l.b} }

// Fprop maps a [batch, nin, height, width] array to [batch, nout, height, width].
func (l *pointwise) Fprop(in *num.Array) *num.Array {
	dims := in.Dims()
	if len(dims) != 4 || dims[1] != l.nin {
		panic(fmt.Sprintf("%s: invalid input shape %v", l, dims))
	}
	batch, plane := dims[0], dims[2]*dims[3]
	l.input = in
	l.output = num.New(batch, l.nout, dims[2], dims[3])
	W := dense(l.w.W.Data, l.nout, l.nin)
	var Y mat.Dense
	for n := 0; n < batch; n++ {
		X := dense(in.Sample(n).Data, l.nin, plane)
		Y.Mul(W, X)
		out := l.output.Sample(n).Data
		for c := 0; c < l.nout; c++ {
			bias := float64(l.b.W.Data[c])
			for p := 0; p < plane; p++ {
				v := Y.At(c, p) + bias
				if l.relu && v < 0 {
					v = 0
				}
				out[c*plane+p] = float32(v)
			}
		}
	}
	return l.output
}

// Bprop accumulates the parameter gradients and returns the gradient with respect to the input if needInput is set.
func (l *pointwise) Bprop(grad *num.Array, needInput bool) *num.Array {
	dims := grad.Dims()
	batch, plane := dims[0], dims[2]*dims[3]
	W := dense(l.w.W.Data, l.nout, l.nin)
	dW := mat.NewDense(l.nout, l.nin, nil)
	var inGrad *num.Array
	if needInput {
		inGrad = num.NewLike(l.input)
	}
	var tmp, dX mat.Dense
	for n := 0; n < batch; n++ {
		g := grad.Sample(n).Data
		dY := mat.NewDense(l.nout, plane, nil)
		out := l.output.Sample(n).Data
		for c := 0; c < l.nout; c++ {
			sum := 0.0
			for p := 0; p < plane; p++ {
				v := float64(g[c*plane+p])
				if l.relu && out[c*plane+p] <= 0 {
					v = 0
				}
				dY.Set(c, p, v)
				sum += v
			}
			l.b.Grad.Data[c] += float32(sum)
		}
		X := dense(l.input.Sample(n).Data, l.nin, plane)
		tmp.Mul(dY, X.T())
		dW.Add(dW, &tmp)
		if needInput {
			dX.Mul(W.T(), dY)
			data := inGrad.Sample(n).Data
			for c := 0; c < l.nin; c++ {
				for p := 0; p < plane; p++ {
					data[c*plane+p] = float32(dX.At(c, p))
				}
			}
		}
	}
	for i := 0; i < l.nout; i++ {
		for j := 0; j < l.nin; j++ {
			l.w.Grad.Data[i*l.nin+j] += float32(dW.At(i, j))
		}
	}
	return inGrad
}

func dense(data []float32, rows, cols int) *mat.Dense {
	d := make([]float64, len(data))
	for i, v := range data {
		d[i] = float64(v)
	}
	return mat.NewDense(rows, cols, d)
}

// average pool with a factor x factor window, partial windows at the edges average the pixels they cover
func avgPool(in *num.Array, factor int) *num.Array {
	if factor == 1 {
		return in
	}
	dims := in.Dims()
	n, c, h, w := dims[0], dims[1], dims[2], dims[3]
	oh, ow := (h+factor-1)/factor, (w+factor-1)/factor
	out := num.New(n, c, oh, ow)
	count := make([]float32, oh*ow)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			count[(y/factor)*ow+x/factor]++
		}
	}
	for i := 0; i < n*c; i++ {
		src := in.Data[i*h*w : (i+1)*h*w]
		dst := out.Data[i*oh*ow : (i+1)*oh*ow]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst[(y/factor)*ow+x/factor] += src[y*w+x]
			}
		}
		for j := range dst {
			dst[j] /= count[j]
		}
	}
	return out
}

// 3x3 mean filter with taps spaced dilation pixels apart, taps outside the image are ignored
func dilatedMean(in *num.Array, dilation int) *num.Array {
	dims := in.Dims()
	n, c, h, w := dims[0], dims[1], dims[2], dims[3]
	out := num.NewLike(in)
	for i := 0; i < n*c; i++ {
		src := in.Data[i*h*w : (i+1)*h*w]
		dst := out.Data[i*h*w : (i+1)*h*w]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var sum, taps float32
				for dy := -dilation; dy <= dilation; dy += dilation {
					for dx := -dilation; dx <= dilation; dx += dilation {
						yy, xx := y+dy, x+dx
						if yy >= 0 && yy < h && xx >= 0 && xx < w {
							sum += src[yy*w+xx]
							taps++
						}
					}
				}
				dst[y*w+x] = sum / taps
			}
		}
	}
	return out
}

// average over the whole image giving a [batch, channels, 1, 1] array
func globalPool(in *num.Array) *num.Array {
	dims := in.Dims()
	planes := in.Reshape(dims[0]*dims[1], -1)
	out := num.New(dims[0], dims[1], 1, 1)
	for i := range out.Data {
		pix := planes.Sample(i).Data
		var sum float32
		for _, v := range pix {
			sum += v
		}
		out.Data[i] = sum / float32(len(pix))
	}
	return out
}

// source row or column for nearest neighbour upsampling from size src to size dst
func nearest(i, dst, src int) int {
	return i * src / dst
}

// upsample copies each feature map pixel to the height x width grid it covers, writing channels
// starting at offset into out which has shape [batch, channels, height, width].
func upsample(in, out *num.Array, offset int) {
	idims, odims := in.Dims(), out.Dims()
	n, c, ih, iw := idims[0], idims[1], idims[2], idims[3]
	oc, oh, ow := odims[1], odims[2], odims[3]
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			src := in.Data[(b*c+ch)*ih*iw:]
			dst := out.Data[(b*oc+offset+ch)*oh*ow:]
			for y := 0; y < oh; y++ {
				sy := nearest(y, oh, ih)
				for x := 0; x < ow; x++ {
					dst[y*ow+x] = src[sy*iw+nearest(x, ow, iw)]
				}
			}
		}
	}
}

// downsample is the adjoint of upsample: gradients from out are summed back onto the feature map grid.
func downsample(grad *num.Array, offset int, like *num.Array) *num.Array {
	gdims, ldims := grad.Dims(), like.Dims()
	gc, gh, gw := gdims[1], gdims[2], gdims[3]
	n, c, ih, iw := ldims[0], ldims[1], ldims[2], ldims[3]
	res := num.NewLike(like)
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			src := grad.Data[(b*gc+offset+ch)*gh*gw:]
			dst := res.Data[(b*c+ch)*ih*iw:]
			for y := 0; y < gh; y++ {
				sy := nearest(y, gh, ih)
				for x := 0; x < gw; x++ {
					dst[sy*iw+nearest(x, gw, iw)] += src[y*gw+x]
				}
			}
		}
	}
	return res
}
