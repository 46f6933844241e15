package nnet

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/devanshuDesai/cse252d-sp21-hw3/num"
)

// Channels in each encoder feature map
var FeatureMaps = 8

// input image channels
const inChannels = 3

// one encoder level: fixed pooling of the input image followed by a trainable 1x1 convolution
type stage struct {
	factor   int
	dilation int
	global   bool
}

func (s stage) String() string {
	switch {
	case s.global:
		return "global pool"
	case s.dilation > 0:
		return fmt.Sprintf("pool /%d dilated mean %d", s.factor, s.dilation)
	default:
		return fmt.Sprintf("pool /%d", s.factor)
	}
}

var stages = map[Variant][Levels]stage{
	Plain:    {{factor: 1}, {factor: 2}, {factor: 4}, {factor: 8}, {factor: 16}},
	Dilation: {{factor: 1}, {factor: 2}, {factor: 4}, {factor: 4, dilation: 2}, {factor: 4, dilation: 4}},
	SPP:      {{factor: 1}, {factor: 2}, {factor: 4}, {factor: 8}, {global: true}},
}

type encoder struct {
	stages [Levels]stage
	convs  [Levels]*pointwise
}

func newEncoder(v Variant) *encoder {
	e := &encoder{stages: stages[v]}
	for i := range e.convs {
		e.convs[i] = newPointwise(fmt.Sprintf("encoder.level%d", i+1), inChannels, FeatureMaps, true)
	}
	return e
}

func (e *encoder) InitParams(rng *rand.Rand) {
	for _, l := range e.convs {
		l.InitParams(rng)
	}
}

func (e *encoder) Params() []*Param {
	var p []*Param
	for _, l := range e.convs {
		p = append(p, l.Params()...)
	}
	return p
}

func (e *encoder) Encode(x *num.Array) (f Features) {
	for i, s := range e.stages {
		var in *num.Array
		if s.global {
			in = globalPool(x)
		} else {
			in = avgPool(x, s.factor)
			if s.dilation > 0 {
				in = dilatedMean(in, s.dilation)
			}
		}
		f[i] = e.convs[i].Fprop(in)
	}
	return f
}

// the pooling is applied to the network input so no gradient is needed below each convolution
func (e *encoder) Backward(grad Features) {
	for i, l := range e.convs {
		l.Bprop(grad[i], false)
	}
}

func (e *encoder) String() string {
	s := []string{"encoder:"}
	for i, l := range e.convs {
		s = append(s, fmt.Sprintf("%2d: %-28s %s", i+1, e.stages[i], l))
	}
	return strings.Join(s, "\n")
}

// decoder upsamples the features to the input size, concatenates them with the image and classifies
// each pixel. Scores are negative log probabilities so the most likely class has the lowest score.
type decoder struct {
	classes int
	conv    *pointwise
	feats   Features
	offsets [Levels]int
	prob    *num.Array
}

func newDecoder(classes int) *decoder {
	return &decoder{
		classes: classes,
		conv:    newPointwise("decoder.classifier", inChannels+Levels*FeatureMaps, classes, false),
	}
}

func (d *decoder) InitParams(rng *rand.Rand) { d.conv.InitParams(rng) }

func (d *decoder) Params() []*Param { return d.conv.Params() }

func (d *decoder) Decode(x *num.Array, f Features) *num.Array {
	dims := x.Dims()
	batch, h, w := dims[0], dims[2], dims[3]
	plane := h * w
	cin := inChannels
	for i, fm := range f {
		d.offsets[i] = cin
		cin += fm.Dims()[1]
	}
	concat := num.New(batch, cin, h, w)
	for b := 0; b < batch; b++ {
		copy(concat.Data[b*cin*plane:], x.Sample(b).Data)
	}
	for i, fm := range f {
		upsample(fm, concat, d.offsets[i])
	}
	d.feats = f
	logits := d.conv.Fprop(concat)
	pred := num.NewLike(logits)
	d.prob = num.NewLike(logits)
	for b := 0; b < batch; b++ {
		z := logits.Sample(b).Data
		out, prob := pred.Sample(b).Data, d.prob.Sample(b).Data
		for p := 0; p < plane; p++ {
			max := z[p]
			for c := 1; c < d.classes; c++ {
				if v := z[c*plane+p]; v > max {
					max = v
				}
			}
			var sum float64
			for c := 0; c < d.classes; c++ {
				sum += math.Exp(float64(z[c*plane+p] - max))
			}
			lse := float64(max) + math.Log(sum)
			for c := 0; c < d.classes; c++ {
				v := lse - float64(z[c*plane+p])
				out[c*plane+p] = float32(v)
				prob[c*plane+p] = float32(math.Exp(-v))
			}
		}
	}
	return pred
}

func (d *decoder) Backward(grad *num.Array) (res Features) {
	dims := grad.Dims()
	batch, plane := dims[0], dims[2]*dims[3]
	dLogits := num.NewLike(grad)
	for b := 0; b < batch; b++ {
		g, prob, out := grad.Sample(b).Data, d.prob.Sample(b).Data, dLogits.Sample(b).Data
		for p := 0; p < plane; p++ {
			var sum float32
			for c := 0; c < d.classes; c++ {
				sum += g[c*plane+p]
			}
			for c := 0; c < d.classes; c++ {
				out[c*plane+p] = prob[c*plane+p]*sum - g[c*plane+p]
			}
		}
	}
	dConcat := d.conv.Bprop(dLogits, true)
	for i, fm := range d.feats {
		res[i] = downsample(dConcat, d.offsets[i], fm)
	}
	return res
}

func (d *decoder) String() string {
	return fmt.Sprintf("decoder:\n    upsample+concat %d maps  %s  neg log softmax", Levels, d.conv)
}
