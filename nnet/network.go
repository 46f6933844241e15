// Package nnet contains routines for constructing and training the segmentation network.
package nnet

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/devanshuDesai/cse252d-sp21-hw3/num"
)

// Number of multi scale feature maps passed from the encoder to the decoder.
const Levels = 5

// Features are the encoder outputs, finest resolution first.
type Features [Levels]*num.Array

// Variant selects the receptive field strategy of the network.
type Variant int

const (
	Plain Variant = iota
	Dilation
	SPP
)

func (v Variant) String() string {
	switch v {
	case Dilation:
		return "dilation"
	case SPP:
		return "spp"
	default:
		return "plain"
	}
}

// VariantOf returns the variant selected by the config flags, spp takes precedence over dilation.
func VariantOf(c Config) Variant {
	switch {
	case c.IsSpp:
		return SPP
	case c.IsDilation:
		return Dilation
	default:
		return Plain
	}
}

// Encoder extracts five feature maps from a [batch, 3, height, width] image array.
type Encoder interface {
	ParamLayer
	Encode(x *num.Array) Features
	// Backward accumulates parameter gradients given the gradient at each feature map.
	Backward(grad Features)
}

// Decoder computes per pixel class scores of shape [batch, classes, height, width] from the image and its features.
type Decoder interface {
	ParamLayer
	Decode(x *num.Array, f Features) *num.Array
	// Backward accumulates parameter gradients and returns the gradient at each feature map.
	Backward(grad *num.Array) Features
}

// Net is an encoder and decoder pair.
type Net struct {
	Variant Variant
	Encoder Encoder
	Decoder Decoder
}

// NewNet builds the encoder and decoder for the variant and initialises the weights.
func NewNet(v Variant, classes int, rng *rand.Rand) *Net {
	n := &Net{
		Variant: v,
		Encoder: newEncoder(v),
		Decoder: newDecoder(classes),
	}
	n.Encoder.InitParams(rng)
	n.Decoder.InitParams(rng)
	return n
}

// Forward runs encode then decode.
func (n *Net) Forward(x *num.Array) *num.Array {
	return n.Decoder.Decode(x, n.Encoder.Encode(x))
}

// Backward propagates the gradient at the prediction through decoder and encoder.
func (n *Net) Backward(grad *num.Array) {
	n.Encoder.Backward(n.Decoder.Backward(grad))
}

// Params returns encoder parameters followed by decoder parameters.
func (n *Net) Params() []*Param {
	return append(n.Encoder.Params(), n.Decoder.Params()...)
}

// LoadPretrained copies the parameters stored at path into the encoder where name and shape match.
// Other entries are skipped. Returns the number of parameters copied.
func (n *Net) LoadPretrained(path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	src, err := LoadParams(path)
	if err != nil {
		return 0, err
	}
	return CopyParams(n.Encoder.Params(), src), nil
}

func (n *Net) String() string {
	s := []string{fmt.Sprintf("== Network (%s) ==", n.Variant)}
	s = append(s, fmt.Sprint(n.Encoder), fmt.Sprint(n.Decoder))
	return strings.Join(s, "\n")
}

// Print network weights
func (n *Net) PrintWeights() {
	for _, p := range n.Params() {
		fmt.Fprintf(os.Stdout, "== %s ==\n%s\n", p.Name, p.W)
	}
}

// ZeroGrad clears the gradient of every parameter.
func ZeroGrad(params []*Param) {
	for _, p := range params {
		num.Fill(p.Grad, 0)
	}
}
