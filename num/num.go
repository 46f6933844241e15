// Package num contains numeric Array processing routines used by the segmentation network.
package num

import (
	"fmt"
)

// Fill array with a scalar value
func Fill(a *Array, scalar float32) {
	for i := range a.Data {
		a.Data[i] = scalar
	}
}

// Scale array in place: x = alpha*x
func Scale(alpha float32, x *Array) {
	for i := range x.Data {
		x.Data[i] *= alpha
	}
}

// Axpy performs y = alpha*x + y
func Axpy(alpha float32, x, y *Array) {
	if x.Size() != y.Size() {
		panic(fmt.Sprintf("Axpy: size mismatch %v %v", x.Dims(), y.Dims()))
	}
	for i, v := range x.Data {
		y.Data[i] += alpha * v
	}
}

// Neg returns a new array with every element negated.
func Neg(x *Array) *Array {
	res := NewLike(x)
	for i, v := range x.Data {
		res.Data[i] = -v
	}
	return res
}

// MulMean returns the mean of the element wise product of x and y.
func MulMean(x, y *Array) float64 {
	if x.Size() != y.Size() {
		panic(fmt.Sprintf("MulMean: size mismatch %v %v", x.Dims(), y.Dims()))
	}
	if x.Size() == 0 {
		return 0
	}
	var sum float64
	for i, v := range x.Data {
		sum += float64(v) * float64(y.Data[i])
	}
	return sum / float64(x.Size())
}

// Onehot converts class indexes to a one hot encoded [batch, classes, height, width] array.
// Indexes outside the range 0..classes-1 leave all channels at zero.
func Onehot(index []int32, batch, classes, height, width int) *Array {
	plane := height * width
	if len(index) != batch*plane {
		panic(fmt.Sprintf("Onehot: got %d indexes for %d samples of %dx%d", len(index), batch, height, width))
	}
	res := New(batch, classes, height, width)
	for b := 0; b < batch; b++ {
		for p := 0; p < plane; p++ {
			c := int(index[b*plane+p])
			if c >= 0 && c < classes {
				res.Data[(b*classes+c)*plane+p] = 1
			}
		}
	}
	return res
}

// Unhot returns the index of the maximum channel at each pixel of a [batch, channels, height, width] array.
// Ties resolve to the lowest channel.
func Unhot(x *Array) []int32 {
	dims := x.Dims()
	if len(dims) != 4 {
		panic(fmt.Sprintf("Unhot: expecting 4d array, got %v", dims))
	}
	batch, channels, plane := dims[0], dims[1], dims[2]*dims[3]
	res := make([]int32, batch*plane)
	for b := 0; b < batch; b++ {
		base := b * channels * plane
		for p := 0; p < plane; p++ {
			best := x.Data[base+p]
			ix := 0
			for c := 1; c < channels; c++ {
				if v := x.Data[base+c*plane+p]; v > best {
					best, ix = v, c
				}
			}
			res[b*plane+p] = int32(ix)
		}
	}
	return res
}
