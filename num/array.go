package num

import (
	"fmt"
)

// Parameters for array printing
var (
	PrintThreshold = 12
	PrintEdgeitems = 4
)

// Array is a general n dimensional float32 tensor similar to a numpy ndarray.
// Data is stored in row major order, so a batch of images has shape [batch, channels, height, width].
type Array struct {
	Data []float32
	dims []int
}

// New allocates a zeroed array with the given shape.
func New(dims ...int) *Array {
	return &Array{Data: make([]float32, Prod(dims)), dims: append([]int{}, dims...)}
}

// NewLike allocates a zeroed array with the same shape as a.
func NewLike(a *Array) *Array {
	return New(a.dims...)
}

// FromSlice wraps data as an array with the given shape.
func FromSlice(data []float32, dims ...int) *Array {
	if len(data) != Prod(dims) {
		panic(fmt.Sprintf("FromSlice: data length %d does not match shape %v", len(data), dims))
	}
	return &Array{Data: data, dims: append([]int{}, dims...)}
}

// Dims returns the shape of the array.
func (a *Array) Dims() []int { return a.dims }

// Size is the total number of elements.
func (a *Array) Size() int { return len(a.Data) }

// Reshape returns a view on the same data with a different shape. A single -1 entry is inferred.
func (a *Array) Reshape(dims ...int) *Array {
	n := len(a.Data)
	dims = append([]int{}, dims...)
	for i := range dims {
		if dims[i] == -1 {
			other := 1
			for j, dim := range dims {
				if i != j {
					if dim == -1 {
						panic("Reshape: can only have single -1 value")
					}
					other *= dim
				}
			}
			dims[i] = n / other
		}
	}
	if Prod(dims) != n {
		panic("reshape must be to array of same size")
	}
	return &Array{Data: a.Data, dims: dims}
}

// Copy returns a deep copy.
func (a *Array) Copy() *Array {
	return &Array{Data: append([]float32{}, a.Data...), dims: append([]int{}, a.dims...)}
}

// Sample returns a view of entry i along the leading (batch) dimension.
func (a *Array) Sample(i int) *Array {
	size := Prod(a.dims[1:])
	return &Array{Data: a.Data[i*size : (i+1)*size], dims: append([]int{}, a.dims[1:]...)}
}

func (a *Array) String() string {
	return format(a.dims, a.Data, 0, "", false)
}

func format(dims []int, data []float32, at int, indent string, dots bool) string {
	var s string
	switch len(dims) {
	case 0:
		if dots {
			s = "    ... "
		} else {
			val := data[at]
			if abs(val) < 1 {
				val = float32(int(10000*val+0.5)) / 10000
			}
			s = fmt.Sprintf("%7.5g ", val)
		}
	case 1:
		s = "["
		for i := 0; i < dims[0]; i++ {
			dots2 := dims[0] > PrintThreshold+1 && i == PrintEdgeitems
			s += format(nil, data, at+i, "", dots || dots2)
			if dots2 {
				i = dims[0] - PrintEdgeitems - 1
			}
		}
		s += "]"
	default:
		stride := Prod(dims[1:])
		s = indent + "[\n"
		for i := 0; i < dims[0]; i++ {
			if dims[0] > PrintThreshold+1 && i == PrintEdgeitems {
				s += indent + "  ...\n"
				i = dims[0] - PrintEdgeitems - 1
				continue
			}
			if len(dims) == 2 {
				s += indent + " " + format(dims[1:], data, at+i*stride, "", false) + "\n"
			} else {
				s += format(dims[1:], data, at+i*stride, indent+" ", false)
			}
		}
		s += indent + "]\n"
	}
	return s
}

func abs(x float32) float32 {
	if x >= 0 {
		return x
	}
	return -x
}

// Product of elements of an integer array. Zero dimension array (scalar) has size 1.
func Prod(arr []int) int {
	prod := 1
	for _, v := range arr {
		prod *= v
	}
	return prod
}

// Check if two arrays are the same shape
func SameShape(xd, yd []int) bool {
	if len(xd) != len(yd) {
		return false
	}
	for i := range xd {
		if xd[i] != yd[i] {
			return false
		}
	}
	return true
}
