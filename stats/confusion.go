package stats

import (
	"fmt"
	"math"
	"strings"

	"github.com/devanshuDesai/cse252d-sp21-hw3/num"
	"gonum.org/v1/gonum/stat"
)

// Floor for the accuracy denominator so a class with no pixels scores zero.
const epsilon = 1e-5

// Confusion is a square table of true class (row) against predicted class (column) pixel counts.
type Confusion struct {
	Classes int
	Counts  []int64
}

// NewConfusion returns an empty classes x classes matrix.
func NewConfusion(classes int) *Confusion {
	return &Confusion{Classes: classes, Counts: make([]int64, classes*classes)}
}

// ComputeAccuracy builds the confusion increment for one batch. The predicted class at each pixel is
// the argmax of scores over the channel axis. Only pixels where mask is set are counted.
func ComputeAccuracy(scores *num.Array, labelIndex []int32, mask *num.Array, classes int) *Confusion {
	c := NewConfusion(classes)
	pred := num.Unhot(scores)
	if len(pred) != len(labelIndex) || len(pred) != mask.Size() {
		panic(fmt.Sprintf("ComputeAccuracy: size mismatch pred=%d label=%d mask=%d", len(pred), len(labelIndex), mask.Size()))
	}
	for i, p := range pred {
		if mask.Data[i] <= 0 {
			continue
		}
		t := int(labelIndex[i])
		if t < 0 || t >= classes || int(p) >= classes {
			continue
		}
		c.Counts[t*classes+int(p)]++
	}
	return c
}

// At returns the count for true class t and predicted class p.
func (c *Confusion) At(t, p int) int64 {
	return c.Counts[t*c.Classes+p]
}

// Add accumulates the counts from other.
func (c *Confusion) Add(other *Confusion) {
	if other.Classes != c.Classes {
		panic(fmt.Sprintf("Confusion.Add: class count mismatch %d != %d", other.Classes, c.Classes))
	}
	for i, v := range other.Counts {
		c.Counts[i] += v
	}
}

// Total number of counted pixels.
func (c *Confusion) Total() int64 {
	var n int64
	for _, v := range c.Counts {
		n += v
	}
	return n
}

// Accuracy returns the per class intersection over union as a percentage.
func (c *Confusion) Accuracy() []float64 {
	acc := make([]float64, c.Classes)
	for n := range acc {
		var rowSum, colSum int64
		for k := 0; k < c.Classes; k++ {
			rowSum += c.At(n, k)
			colSum += c.At(k, n)
		}
		inter := c.At(n, n)
		acc[n] = 100 * float64(inter) / math.Max(float64(rowSum+colSum-inter), epsilon)
	}
	return acc
}

// Mean is the arithmetic mean of the values, classes with no pixels included.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

func (c *Confusion) String() string {
	s := []string{}
	for t := 0; t < c.Classes; t++ {
		s = append(s, fmt.Sprint(c.Counts[t*c.Classes:(t+1)*c.Classes]))
	}
	return strings.Join(s, "\n")
}
