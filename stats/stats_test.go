package stats

import (
	"bytes"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devanshuDesai/cse252d-sp21-hw3/num"
)

const eps = 1e-9

// scores for 1 sample of 2 classes over 4 pixels: predicted classes 0, 1, 1, 0
func testBatch() (*num.Array, []int32) {
	scores := num.FromSlice([]float32{
		0.9, 0.1, 0.2, 0.6,
		0.1, 0.8, 0.7, 0.3,
	}, 1, 2, 2, 2)
	return scores, []int32{0, 1, 0, 0}
}

func TestComputeAccuracy(t *testing.T) {
	scores, labels := testBatch()
	mask := num.FromSlice([]float32{1, 1, 1, 1}, 1, 1, 2, 2)
	c := ComputeAccuracy(scores, labels, mask, 2)
	expect := []int64{2, 1, 0, 1}
	for i, v := range expect {
		if c.Counts[i] != v {
			t.Fatalf("got\n%s\nexpect %v", c, expect)
		}
	}
	acc := c.Accuracy()
	// class 0: 2/(3+2-2), class 1: 1/(1+2-1)
	want := []float64{100 * 2.0 / 3.0, 50}
	for i := range want {
		if math.Abs(acc[i]-want[i]) > eps {
			t.Errorf("class %d accuracy got %g expect %g", i, acc[i], want[i])
		}
	}
}

func TestMaskedPixels(t *testing.T) {
	scores, labels := testBatch()
	mask := num.FromSlice([]float32{1, 0, 0, 1}, 1, 1, 2, 2)
	c := ComputeAccuracy(scores, labels, mask, 2)
	if c.Total() != 2 || c.At(0, 0) != 2 {
		t.Errorf("masked pixels counted:\n%s", c)
	}
}

func TestAccumulate(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const classes, batch, h, w = 4, 3, 5, 6
	total := NewConfusion(classes)
	var valid int64
	for iter := 0; iter < 20; iter++ {
		scores := num.New(batch, classes, h, w)
		for i := range scores.Data {
			scores.Data[i] = rng.Float32()
		}
		labels := make([]int32, batch*h*w)
		mask := num.New(batch, 1, h, w)
		for i := range labels {
			labels[i] = int32(rng.Intn(classes))
			if rng.Intn(5) > 0 {
				mask.Data[i] = 1
				valid++
			}
		}
		total.Add(ComputeAccuracy(scores, labels, mask, classes))
		if total.Total() != valid {
			t.Fatalf("iter %d: total %d != valid pixels %d", iter, total.Total(), valid)
		}
		for _, v := range total.Counts {
			if v < 0 {
				t.Fatal("negative count", v)
			}
		}
		for n, a := range total.Accuracy() {
			if a < 0 || a > 100 {
				t.Fatalf("class %d accuracy %g out of range", n, a)
			}
		}
	}
}

func TestAbsentClass(t *testing.T) {
	c := NewConfusion(3)
	c.Counts[0] = 10
	acc := c.Accuracy()
	if acc[0] != 100 || acc[1] != 0 || acc[2] != 0 {
		t.Errorf("got %v", acc)
	}
	if m := Mean(acc); math.Abs(m-100.0/3) > eps {
		t.Errorf("mean got %g", m)
	}
	if m := Mean(nil); m != 0 {
		t.Errorf("empty mean got %g", m)
	}
}

func TestMeanOrder(t *testing.T) {
	acc := []float64{12.5, 80, 0, 33.3, 99}
	rev := make([]float64, len(acc))
	for i, v := range acc {
		rev[len(acc)-1-i] = v
	}
	if a, b := Mean(acc), Mean(rev); math.Abs(a-b) > eps {
		t.Errorf("mean depends on order: %g != %g", a, b)
	}
}

func TestAverage(t *testing.T) {
	var avg Average
	for _, x := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		avg.Add(x)
	}
	if avg.Mean != 5 || avg.Last != 9 {
		t.Errorf("got mean %g last %g", avg.Mean, avg.Last)
	}
	if math.Abs(avg.StdDev-2.138089935) > 1e-6 {
		t.Errorf("got stddev %g", avg.StdDev)
	}
	if html := string(avg.HTML()); !strings.Contains(html, "5.0000") {
		t.Errorf("got html %s", html)
	}
}

func TestPlots(t *testing.T) {
	values := []float64{3, 2, 1.5, 1.2, 1.1}
	p, err := NewPlot("loss", values)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteSVG(&buf, p, 400, 300); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "<svg") {
		t.Error("not an svg document")
	}
	path := filepath.Join(t.TempDir(), "history.svg")
	if err := SaveHistory(path, values, []float64{1, 2, 3, 4, 5}); err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Error("history plot not written", err)
	}
}
