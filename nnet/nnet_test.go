package nnet

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/devanshuDesai/cse252d-sp21-hw3/img"
	"github.com/devanshuDesai/cse252d-sp21-hw3/num"
	"github.com/pkg/errors"
)

// in memory training samples: channel values are the sample number scaled, label alternates per sample
type testData struct {
	n, classes, h, w int
	fail             int
	// first pixel of every sample is a boundary pixel
	boundary bool
}

func (d testData) Len() int       { return d.n }
func (d testData) Classes() int   { return d.classes }
func (d testData) Shape() []int   { return []int{3, d.h, d.w} }
func (d testData) String() string { return fmt.Sprintf("testData %d samples", d.n) }

func (d testData) Sample(i int) (*img.Sample, error) {
	if d.fail > 0 && i == d.fail {
		return nil, errors.New("bad sample")
	}
	plane := d.h * d.w
	s := &img.Sample{
		Image: make([]float32, 3*plane),
		Label: make([]int32, plane),
		Mask:  make([]float32, plane),
	}
	for j := range s.Image {
		s.Image[j] = float32(i+1) / float32(d.n)
	}
	for j := range s.Label {
		s.Label[j] = int32(i % d.classes)
		s.Mask[j] = 1
	}
	if d.boundary {
		s.Label[0], s.Mask[0] = img.Boundary, 0
	}
	return s, nil
}

func randInput(rng *rand.Rand, dims ...int) *num.Array {
	a := num.New(dims...)
	for i := range a.Data {
		a.Data[i] = 0.1 + 0.9*rng.Float32()
	}
	return a
}

func TestParseFlags(t *testing.T) {
	c, err := ParseFlags(nil, os.Stderr)
	if err != nil {
		t.Fatal(err)
	}
	t.Log(c)
	if c.Experiment != "train" || c.ModelRoot != "checkpoint" || c.BatchSize != 64 || c.InitLR != 0.1 {
		t.Error("unexpected defaults")
	}
	c, err = ParseFlags([]string{"-isDilation", "-isSpp", "-nepoch", "3"}, os.Stderr)
	if err != nil {
		t.Fatal(err)
	}
	if c.IsDilation || !c.IsSpp || c.Experiment != "train_spp" || c.ModelRoot != "checkpoint_spp" || c.NEpoch != 3 {
		t.Errorf("spp should override dilation: %+v", c)
	}
	if VariantOf(c) != SPP {
		t.Error("expecting spp variant, got", VariantOf(c))
	}
	c, err = ParseFlags([]string{"-isDilation"}, os.Stderr)
	if err != nil {
		t.Fatal(err)
	}
	if c.Experiment != "train_dilation" || VariantOf(c) != Dilation {
		t.Errorf("dilation not applied: %+v", c)
	}
}

func TestParseFlagsInvalid(t *testing.T) {
	for _, args := range [][]string{
		{"-nepoch", "abc"},
		{"-batchSize", "0"},
		{"-initLR", "-1"},
		{"extra"},
	} {
		if _, err := ParseFlags(args, io.Discard); err == nil {
			t.Error("expecting error for", args)
		} else {
			t.Log(args, err)
		}
	}
}

func TestSetup(t *testing.T) {
	c := DefaultConfig()
	c.Experiment = filepath.Join(t.TempDir(), "exp")
	c.Password = "secret"
	if err := Setup(c); err != nil {
		t.Fatal(err)
	}
	c2, err := LoadConfig(filepath.Join(c.Experiment, "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if c2.Password != "" {
		t.Error("password should not be saved")
	}
	c2.Password = c.Password
	if c2 != c {
		t.Errorf("config mismatch: got %+v", c2)
	}
	if _, err := os.Stat(filepath.Join(c.Experiment, "config.go")); err != nil {
		t.Error("source not copied:", err)
	}
}

// write name under dir creating parent directories
func writeFile(t *testing.T, dir, name, text string) {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatal(err)
	}
}

func chdir(t *testing.T, dir string) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestSetupTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module test\n")
	writeFile(t, root, "cmd/train/main.go", "package main\n")
	writeFile(t, root, "nnet/config.go", "package nnet\n")
	writeFile(t, root, "nnet/notes.txt", "not copied")
	writeFile(t, root, "_examples/x/x.go", "package x\n")
	writeFile(t, root, "train_spp/config.json", "{}")
	writeFile(t, root, "train_spp/nnet/config.go", "package nnet\n")
	chdir(t, root)

	c := DefaultConfig()
	c.Experiment = "train"
	if err := Setup(c); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"config.json", "go.mod", "cmd/train/main.go", "nnet/config.go"} {
		if _, err := os.Stat(filepath.Join(root, "train", name)); err != nil {
			t.Error("missing", name, err)
		}
	}
	for _, name := range []string{"nnet/notes.txt", "_examples", "train_spp", "train"} {
		if _, err := os.Stat(filepath.Join(root, "train", name)); !os.IsNotExist(err) {
			t.Error("should not be copied:", name)
		}
	}
	// a second run skips its own earlier snapshot
	if err := Setup(c); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "train", "train")); !os.IsNotExist(err) {
		t.Error("experiment directory copied into itself")
	}
}

func TestSetupModuleRoot(t *testing.T) {
	chdir(t, "..")
	c := DefaultConfig()
	c.Experiment = filepath.Join(t.TempDir(), "exp")
	if err := Setup(c); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"go.mod", "cmd/train/main.go", "nnet/config.go", "num/array.go", "stats/confusion.go", "img/data.go", "web/train.go"} {
		if _, err := os.Stat(filepath.Join(c.Experiment, name)); err != nil {
			t.Error("missing", name, err)
		}
	}
}

func TestNetShapes(t *testing.T) {
	expect := map[Variant][Levels]int{
		Plain:    {8, 4, 2, 1, 1},
		Dilation: {8, 4, 2, 2, 2},
		SPP:      {8, 4, 2, 1, 1},
	}
	rng := rand.New(rand.NewSource(1))
	for v, sizes := range expect {
		net := NewNet(v, 4, rng)
		t.Log(net)
		x := randInput(rng, 2, 3, 8, 8)
		f := net.Encoder.Encode(x)
		for i, fm := range f {
			want := []int{2, FeatureMaps, sizes[i], sizes[i]}
			if !num.SameShape(fm.Dims(), want) {
				t.Errorf("%s level %d: got %v want %v", v, i+1, fm.Dims(), want)
			}
		}
		pred := net.Decoder.Decode(x, f)
		if !num.SameShape(pred.Dims(), []int{2, 4, 8, 8}) {
			t.Errorf("%s: prediction shape %v", v, pred.Dims())
		}
		// scores are negative log probabilities so exp(-score) sums to 1 over the classes
		for p := 0; p < 64; p++ {
			var sum float64
			for c := 0; c < 4; c++ {
				sum += math.Exp(-float64(pred.Data[c*64+p]))
			}
			if math.Abs(sum-1) > 1e-4 {
				t.Fatalf("%s: probabilities sum to %g", v, sum)
			}
		}
	}
}

func TestGradient(t *testing.T) {
	const eps = 1e-2
	rng := rand.New(rand.NewSource(42))
	for _, v := range []Variant{Plain, Dilation, SPP} {
		net := NewNet(v, 3, rng)
		// positive weights and inputs keep the encoder relus away from zero
		for _, p := range net.Encoder.Params() {
			for i := range p.W.Data {
				p.W.Data[i] = 0.2 + 0.3*rng.Float32()
			}
		}
		x := randInput(rng, 2, 3, 8, 8)
		index := make([]int32, 2*64)
		for i := range index {
			index[i] = int32(rng.Intn(3))
		}
		label := num.Onehot(index, 2, 3, 8, 8)
		loss := func() float64 { return num.MulMean(net.Forward(x), label) }

		ZeroGrad(net.Params())
		net.Forward(x)
		grad := label.Copy()
		num.Scale(1/float32(grad.Size()), grad)
		net.Backward(grad)

		for _, p := range net.Params() {
			for _, i := range []int{0, p.W.Size() / 2, p.W.Size() - 1} {
				save := p.W.Data[i]
				p.W.Data[i] = save + eps
				l1 := loss()
				p.W.Data[i] = save - eps
				l2 := loss()
				p.W.Data[i] = save
				numeric := (l1 - l2) / (2 * eps)
				analytic := float64(p.Grad.Data[i])
				if math.Abs(numeric-analytic) > 1e-4+0.05*math.Abs(analytic) {
					t.Errorf("%s %s[%d]: analytic %.6g numeric %.6g", v, p.Name, i, analytic, numeric)
				}
			}
		}
	}
}

func TestPretrained(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	src := NewNet(Plain, 21, rng)
	path := filepath.Join(t.TempDir(), "encoder_2.pth")
	// a shape mismatch and an entry the encoder does not have should both be skipped
	params := append([]*Param{}, src.Encoder.Params()...)
	params[1] = newParam("encoder.level1.bias", 3)
	params = append(params, newParam("decoder.classifier.weight", 21, 43))
	if err := SaveParams(path, params); err != nil {
		t.Fatal(err)
	}

	dst := NewNet(Plain, 2, rng)
	bias := dst.Encoder.Params()[1].W.Copy()
	n, err := dst.LoadPretrained(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := len(src.Encoder.Params()) - 1; n != want {
		t.Errorf("copied %d parameters, expecting %d", n, want)
	}
	sp, dp := src.Encoder.Params(), dst.Encoder.Params()
	for i := range dp {
		if dp[i].Name == "encoder.level1.bias" {
			if fmt.Sprint(dp[i].W.Data) != fmt.Sprint(bias.Data) {
				t.Error("mismatched parameter should not be copied")
			}
			continue
		}
		if fmt.Sprint(dp[i].W.Data) != fmt.Sprint(sp[i].W.Data) {
			t.Errorf("%s not copied", dp[i].Name)
		}
	}
	if n, err := dst.LoadPretrained(""); n != 0 || err != nil {
		t.Error("empty path should be a no op")
	}
	if _, err := dst.LoadPretrained(filepath.Join(t.TempDir(), "missing.pth")); err == nil {
		t.Error("expecting error for missing file")
	}
}

func TestHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loss.npy")
	values := []float64{0.5, 0.25, 0.125}
	if err := WriteHistory(path, values); err != nil {
		t.Fatal(err)
	}
	res, err := ReadHistory(path)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(res) != fmt.Sprint(values) {
		t.Errorf("got %v", res)
	}
}

func TestSGD(t *testing.T) {
	p := newParam("w", 2)
	p.W.Data[0], p.W.Data[1] = 1, -1
	opt := NewSGD([]*Param{p}, 0.1, 0.9, 0.5)
	t.Log(opt)
	p.Grad.Data[0], p.Grad.Data[1] = 1, 0
	opt.Step()
	// g = [1.5, -0.5] v = g
	expect := []float32{0.85, -0.95}
	for i, v := range expect {
		if math.Abs(float64(p.W.Data[i]-v)) > 1e-5 {
			t.Errorf("step 1: w[%d] = %g want %g", i, p.W.Data[i], v)
		}
	}
	opt.ZeroGrad()
	if p.Grad.Data[0] != 0 {
		t.Error("gradient not cleared")
	}
	opt.Step()
	// g = 0.5*w, v = 0.9*v + g
	v0 := 0.9*1.5 + 0.5*0.85
	if w := 0.85 - 0.1*v0; math.Abs(float64(p.W.Data[0])-w) > 1e-5 {
		t.Errorf("step 2: w[0] = %g want %g", p.W.Data[0], w)
	}
}

func TestPlateau(t *testing.T) {
	opt := NewSGD(nil, 0.1, 0.9, 0)
	s := NewPlateau(opt, 2)
	for i, m := range []float64{1, 0.5, 0.6, 0.6} {
		if s.Step(m) {
			t.Errorf("step %d: unexpected reduction", i)
		}
	}
	if !s.Step(0.6) {
		t.Error("expecting reduction after patience exceeded")
	}
	if math.Abs(opt.LearningRate()-0.01) > 1e-12 {
		t.Error("learning rate should be 0.01, got", opt.LearningRate())
	}
	if s.Step(0.4) {
		t.Error("improvement should reset")
	}
}
