package nnet

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

const vocRoot = "/datasets/cse152-252-sp20-public/hw3_data/VOCdevkit/VOC2012"

// Training configuration settings
type Config struct {
	ImageRoot   string
	LabelRoot   string
	FileList    string
	Experiment  string
	ModelRoot   string
	InitLR      float64
	NEpoch      int
	BatchSize   int
	NumClasses  int
	IsDilation  bool
	IsSpp       bool
	NoCuda      bool
	GpuID       int
	Colormap    string
	ImWidth     int
	ImHeight    int
	Workers     int
	Momentum    float64
	WeightDecay float64
	Pretrained  string
	RandSeed    int64
	VisEvery    int
	SaveEvery   int
	Listen      string
	User        string
	Password    string `json:"-"`
	DebugLevel  int
}

// DefaultConfig returns the settings used when no flags are given.
func DefaultConfig() Config {
	return Config{
		ImageRoot:   vocRoot + "/JPEGImages",
		LabelRoot:   vocRoot + "/SegmentationClass",
		FileList:    vocRoot + "/ImageSets/Segmentation/train.txt",
		Experiment:  "train",
		ModelRoot:   "checkpoint",
		InitLR:      0.1,
		NEpoch:      100,
		BatchSize:   64,
		NumClasses:  21,
		Colormap:    "colormap.mat",
		ImWidth:     300,
		ImHeight:    300,
		Workers:     4,
		Momentum:    0.9,
		WeightDecay: 5e-4,
		VisEvery:    50,
		SaveEvery:   2,
	}
}

// ParseFlags parses the command line arguments (excluding the program name) into a derived config.
// Invalid values return an error after the usage message is written to the flag set output.
func ParseFlags(args []string, output io.Writer) (Config, error) {
	c := DefaultConfig()
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&c.ImageRoot, "imageRoot", c.ImageRoot, "path to input images")
	fs.StringVar(&c.LabelRoot, "labelRoot", c.LabelRoot, "path to segmentation labels")
	fs.StringVar(&c.FileList, "fileList", c.FileList, "file listing the training sample ids")
	fs.StringVar(&c.Experiment, "experiment", c.Experiment, "the path to store sampled images and models")
	fs.StringVar(&c.ModelRoot, "modelRoot", c.ModelRoot, "the path to store the training results")
	fs.Float64Var(&c.InitLR, "initLR", c.InitLR, "the initial learning rate")
	fs.IntVar(&c.NEpoch, "nepoch", c.NEpoch, "the training epoch")
	fs.IntVar(&c.BatchSize, "batchSize", c.BatchSize, "the size of a batch")
	fs.IntVar(&c.NumClasses, "numClasses", c.NumClasses, "the number of classes")
	fs.BoolVar(&c.IsDilation, "isDilation", c.IsDilation, "whether to use dilated model or not")
	fs.BoolVar(&c.IsSpp, "isSpp", c.IsSpp, "whether to do spatial pyramid or not")
	fs.BoolVar(&c.NoCuda, "noCuda", c.NoCuda, "do not use cuda for training")
	fs.IntVar(&c.GpuID, "gpuId", c.GpuID, "gpu id used for training the network")
	fs.StringVar(&c.Colormap, "colormap", c.Colormap, "colormap for visualization (.mat or .npy)")
	fs.IntVar(&c.ImWidth, "imWidth", c.ImWidth, "width input images are resized to")
	fs.IntVar(&c.ImHeight, "imHeight", c.ImHeight, "height input images are resized to")
	fs.IntVar(&c.Workers, "workers", c.Workers, "number of background data loading workers")
	fs.Float64Var(&c.Momentum, "momentum", c.Momentum, "SGD momentum")
	fs.Float64Var(&c.WeightDecay, "weightDecay", c.WeightDecay, "SGD weight decay")
	fs.StringVar(&c.Pretrained, "pretrained", c.Pretrained, "encoder weights to load before training")
	fs.Int64Var(&c.RandSeed, "seed", c.RandSeed, "random number seed, time based if zero")
	fs.IntVar(&c.VisEvery, "visEvery", c.VisEvery, "iterations between visualisation snapshots")
	fs.IntVar(&c.SaveEvery, "saveEvery", c.SaveEvery, "epochs between checkpoints")
	fs.StringVar(&c.Listen, "listen", c.Listen, "address to serve the training monitor on, e.g. :8080")
	fs.StringVar(&c.User, "user", c.User, "training monitor user name")
	fs.StringVar(&c.Password, "password", c.Password, "training monitor password")
	fs.IntVar(&c.DebugLevel, "debug", c.DebugLevel, "debug logging level")
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return c, errors.Errorf("unexpected arguments: %v", fs.Args())
	}
	c = c.Derive()
	return c, c.Validate()
}

// Derive applies the variant rules: spp disables dilation, and the active variant is appended
// to the experiment and checkpoint directory names.
func (c Config) Derive() Config {
	if c.IsSpp {
		c.IsDilation = false
	}
	if c.IsDilation {
		c.Experiment += "_dilation"
		c.ModelRoot += "_dilation"
	}
	if c.IsSpp {
		c.Experiment += "_spp"
		c.ModelRoot += "_spp"
	}
	return c
}

// Validate checks the numeric settings are usable.
func (c Config) Validate() error {
	for _, key := range []string{"NEpoch", "BatchSize", "NumClasses", "ImWidth", "ImHeight", "Workers", "VisEvery", "SaveEvery"} {
		if v := c.Get(key).(int); v <= 0 {
			return errors.Errorf("%s must be positive, got %d", key, v)
		}
	}
	if c.InitLR < 0 {
		return errors.Errorf("InitLR must not be negative, got %g", c.InitLR)
	}
	return nil
}

// Setup creates the experiment directory, saves the config and copies the Go source tree below the
// working directory into it, keeping relative paths. Hidden and underscore directories, the experiment
// directory and earlier experiment snapshots (directories holding a config.json) are skipped.
func Setup(c Config) error {
	if err := os.MkdirAll(c.Experiment, 0755); err != nil {
		return errors.Wrap(err, "error creating experiment directory")
	}
	if err := c.Save(filepath.Join(c.Experiment, "config.json")); err != nil {
		return err
	}
	exp, err := filepath.Abs(c.Experiment)
	if err != nil {
		return errors.Wrap(err, "error resolving experiment directory")
	}
	return filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == "." {
				return nil
			}
			if name := d.Name(); strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata" {
				return filepath.SkipDir
			}
			if abs, err := filepath.Abs(path); err == nil && abs == exp {
				return filepath.SkipDir
			}
			if _, err := os.Stat(filepath.Join(path, "config.json")); err == nil {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" && d.Name() != "go.mod" {
			return nil
		}
		dst := filepath.Join(c.Experiment, path)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return errors.Wrap(err, "error copying source")
		}
		return copyFile(path, dst)
	})
}

// Load config from a JSON file
func LoadConfig(path string) (c Config, err error) {
	var f *os.File
	if f, err = os.Open(path); err != nil {
		return
	}
	defer f.Close()
	fmt.Println("loading config from", path)
	err = json.NewDecoder(f).Decode(&c)
	return
}

// Save config to JSON file
func (c Config) Save(path string) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path))
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "error saving config")
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err = enc.Encode(c); err != nil {
		f.Close()
		return errors.Wrap(err, "error encoding config")
	}
	f.Close()
	return os.Rename(tmp, path)
}

func (c Config) Fields() []string {
	st := reflect.TypeOf(c)
	fld := make([]string, st.NumField())
	for i := range fld {
		fld[i] = st.Field(i).Name
	}
	return fld
}

func (c Config) Get(key string) interface{} {
	s := reflect.ValueOf(c)
	return s.FieldByName(key).Interface()
}

func (c Config) String() string {
	str := []string{"== Config =="}
	for _, key := range c.Fields() {
		if key == "Password" && c.Password != "" {
			str = append(str, fmt.Sprintf("%-14s: %s", key, "********"))
			continue
		}
		str = append(str, fmt.Sprintf("%-14s: %v", key, c.Get(key)))
	}
	return strings.Join(str, "\n")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "error copying source")
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "error copying source")
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "error copying %s", src)
	}
	return out.Close()
}
