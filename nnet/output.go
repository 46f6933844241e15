package nnet

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/devanshuDesai/cse252d-sp21-hw3/img"
	"github.com/devanshuDesai/cse252d-sp21-hw3/num"
	"github.com/devanshuDesai/cse252d-sp21-hw3/stats"
	"github.com/pkg/errors"
)

// Output receives the files written during training.
type Output interface {
	// EpochLog creates the log file for an epoch.
	EpochLog(epoch int) (io.WriteCloser, error)
	// SaveImages writes the visualisation snapshot at a given iteration.
	SaveImages(iter int, b *Batch, pred *num.Array) error
	// SaveCheckpoint writes the history and network parameters after a completed epoch.
	SaveCheckpoint(epoch int, h *History, net *Net) error
}

// History of per iteration metrics for the whole run.
type History struct {
	Loss     []float64
	Accuracy []float64
}

// FileOutput writes logs, images and checkpoints under the experiment directory.
type FileOutput struct {
	Dir      string
	Colormap img.Colormap
	// Plot enables writing history.svg with each checkpoint.
	Plot bool
}

func (o FileOutput) path(format string, args ...interface{}) string {
	return filepath.Join(o.Dir, fmt.Sprintf(format, args...))
}

func (o FileOutput) EpochLog(epoch int) (io.WriteCloser, error) {
	f, err := os.Create(o.path("trainingLog_%d.txt", epoch))
	if err != nil {
		return nil, errors.Wrap(err, "error creating training log")
	}
	return f, nil
}

// SaveImages writes the input batch, the ground truth labels and the predicted labels. The prediction
// is negated so its argmax is the most likely class.
func (o FileOutput) SaveImages(iter int, b *Batch, pred *num.Array) error {
	if err := img.SaveImages(b.Image, o.path("images_%d.png", iter)); err != nil {
		return err
	}
	if err := img.SaveLabel(b.Label, b.Mask, o.Colormap, o.path("labelGt_%d.png", iter), 1, 1); err != nil {
		return err
	}
	return img.SaveLabel(num.Neg(pred), b.Mask, o.Colormap, o.path("labelPred_%d.png", iter), 1, 1)
}

func (o FileOutput) SaveCheckpoint(epoch int, h *History, net *Net) error {
	if err := WriteHistory(o.path("loss.npy"), h.Loss); err != nil {
		return err
	}
	if err := WriteHistory(o.path("accuracy.npy"), h.Accuracy); err != nil {
		return err
	}
	if err := SaveParams(o.path("encoder_%d.pth", epoch), net.Encoder.Params()); err != nil {
		return err
	}
	if err := SaveParams(o.path("decoder_%d.pth", epoch), net.Decoder.Params()); err != nil {
		return err
	}
	if o.Plot {
		return stats.SaveHistory(o.path("history.svg"), h.Loss, h.Accuracy)
	}
	return nil
}
