package nnet

import (
	"encoding/gob"
	"os"

	"github.com/devanshuDesai/cse252d-sp21-hw3/num"
	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
)

// Tensor is the serialised form of a parameter.
type Tensor struct {
	Dims []int
	Data []float32
}

// SaveParams encodes the named parameter values to path in gob format.
func SaveParams(path string, params []*Param) error {
	state := make(map[string]Tensor, len(params))
	for _, p := range params {
		state[p.Name] = Tensor{Dims: p.W.Dims(), Data: p.W.Data}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "error saving parameters")
	}
	if err = gob.NewEncoder(f).Encode(state); err != nil {
		f.Close()
		return errors.Wrapf(err, "error encoding %s", path)
	}
	return f.Close()
}

// LoadParams decodes a parameter file written by SaveParams.
func LoadParams(path string) (map[string]Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error loading parameters")
	}
	defer f.Close()
	var state map[string]Tensor
	if err = gob.NewDecoder(f).Decode(&state); err != nil {
		return nil, errors.Wrapf(err, "error decoding %s", path)
	}
	return state, nil
}

// CopyParams sets each parameter from the entry in src with the same name and shape, returning the number copied.
func CopyParams(params []*Param, src map[string]Tensor) int {
	n := 0
	for _, p := range params {
		t, ok := src[p.Name]
		if !ok || !num.SameShape(t.Dims, p.W.Dims()) || len(t.Data) != p.W.Size() {
			continue
		}
		copy(p.W.Data, t.Data)
		n++
	}
	return n
}

// WriteHistory saves values as a 1d float64 numpy array.
func WriteHistory(path string, values []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "error saving history")
	}
	if values == nil {
		values = []float64{}
	}
	if err = npyio.Write(f, values); err != nil {
		f.Close()
		return errors.Wrapf(err, "error writing %s", path)
	}
	return f.Close()
}

// ReadHistory loads a 1d array written by WriteHistory.
func ReadHistory(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error loading history")
	}
	defer f.Close()
	var values []float64
	if err = npyio.Read(f, &values); err != nil {
		return nil, errors.Wrapf(err, "error reading %s", path)
	}
	return values, nil
}
