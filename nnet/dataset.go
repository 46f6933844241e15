package nnet

import (
	"io"
	"math/rand"
	"sync"

	"github.com/devanshuDesai/cse252d-sp21-hw3/img"
	"github.com/devanshuDesai/cse252d-sp21-hw3/num"
	"github.com/pkg/errors"
)

// Data interface type represents the raw samples of a segmentation training set
type Data interface {
	Len() int
	Classes() int
	// Shape returns channels, height, width of each input image
	Shape() []int
	Sample(i int) (*img.Sample, error)
}

// Batch of training samples.
type Batch struct {
	Image      *num.Array // [n, 3, height, width]
	Label      *num.Array // one hot [n, classes, height, width]
	LabelIndex []int32    // n x height x width class indexes
	Mask       *num.Array // [n, 1, height, width]
}

// Size is the number of samples in the batch.
func (b *Batch) Size() int { return b.Image.Dims()[0] }

// Upload moves the batch arrays to the device.
func (b *Batch) Upload(dev num.Device) *Batch {
	return &Batch{
		Image:      dev.Upload(b.Image),
		Label:      dev.Upload(b.Label),
		LabelIndex: b.LabelIndex,
		Mask:       dev.Upload(b.Mask),
	}
}

// Loader supplies batches for one pass over the data at a time.
type Loader interface {
	// NextEpoch starts a new pass.
	NextEpoch()
	// NextBatch blocks until the next batch is ready, returns io.EOF at the end of the pass.
	NextBatch() (*Batch, error)
}

type batchResult struct {
	batch *Batch
	err   error
}

// Dataset type wraps Data to load shuffled batches using a pool of background workers.
type Dataset struct {
	Data
	BatchSize int
	Batches   int
	Workers   int
	Shuffle   bool
	indexes   []int
	rng       *rand.Rand
	batch     int
	results   []chan batchResult
	slots     chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
}

// Create a new Dataset with the given batch size and number of loader goroutines.
// The final batch of a pass holds the remaining samples.
func NewDataset(data Data, batchSize, workers int, shuffle bool, rng *rand.Rand) *Dataset {
	d := &Dataset{Data: data, BatchSize: batchSize, Workers: workers, Shuffle: shuffle, rng: rng}
	if d.BatchSize <= 0 || d.BatchSize > data.Len() {
		d.BatchSize = data.Len()
	}
	if d.Workers <= 0 {
		d.Workers = 1
	}
	if d.BatchSize > 0 {
		d.Batches = (data.Len() + d.BatchSize - 1) / d.BatchSize
	}
	d.indexes = make([]int, data.Len())
	for i := range d.indexes {
		d.indexes[i] = i
	}
	return d
}

// NextEpoch shuffles the sample order and kicks off background loading of the batches.
func (d *Dataset) NextEpoch() {
	d.stop()
	if d.Shuffle {
		d.indexes = d.rng.Perm(d.Len())
	}
	d.batch = 0
	d.results = make([]chan batchResult, d.Batches)
	for i := range d.results {
		d.results[i] = make(chan batchResult, 1)
	}
	// at most 2 batches per worker are loaded ahead of the consumer
	d.slots = make(chan struct{}, 2*d.Workers)
	d.done = make(chan struct{})
	jobs := make(chan int)
	d.wg.Add(1)
	go func(done chan struct{}) {
		defer d.wg.Done()
		defer close(jobs)
		for b := 0; b < d.Batches; b++ {
			select {
			case d.slots <- struct{}{}:
			case <-done:
				return
			}
			select {
			case jobs <- b:
			case <-done:
				return
			}
		}
	}(d.done)
	for w := 0; w < d.Workers; w++ {
		d.wg.Add(1)
		go func(results []chan batchResult) {
			defer d.wg.Done()
			for b := range jobs {
				batch, err := d.load(b)
				results[b] <- batchResult{batch: batch, err: err}
			}
		}(d.results)
	}
}

// NextBatch returns the next batch in order, or io.EOF once every batch of the pass has been returned.
func (d *Dataset) NextBatch() (*Batch, error) {
	if d.results == nil || d.batch >= d.Batches {
		return nil, io.EOF
	}
	res := <-d.results[d.batch]
	d.batch++
	<-d.slots
	return res.batch, res.err
}

// Release stops any background loading.
func (d *Dataset) Release() {
	d.stop()
}

func (d *Dataset) stop() {
	if d.done != nil {
		close(d.done)
		d.wg.Wait()
		d.done = nil
	}
}

// assemble batch b from its samples
func (d *Dataset) load(b int) (*Batch, error) {
	start := b * d.BatchSize
	end := start + d.BatchSize
	if end > d.Len() {
		end = d.Len()
	}
	n := end - start
	shape := d.Shape()
	h, w := shape[1], shape[2]
	plane := h * w
	batch := &Batch{
		Image:      num.New(n, 3, h, w),
		LabelIndex: make([]int32, n*plane),
		Mask:       num.New(n, 1, h, w),
	}
	for i, ix := range d.indexes[start:end] {
		s, err := d.Sample(ix)
		if err != nil {
			return nil, errors.Wrapf(err, "error loading sample %d", ix)
		}
		if len(s.Image) != 3*plane || len(s.Label) != plane || len(s.Mask) != plane {
			return nil, errors.Errorf("sample %d does not match shape %v", ix, shape)
		}
		copy(batch.Image.Sample(i).Data, s.Image)
		copy(batch.LabelIndex[i*plane:], s.Label)
		copy(batch.Mask.Sample(i).Data, s.Mask)
	}
	batch.Label = num.Onehot(batch.LabelIndex, n, d.Classes(), h, w)
	return batch, nil
}
