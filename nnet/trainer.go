package nnet

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/devanshuDesai/cse252d-sp21-hw3/num"
	"github.com/devanshuDesai/cse252d-sp21-hw3/stats"
)

// Training statistics after one iteration
type Stats struct {
	Epoch         int
	Iteration     int
	Loss          float64
	MeanLoss      float64
	Accuracy      float64
	ClassAccuracy []float64
	LearningRate  float64
	Elapsed       time.Duration
}

// Monitor is notified after every training iteration.
type Monitor interface {
	Update(s Stats)
}

// Trainer holds the state of a training run. The confusion matrix and history accumulate over
// the whole run, they are not reset between epochs.
type Trainer struct {
	Config
	Net       *Net
	Opt       Optimizer
	Scheduler *Plateau
	Data      Loader
	Device    num.Device
	Out       Output
	Monitor   Monitor
	Stdout    io.Writer
	Confusion *stats.Confusion
	History   History
	Iteration int
	loss      stats.Average
	start     time.Time
}

// NewTrainer sets up SGD over the encoder and decoder parameters. A plateau scheduler is created
// alongside the optimizer but the training loop does not step it.
func NewTrainer(conf Config, net *Net, data Loader, dev num.Device, out Output) *Trainer {
	opt := NewSGD(net.Params(), conf.InitLR, conf.Momentum, conf.WeightDecay)
	return &Trainer{
		Config:    conf,
		Net:       net,
		Opt:       opt,
		Scheduler: NewPlateau(opt, 2),
		Data:      data,
		Device:    dev,
		Out:       out,
		Stdout:    os.Stdout,
		Confusion: stats.NewConfusion(conf.NumClasses),
	}
}

// Train runs NEpoch epochs.
func (t *Trainer) Train() error {
	t.start = time.Now()
	for epoch := 0; epoch < t.NEpoch; epoch++ {
		if err := t.TrainEpoch(epoch); err != nil {
			return err
		}
	}
	if t.DebugLevel >= 1 {
		fmt.Fprintf(t.Stdout, "run time: %s\n", time.Since(t.start).Round(10*time.Millisecond))
	}
	return nil
}

// TrainEpoch performs one pass over the data. Every SaveEvery completed epochs the history and
// parameters are saved, keyed by the 1 based epoch count.
func (t *Trainer) TrainEpoch(epoch int) (err error) {
	logf, err := t.Out.EpochLog(epoch)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := logf.Close(); err == nil {
			err = cerr
		}
	}()
	t.Data.NextEpoch()
	for {
		b, err := t.Data.NextBatch()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err = t.Step(epoch, b, logf); err != nil {
			return err
		}
	}
	if (epoch+1)%t.SaveEvery == 0 {
		return t.Out.SaveCheckpoint(epoch+1, &t.History, t.Net)
	}
	return nil
}

// Step trains on a single batch and updates the metrics. The loss is the mean of the prediction
// multiplied by the one hot labels.
func (t *Trainer) Step(epoch int, b *Batch, logf io.Writer) error {
	t.Iteration++
	if t.Device != nil {
		b = b.Upload(t.Device)
	}
	if t.DebugLevel >= 2 {
		fmt.Fprintf(t.Stdout, "== train batch %d: %d samples ==\n", t.Iteration, b.Size())
	}
	t.Opt.ZeroGrad()
	pred := t.Net.Forward(b.Image)
	loss := num.MulMean(pred, b.Label)
	grad := b.Label.Copy()
	num.Scale(1/float32(grad.Size()), grad)
	t.Net.Backward(grad)
	t.Opt.Step()

	t.Confusion.Add(stats.ComputeAccuracy(num.Neg(pred), b.LabelIndex, b.Mask, t.NumClasses))
	accuracy := t.Confusion.Accuracy()
	t.loss.Add(loss)
	meanAccuracy := stats.Mean(accuracy)
	t.History.Loss = append(t.History.Loss, loss)
	t.History.Accuracy = append(t.History.Accuracy, meanAccuracy)
	if t.DebugLevel >= 2 {
		fmt.Fprintf(t.Stdout, "confusion:\n%s\n", t.Confusion)
	}

	lossMsg := fmt.Sprintf("Epoch %d iteration %d: Loss %.5f Accumulated Loss %.5f", epoch, t.Iteration, loss, t.loss.Mean)
	accMsg := fmt.Sprintf("Epoch %d iteration %d: Accumulated Accuracy %.5f", epoch, t.Iteration, meanAccuracy)
	fmt.Fprintln(t.Stdout, lossMsg)
	fmt.Fprintln(t.Stdout, accMsg)
	if _, err := fmt.Fprintf(logf, "%s \n%s \n", lossMsg, accMsg); err != nil {
		return err
	}

	if t.Iteration%t.VisEvery == 0 {
		if err := t.Out.SaveImages(t.Iteration, b, pred); err != nil {
			return err
		}
	}
	if t.Monitor != nil {
		t.Monitor.Update(Stats{
			Epoch:         epoch,
			Iteration:     t.Iteration,
			Loss:          loss,
			MeanLoss:      t.loss.Mean,
			Accuracy:      meanAccuracy,
			ClassAccuracy: accuracy,
			LearningRate:  t.Opt.LearningRate(),
			Elapsed:       time.Since(t.start),
		})
	}
	return nil
}

// Exit in case of error
func CheckErr(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Set random number seed, or random seed if seed <= 0
func SetSeed(seed int64) *rand.Rand {
	if seed <= 0 {
		seed = time.Now().UTC().UnixNano()
	}
	fmt.Println("random seed =", seed)
	return rand.New(rand.NewSource(seed))
}
