package nnet

import (
	"fmt"

	"github.com/devanshuDesai/cse252d-sp21-hw3/num"
)

// Optimizer updates parameters from their accumulated gradients.
type Optimizer interface {
	ZeroGrad()
	Step()
	LearningRate() float64
	SetLearningRate(lr float64)
}

// SGD is stochastic gradient descent with momentum and L2 weight decay.
type SGD struct {
	Params      []*Param
	LR          float64
	Momentum    float64
	WeightDecay float64
	velocity    []*num.Array
}

func NewSGD(params []*Param, lr, momentum, weightDecay float64) *SGD {
	o := &SGD{Params: params, LR: lr, Momentum: momentum, WeightDecay: weightDecay}
	o.velocity = make([]*num.Array, len(params))
	for i, p := range params {
		o.velocity[i] = num.NewLike(p.W)
	}
	return o
}

func (o *SGD) ZeroGrad() { ZeroGrad(o.Params) }

// Step applies g = grad + wd*w, v = momentum*v + g, w = w - lr*v
func (o *SGD) Step() {
	for i, p := range o.Params {
		v := o.velocity[i]
		num.Scale(float32(o.Momentum), v)
		num.Axpy(1, p.Grad, v)
		num.Axpy(float32(o.WeightDecay), p.W, v)
		num.Axpy(-float32(o.LR), v, p.W)
	}
}

func (o *SGD) LearningRate() float64 { return o.LR }

func (o *SGD) SetLearningRate(lr float64) { o.LR = lr }

func (o *SGD) String() string {
	return fmt.Sprintf("SGD lr=%g momentum=%g weightDecay=%g", o.LR, o.Momentum, o.WeightDecay)
}

// Plateau reduces the learning rate by Factor when a minimised metric has not improved by
// more than the relative Threshold for more than Patience steps.
type Plateau struct {
	Opt       Optimizer
	Factor    float64
	Patience  int
	Threshold float64
	best      float64
	bad       int
	started   bool
}

func NewPlateau(opt Optimizer, patience int) *Plateau {
	return &Plateau{Opt: opt, Factor: 0.1, Patience: patience, Threshold: 1e-4}
}

// Step records a new metric value and returns true if the learning rate was reduced.
func (s *Plateau) Step(metric float64) bool {
	if !s.started || metric < s.best*(1-s.Threshold) {
		s.best, s.bad, s.started = metric, 0, true
		return false
	}
	s.bad++
	if s.bad <= s.Patience {
		return false
	}
	s.bad = 0
	s.Opt.SetLearningRate(s.Opt.LearningRate() * s.Factor)
	return true
}
