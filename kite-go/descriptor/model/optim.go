package model

import (
	"math"
	"strings"

	"github.com/kiteco/patchdesc/kite-golib/errors"
)

// Optimizer updates parameters from their accumulated gradients
type Optimizer interface {
	Step()
	LR() float64
	SetLR(lr float64)
	State() *OptimizerState
	LoadState(s *OptimizerState) error
}

// OptimizerState is the checkpointed part of an optimizer
type OptimizerState struct {
	Kind  string
	Steps int
	// First holds the momentum buffers of SGD or the first moments of Adam
	First map[string][]float32
	// Second holds the second moments of Adam
	Second map[string][]float32
}

// NewOptimizer returns the optimizer named by kind: sgd or adam
func NewOptimizer(kind string, params []*Param, lr, weightDecay float64) (Optimizer, error) {
	switch strings.ToLower(kind) {
	case "sgd":
		return NewSGD(params, lr, weightDecay), nil
	case "adam":
		return NewAdam(params, lr, weightDecay), nil
	}
	return nil, errors.Kindf(errors.Configuration, "unknown optimizer %q", kind)
}

// SGD with momentum and dampening
type SGD struct {
	params      []*Param
	lr          float64
	Momentum    float64
	Dampening   float64
	WeightDecay float64
	buf         map[string][]float32
	steps       int
}

// NewSGD uses momentum 0.9 and dampening 0.9
func NewSGD(params []*Param, lr, weightDecay float64) *SGD {
	return &SGD{
		params:      params,
		lr:          lr,
		Momentum:    0.9,
		Dampening:   0.9,
		WeightDecay: weightDecay,
		buf:         make(map[string][]float32),
	}
}

// LR implements Optimizer
func (o *SGD) LR() float64 { return o.lr }

// SetLR implements Optimizer
func (o *SGD) SetLR(lr float64) { o.lr = lr }

// Step implements Optimizer. The first step seeds the momentum buffer with the gradient.
func (o *SGD) Step() {
	for _, p := range o.params {
		buf, ok := o.buf[p.Name]
		if !ok && o.Momentum != 0 {
			buf = make([]float32, len(p.Value))
			o.buf[p.Name] = buf
		}
		for i := range p.Value {
			d := float64(p.Grad[i]) + o.WeightDecay*float64(p.Value[i])
			if o.Momentum != 0 {
				if ok {
					d = o.Momentum*float64(buf[i]) + (1-o.Dampening)*d
				}
				buf[i] = float32(d)
			}
			p.Value[i] -= float32(o.lr * d)
		}
	}
	o.steps++
}

// State implements Optimizer
func (o *SGD) State() *OptimizerState {
	return &OptimizerState{Kind: "sgd", Steps: o.steps, First: copyBuffers(o.buf)}
}

// LoadState implements Optimizer
func (o *SGD) LoadState(s *OptimizerState) error {
	if s == nil {
		return errors.Errorf("no optimizer state")
	}
	if s.Kind != "sgd" {
		return errors.Errorf("cannot load %s state into sgd", s.Kind)
	}
	o.buf = matchBuffers(o.params, s.First)
	o.steps = s.Steps
	return nil
}

// Adam with bias correction
type Adam struct {
	params      []*Param
	lr          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64
	m, v        map[string][]float32
	steps       int
}

// NewAdam uses betas (0.9, 0.999) and eps 1e-8
func NewAdam(params []*Param, lr, weightDecay float64) *Adam {
	return &Adam{
		params:      params,
		lr:          lr,
		Beta1:       0.9,
		Beta2:       0.999,
		Eps:         1e-8,
		WeightDecay: weightDecay,
		m:           make(map[string][]float32),
		v:           make(map[string][]float32),
	}
}

// LR implements Optimizer
func (o *Adam) LR() float64 { return o.lr }

// SetLR implements Optimizer
func (o *Adam) SetLR(lr float64) { o.lr = lr }

// Step implements Optimizer
func (o *Adam) Step() {
	o.steps++
	c1 := 1 - math.Pow(o.Beta1, float64(o.steps))
	c2 := 1 - math.Pow(o.Beta2, float64(o.steps))
	for _, p := range o.params {
		m, ok := o.m[p.Name]
		if !ok {
			m = make([]float32, len(p.Value))
			o.m[p.Name] = m
		}
		v, ok := o.v[p.Name]
		if !ok {
			v = make([]float32, len(p.Value))
			o.v[p.Name] = v
		}
		for i := range p.Value {
			g := float64(p.Grad[i]) + o.WeightDecay*float64(p.Value[i])
			mi := o.Beta1*float64(m[i]) + (1-o.Beta1)*g
			vi := o.Beta2*float64(v[i]) + (1-o.Beta2)*g*g
			m[i], v[i] = float32(mi), float32(vi)
			p.Value[i] -= float32(o.lr * (mi / c1) / (math.Sqrt(vi/c2) + o.Eps))
		}
	}
}

// State implements Optimizer
func (o *Adam) State() *OptimizerState {
	return &OptimizerState{Kind: "adam", Steps: o.steps, First: copyBuffers(o.m), Second: copyBuffers(o.v)}
}

// LoadState implements Optimizer
func (o *Adam) LoadState(s *OptimizerState) error {
	if s == nil {
		return errors.Errorf("no optimizer state")
	}
	if s.Kind != "adam" {
		return errors.Errorf("cannot load %s state into adam", s.Kind)
	}
	o.m = matchBuffers(o.params, s.First)
	o.v = matchBuffers(o.params, s.Second)
	o.steps = s.Steps
	return nil
}

func copyBuffers(bufs map[string][]float32) map[string][]float32 {
	out := make(map[string][]float32, len(bufs))
	for k, v := range bufs {
		out[k] = append([]float32(nil), v...)
	}
	return out
}

// matchBuffers keeps the saved buffers whose name and size match a parameter
func matchBuffers(params []*Param, saved map[string][]float32) map[string][]float32 {
	out := make(map[string][]float32)
	for _, p := range params {
		if b, ok := saved[p.Name]; ok && len(b) == len(p.Value) {
			out[p.Name] = append([]float32(nil), b...)
		}
	}
	return out
}
