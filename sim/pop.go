// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"math/rand"

	"github.com/emer/spikeconv/snn"
	"github.com/goki/mat32"
)

// Pop is a population of neurons of one type, with the state of every
// neuron for every batch element, stored batch-major.
type Pop struct {
	Nm      string           `desc:"name of the population"`
	Idx     int              `desc:"index of the population in the engine"`
	N       int              `desc:"number of neurons"`
	Type    snn.NeuronTypes  `desc:"neuron model"`
	Params  snn.NeuronParams `desc:"neuron parameters"`
	Thread  int              `desc:"worker thread that updates this population"`
	Vmem    []float32        `desc:"membrane potential"`
	NSpk    []float32        `desc:"number of spikes since ResetTime"`
	Isyn    []float32        `desc:"synaptic input delivered on this step"`
	Input   []float32        `desc:"input values, for input populations"`
	Spk     [][]int32        `desc:"indexes of the neurons that spiked on the last step, per batch element"`
	SpkSign [][]int8         `desc:"sign of each spike in Spk"`
	RcvSyns []*SynPop        `view:"-" desc:"synapse populations that this population receives from"`
	Rand    *rand.Rand       `view:"-" desc:"random source for Poisson neurons"`
	CurTrn  []SpikeTrain     `view:"-" desc:"for Pipelined populations, spikes of every step of the current presentation, per batch element"`
	PrvTrn  []SpikeTrain     `view:"-" desc:"for Pipelined populations, spikes of every step of the previous presentation, which are what the population sends"`
	nbatch  int
}

// SpikeTrain holds the spikes of every step of one presentation
type SpikeTrain struct {
	Idx  [][]int32
	Sign [][]int8
}

func (st *SpikeTrain) reset() {
	st.Idx = st.Idx[:0]
	st.Sign = st.Sign[:0]
}

func (pp *Pop) alloc(nbatch int, seed int64) {
	pp.nbatch = nbatch
	sz := pp.N * nbatch
	pp.Vmem = make([]float32, sz)
	pp.NSpk = make([]float32, sz)
	pp.Isyn = make([]float32, sz)
	pp.Input = make([]float32, sz)
	pp.Spk = make([][]int32, nbatch)
	pp.SpkSign = make([][]int8, nbatch)
	pp.Rand = rand.New(rand.NewSource(seed + int64(pp.Idx)))
	pp.CurTrn, pp.PrvTrn = nil, nil
	if pp.Params.Pipelined {
		pp.CurTrn = make([]SpikeTrain, nbatch)
		pp.PrvTrn = make([]SpikeTrain, nbatch)
	}
}

// Var returns the state slice of given variable for all batch elements
func (pp *Pop) Var(varNm string) ([]float32, bool) {
	switch varNm {
	case "Vmem":
		return pp.Vmem, true
	case "NSpk":
		return pp.NSpk, true
	case "Isyn":
		return pp.Isyn, true
	case "Input":
		return pp.Input, true
	}
	return nil, false
}

// Reset resets the state, except the inputs.  The spikes of the presentation
// that ends become the spikes sent by a Pipelined population.
func (pp *Pop) Reset() {
	if pp.Params.Pipelined {
		pp.CurTrn, pp.PrvTrn = pp.PrvTrn, pp.CurTrn
		for b := range pp.CurTrn {
			pp.CurTrn[b].reset()
		}
	}
	for i := range pp.Vmem {
		pp.Vmem[i] = 0
		pp.NSpk[i] = 0
		pp.Isyn[i] = 0
	}
	for b := range pp.Spk {
		pp.Spk[b] = pp.Spk[b][:0]
		pp.SpkSign[b] = pp.SpkSign[b][:0]
	}
}

// Deliver sets Isyn to the sum of the weights of the spikes sent on given step
// (counted from 0) by the sending populations
func (pp *Pop) Deliver(step int) {
	for i := range pp.Isyn {
		pp.Isyn[i] = 0
	}
	for _, sy := range pp.RcvSyns {
		sy.Deliver(step)
	}
}

// SendSpikes returns the spikes that the population sends for given step and
// batch element: those of the last step, or for a Pipelined population, those
// of the same step of the previous presentation.
func (pp *Pop) SendSpikes(batch, step int) ([]int32, []int8) {
	if !pp.Params.Pipelined {
		return pp.Spk[batch], pp.SpkSign[batch]
	}
	tr := &pp.PrvTrn[batch]
	if step < 0 || step >= len(tr.Idx) {
		return nil, nil
	}
	return tr.Idx[step], tr.Sign[step]
}

// Update updates the neurons for one step of dt
func (pp *Pop) Update(dt float32) {
	signed := pp.Params.SignedSpikes
	for b := 0; b < pp.nbatch; b++ {
		spk := pp.Spk[b][:0]
		sgn := pp.SpkSign[b][:0]
		off := b * pp.N
		for ni := 0; ni < pp.N; ni++ {
			i := off + ni
			s := int8(0)
			switch pp.Type {
			case snn.SpikeInput:
				s = inputSign(pp.Input[i], signed)
			case snn.PoissonInput:
				in := pp.Input[i]
				s = inputSign(in, signed)
				if s != 0 {
					p := 1 - mat32.Exp(-mat32.Abs(in)*pp.Params.RateFactor*dt)
					if pp.Rand.Float32() >= p {
						s = 0
					}
				}
			case snn.IFInput:
				pp.Vmem[i] += pp.Input[i]
				s = fire(&pp.Vmem[i], 1, signed)
			default:
				pp.Vmem[i] += pp.Isyn[i]
				s = fire(&pp.Vmem[i], pp.Params.Thr, signed)
			}
			if s != 0 {
				spk = append(spk, int32(ni))
				sgn = append(sgn, s)
				pp.NSpk[i]++
			}
		}
		pp.Spk[b] = spk
		pp.SpkSign[b] = sgn
		if pp.Params.Pipelined {
			tr := &pp.CurTrn[b]
			tr.Idx = append(tr.Idx, append([]int32(nil), spk...))
			tr.Sign = append(tr.Sign, append([]int8(nil), sgn...))
		}
	}
}

// inputSign returns the sign of the spike that an input value produces
func inputSign(in float32, signed bool) int8 {
	switch {
	case in > 0:
		return 1
	case in < 0 && signed:
		return -1
	}
	return 0
}

// fire returns the sign of the spike for given membrane potential, resetting it if so
func fire(vm *float32, thr float32, signed bool) int8 {
	switch {
	case *vm >= thr:
		*vm = 0
		return 1
	case signed && *vm <= -thr:
		*vm = 0
		return -1
	}
	return 0
}
