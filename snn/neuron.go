// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snn

import (
	"fmt"

	"github.com/goki/ki/kit"
)

// NeuronTypes are the neuron models of a Layer
type NeuronTypes int32

//go:generate stringer -type=NeuronTypes

var KiT_NeuronTypes = kit.Enums.AddEnum(NeuronTypesN, false, nil)

func (ev NeuronTypes) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *NeuronTypes) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

const (
	// SpikeInput neurons spike on every step where their input is positive
	// (or negative, with SignedSpikes)
	SpikeInput NeuronTypes = iota

	// PoissonInput neurons spike at random with a rate proportional to their input
	PoissonInput

	// IFInput neurons integrate their input, spiking when it reaches 1
	IFInput

	// IF are integrate-and-fire neurons, integrating synaptic input into Vmem
	// and spiking when it reaches Thr, resetting Vmem to 0
	IF

	NeuronTypesN
)

// IsInput returns true for the input encoder types
func (nt NeuronTypes) IsInput() bool {
	return nt != IF
}

// NeuronParams are the per-layer parameters of the neurons
type NeuronParams struct {

	// firing threshold on the membrane potential Vmem -- set by the normalization of the network
	Thr float32 `def:"1"`

	// emit negative spikes when Vmem reaches -Thr (or for negative inputs), so that negative values are also transmitted
	SignedSpikes bool

	// for PoissonInput neurons, scaling of the input value to a firing rate per msec
	RateFactor float32 `def:"1"`

	// output of the layer lags its input by one presentation, so it adds one batch of latency to the network
	Pipelined bool
}

func (np *NeuronParams) Defaults() {
	np.Thr = 1
	np.RateFactor = 1
}

// NeuronVars are the per-neuron state variables that an Engine provides
var NeuronVars = []string{"Vmem", "NSpk", "Isyn", "Input"}

var NeuronVarsMap map[string]int

func init() {
	NeuronVarsMap = make(map[string]int, len(NeuronVars))
	for i, v := range NeuronVars {
		NeuronVarsMap[v] = i
	}
}

// NeuronVarIdxByName returns the index of the variable in the NeuronVars list
func NeuronVarIdxByName(varNm string) (int, error) {
	i, ok := NeuronVarsMap[varNm]
	if !ok {
		return -1, fmt.Errorf("Neuron VarByName: variable name: %v not valid", varNm)
	}
	return i, nil
}
