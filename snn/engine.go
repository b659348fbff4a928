// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snn

import (
	"errors"
	"fmt"
)

// Engine is the time-stepped simulation substrate that a Network is compiled
// onto.  The Engine owns all neuron and synapse state; the Network only reads
// and writes it through these methods, and only between steps.
// State and spikes are accessed per batch element.
type Engine interface {
	// Build allocates and initializes the populations described.
	Build(desc *NetDesc) error

	// StepTime advances the simulation by one time step of DT.
	StepTime() error

	// ResetTime resets the time to 0, along with the membrane potentials,
	// spike counts, and spikes in transit of all neurons.
	ResetTime()

	// Time is the current simulation time (msec)
	Time() float32

	// Timestep is the number of steps since the last ResetTime
	Timestep() int

	// DT is the integration time step (msec)
	DT() float32

	// BatchSize is the number of samples simulated in parallel
	BatchSize() int

	// SetInput sets the input values of an input population for given batch element
	SetInput(pop string, batch int, vals []float32) error

	// SetThreshold sets the firing threshold of all neurons in the population
	SetThreshold(pop string, thr float32) error

	// State returns the values of a neuron variable (see NeuronVars) for given batch element
	State(pop, varNm string, batch int) ([]float32, error)

	// Spikes returns the indexes of the neurons that spiked on the last step, for given batch element
	Spikes(pop string, batch int) ([]int32, error)

	// KernelTimes returns the total time in seconds spent in each kernel
	KernelTimes() map[string]float64
}

// PopDesc describes one neuron population for Engine Build
type PopDesc struct {
	Name   string
	N      int
	Type   NeuronTypes
	Params NeuronParams
}

// SynDesc describes one synapse population for Engine Build: WtFun is set
// for Procedural connectivity, and Conns for Sparse.
type SynDesc struct {
	Name  string
	Pre   string
	Post  string
	Conn  ConnTypes
	WtFun func(si, ri int) float32
	Conns *SparseConns
}

// NetDesc describes a whole network for Engine Build
type NetDesc struct {
	Name      string
	BatchSize int
	DT        float32
	Seed      int64
	Pops      []PopDesc
	Syns      []SynDesc
}

// Desc returns the description of the network for Engine Build,
// computing the sparse connections of Sparse projections.
// Finalize must have been called.
func (nt *Network) Desc() (*NetDesc, error) {
	if len(nt.Order) == 0 {
		return nil, fmt.Errorf("Network Desc: network %s has not been finalized", nt.Nm)
	}
	desc := &NetDesc{Name: nt.Nm, BatchSize: nt.BatchSize, DT: nt.DT, Seed: nt.Seed}
	emsg := ""
	for _, li := range nt.Order {
		ly := nt.Layers[li]
		desc.Pops = append(desc.Pops, PopDesc{Name: ly.Nm, N: ly.NNeurons(), Type: ly.Neuron, Params: ly.Neurons})
	}
	for _, li := range nt.Order {
		ly := nt.Layers[li]
		for _, pj := range ly.RcvPrjns {
			sd := SynDesc{Name: pj.Nm, Pre: nt.Layers[pj.Send].Nm, Post: ly.Nm, Conn: pj.Conn}
			switch pj.Conn {
			case Sparse:
				sc, err := pj.SparseWeights()
				if err != nil {
					emsg += err.Error() + "\n"
					continue
				}
				pj.NSyns = sc.Len()
				sd.Conns = sc
			default:
				if err := pj.Validate(); err != nil {
					emsg += err.Error() + "\n"
					continue
				}
				sd.WtFun = pj.WtFun()
			}
			desc.Syns = append(desc.Syns, sd)
		}
	}
	if emsg != "" {
		return nil, errors.New(emsg)
	}
	return desc, nil
}

// Compile builds the network on the engine, which is then used for all
// further simulation.  On error the network is left uncompiled.
func (nt *Network) Compile(eng Engine) error {
	nt.Eng = nil
	desc, err := nt.Desc()
	if err != nil {
		return err
	}
	if err := eng.Build(desc); err != nil {
		return fmt.Errorf("Network Compile: %s: %w", nt.Nm, err)
	}
	nt.Eng = eng
	return nil
}

// IsCompiled returns true if the network has been compiled onto an engine
func (nt *Network) IsCompiled() bool { return nt.Eng != nil }

// KernelTimes returns the total time in seconds spent in each kernel of the engine
func (nt *Network) KernelTimes() (map[string]float64, error) {
	if nt.Eng == nil {
		return nil, ErrNotCompiled
	}
	return nt.Eng.KernelTimes(), nil
}
