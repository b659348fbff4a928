// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snn

import (
	"fmt"

	"github.com/emer/emergent/v2/emer"
	"github.com/emer/etable/v2/etensor"
)

// snn.Layer is one population of spiking neurons in a converted Network.
// It owns the Prjns that it receives from, which refer to their sending
// layers by index into the Network Layers.
type Layer struct {
	Nm       string         `desc:"Name of the layer -- must be unique within the network"`
	Cls      string         `desc:"Class is for applying parameter styles, can be space separated multple tags"`
	Typ      emer.LayerType `desc:"role of the layer: Input, Hidden or Target (network output)"`
	Neuron   NeuronTypes    `desc:"neuron model of the layer"`
	Neurons  NeuronParams   `view:"inline" desc:"parameters of the neurons"`
	Shp      etensor.Shape  `desc:"shape of the layer: [rows, cols, chans] or [n] -- set by the first projection received for non-input layers"`
	Idx      int            `desc:"index of the layer in the network Layers"`
	RcvPrjns []*Prjn        `desc:"projections received by this layer, owned by it"`
}

// emer.Styler interface for params

func (ly *Layer) Name() string     { return ly.Nm }
func (ly *Layer) Class() string    { return ly.Typ.String() + " " + ly.Cls }
func (ly *Layer) TypeName() string { return "Layer" } // type category, for params..

func (ly *Layer) Label() string              { return ly.Nm }
func (ly *Layer) Type() emer.LayerType       { return ly.Typ }
func (ly *Layer) SetType(typ emer.LayerType) { ly.Typ = typ }
func (ly *Layer) Index() int                 { return ly.Idx }
func (ly *Layer) SetIndex(idx int)           { ly.Idx = idx }
func (ly *Layer) Shape() *etensor.Shape      { return &ly.Shp }
func (ly *Layer) NRecvPrjns() int            { return len(ly.RcvPrjns) }
func (ly *Layer) RecvPrjn(idx int) *Prjn     { return ly.RcvPrjns[idx] }
func (ly *Layer) IsInput() bool              { return ly.Typ == emer.Input }
func (ly *Layer) IsOutput() bool             { return ly.Typ == emer.Target }

// NNeurons returns the number of neurons in the layer
func (ly *Layer) NNeurons() int {
	if ly.Shp.NumDims() == 0 {
		return 0
	}
	return ly.Shp.Len()
}

// HasShape returns true if the shape of the layer has been set
func (ly *Layer) HasShape() bool { return ly.Shp.NumDims() > 0 }

// SetShape sets the shape of the layer, if it has not been set, and otherwise
// checks that the shape is the same, returning ErrShapeMismatch if not.
func (ly *Layer) SetShape(shape []int) error {
	if !ly.HasShape() {
		ly.Shp.SetShape(shape, nil, nil)
		return nil
	}
	if !shapeEqual(ly.Shp.Shapes(), shape) {
		return fmt.Errorf("layer %s has shape %v, but a projection needs %v: %w", ly.Nm, ly.Shp.Shapes(), shape, ErrShapeMismatch)
	}
	return nil
}

// RecvPrjnBySendName returns the projection received from the layer of given name
func (ly *Layer) RecvPrjnBySendName(nt *Network, sender string) (*Prjn, error) {
	for _, pj := range ly.RcvPrjns {
		if nt.Layers[pj.Send].Nm == sender {
			return pj, nil
		}
	}
	return nil, fmt.Errorf("sending layer: %v not found in list of projections received by layer: %v", sender, ly.Nm)
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func shapeLen(shp []int) int {
	n := 1
	for _, d := range shp {
		n *= d
	}
	return n
}

// unravel decomposes a neuron index into row, col, chan for a [rows, cols, chans] shape
func unravel(idx int, shp []int) (row, col, ch int) {
	nc := shp[2]
	pix := idx / nc
	return pix / shp[1], pix % shp[1], idx % nc
}
