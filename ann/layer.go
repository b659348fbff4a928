// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ann

import (
	"fmt"

	"github.com/emer/etable/v2/etensor"
)

// Layer is one layer of a source network.  The parameters used depend on the Kind.
// Shape is computed by Model.Build from the inbound layers, except for Input
// layers where it is given.
type Layer struct {
	Nm       string           `desc:"name of the layer -- must be unique within a model"`
	Kind     LayerKinds       `desc:"kind of layer"`
	Shp      []int            `desc:"output shape: [rows, cols, chans] for 2D layers, [n] for flat layers"`
	Units    int              `desc:"number of units for Dense layers"`
	Filters  int              `desc:"number of output channels for Conv2D layers"`
	Size     [2]int           `desc:"kernel (Conv2D) or pooling window (AvePool2D) size, rows, cols"`
	Stride   [2]int           `desc:"stride of the kernel or pooling window -- 0 = default (1 for Conv2D, Size for AvePool2D)"`
	Pad      PadModes         `desc:"padding mode for Conv2D and AvePool2D"`
	Act      Activations      `desc:"activation function for weighted layers"`
	UseBias  bool             `desc:"whether the weighted layer adds a bias"`
	Rate     float32          `desc:"dropout rate -- only used during training, and recorded for reference"`
	Wts      *etensor.Float32 `desc:"weights: [in, units] for Dense, [kh, kw, in-chans, filters] for Conv2D"`
	Bias     []float32        `desc:"bias per unit or filter, if UseBias"`
	InNodes  []*Node          `desc:"nodes where this layer was called on inputs -- one per call"`
	OutNodes []*Node          `desc:"nodes where this layer is an input to another layer"`
}

// Node records one call of a Layer on a list of inbound Layers.
type Node struct {
	Out *Layer   `desc:"layer that was called"`
	In  []*Layer `desc:"inbound layers, in order"`
}

// Name returns the layer name
func (ly *Layer) Name() string { return ly.Nm }

// Shape returns the output shape
func (ly *Layer) Shape() []int { return ly.Shp }

// Len returns the number of units in the output
func (ly *Layer) Len() int {
	if len(ly.Shp) == 0 {
		return 0
	}
	n := 1
	for _, d := range ly.Shp {
		n *= d
	}
	return n
}

// Is2D returns true if the output has (rows, cols, chans) shape
func (ly *Layer) Is2D() bool { return len(ly.Shp) == 3 }

// Strides returns the effective stride of the kernel or pooling window, with defaults
func (ly *Layer) Strides() [2]int {
	st := ly.Stride
	for i := range st {
		if st[i] > 0 {
			continue
		}
		if ly.Kind == AvePool2D || ly.Kind == MaxPool2D {
			st[i] = ly.Size[i]
		} else {
			st[i] = 1
		}
	}
	return st
}

// String returns a short description of the layer
func (ly *Layer) String() string {
	return fmt.Sprintf("%s: %v %v", ly.Nm, ly.Kind, ly.Shp)
}

// WtShape returns the weight shape required by this layer given
// the shape of its input, or nil if it has no weights.
func (ly *Layer) WtShape(in []int) []int {
	switch ly.Kind {
	case Dense:
		return []int{shapeLen(in), ly.Units}
	case Conv2D:
		return []int{ly.Size[0], ly.Size[1], in[2], ly.Filters}
	}
	return nil
}

// SetWts sets the weight values from a flat list in the layout of WtShape.
// Build must have been called already.
func (ly *Layer) SetWts(vals []float32) error {
	if ly.Wts == nil {
		return fmt.Errorf("ann.Layer SetWts: layer %s has no weights allocated -- Build model first", ly.Nm)
	}
	if len(vals) != ly.Wts.Len() {
		return fmt.Errorf("ann.Layer SetWts: layer %s needs %d weight values, got %d", ly.Nm, ly.Wts.Len(), len(vals))
	}
	copy(ly.Wts.Values, vals)
	return nil
}

// outShape computes the output shape from the input shapes.
func (ly *Layer) outShape(ins [][]int) ([]int, error) {
	if ly.Kind == Input {
		return ly.Shp, nil
	}
	if len(ins) == 0 {
		return nil, fmt.Errorf("layer %s: no inbound layers", ly.Nm)
	}
	in := ins[0]
	switch ly.Kind {
	case Dense:
		if len(in) != 1 {
			return nil, fmt.Errorf("layer %s: Dense needs a flat input, got shape %v", ly.Nm, in)
		}
		return []int{ly.Units}, nil
	case Conv2D, AvePool2D, MaxPool2D:
		if len(in) != 3 {
			return nil, fmt.Errorf("layer %s: %v needs a [rows, cols, chans] input, got shape %v", ly.Nm, ly.Kind, in)
		}
		st := ly.Strides()
		orow := ly.Pad.OutSize(in[0], ly.Size[0], st[0])
		ocol := ly.Pad.OutSize(in[1], ly.Size[1], st[1])
		if orow <= 0 || ocol <= 0 {
			return nil, fmt.Errorf("layer %s: window %v does not fit input %v", ly.Nm, ly.Size, in)
		}
		ch := in[2]
		if ly.Kind == Conv2D {
			ch = ly.Filters
		}
		return []int{orow, ocol, ch}, nil
	case GlobalAvePool2D:
		if len(in) != 3 {
			return nil, fmt.Errorf("layer %s: GlobalAvePool2D needs a [rows, cols, chans] input, got shape %v", ly.Nm, in)
		}
		return []int{in[2]}, nil
	case Flatten:
		return []int{shapeLen(in)}, nil
	case Add:
		for _, o := range ins[1:] {
			if !shapeEqual(o, in) {
				return nil, fmt.Errorf("layer %s: Add inputs have different shapes: %v vs %v", ly.Nm, in, o)
			}
		}
		return copyShape(in), nil
	}
	return copyShape(in), nil
}

func shapeLen(shp []int) int {
	n := 1
	for _, d := range shp {
		n *= d
	}
	return n
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

func copyShape(shp []int) []int {
	return append([]int(nil), shp...)
}
