// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ann

import (
	"errors"
	"fmt"
	"log"

	"github.com/emer/etable/v2/etensor"
)

// Model is a source network graph: the layers that have been called within it,
// in the order they were added (which is always a topological order), and the
// nodes created by those calls.  A Layer can also be called within other models,
// but each Model only sees its own nodes.
type Model struct {
	Nm      string            `desc:"name of the model"`
	Layers  []*Layer          `desc:"layers in the order they were added to this model"`
	Inputs  []*Layer          `desc:"input layers, in the order they receive data"`
	Outputs []*Layer          `desc:"output layers -- if empty, the layers without any outbound layers in this model"`
	LayMap  map[string]*Layer `view:"-" desc:"map of name to layers"`
	nodes   map[*Node]bool
}

// NewModel returns a new empty model
func NewModel(name string) *Model {
	m := &Model{Nm: name}
	m.LayMap = make(map[string]*Layer)
	m.nodes = make(map[*Node]bool)
	return m
}

// Name returns the model name
func (m *Model) Name() string { return m.Nm }

// LayerByName returns layer of given name, nil if not found (with a log message)
func (m *Model) LayerByName(name string) *Layer {
	ly, ok := m.LayMap[name]
	if !ok {
		log.Println(fmt.Errorf("Layer named: %v not found in Model: %v", name, m.Nm))
		return nil
	}
	return ly
}

// LayerIndex returns the index of the layer in Layers, -1 if not in the model
func (m *Model) LayerIndex(ly *Layer) int {
	for i, l := range m.Layers {
		if l == ly {
			return i
		}
	}
	return -1
}

// Apply calls the layer on given inbound layers within this model, recording
// a new Node, and adds the layer to the model if it is not already there.
// Returns the layer for convenience.
func (m *Model) Apply(ly *Layer, in ...*Layer) *Layer {
	if m.LayerIndex(ly) < 0 {
		m.Layers = append(m.Layers, ly)
		m.LayMap[ly.Nm] = ly
	}
	nd := &Node{Out: ly, In: in}
	ly.InNodes = append(ly.InNodes, nd)
	for _, il := range in {
		il.OutNodes = append(il.OutNodes, nd)
	}
	m.nodes[nd] = true
	return ly
}

// AddInput adds an input layer of given shape: [rows, cols, chans] or [n]
func (m *Model) AddInput(name string, shape ...int) *Layer {
	ly := &Layer{Nm: name, Kind: Input, Shp: copyShape(shape)}
	m.Inputs = append(m.Inputs, ly)
	return m.Apply(ly)
}

// AddDense adds a Dense layer without bias, receiving from given layer
func (m *Model) AddDense(name string, units int, act Activations, in *Layer) *Layer {
	ly := &Layer{Nm: name, Kind: Dense, Units: units, Act: act}
	return m.Apply(ly, in)
}

// AddConv2D adds a Conv2D layer without bias, receiving from given layer.
// stride of 0 defaults to 1.
func (m *Model) AddConv2D(name string, filters int, size, stride [2]int, pad PadModes, act Activations, in *Layer) *Layer {
	ly := &Layer{Nm: name, Kind: Conv2D, Filters: filters, Size: size, Stride: stride, Pad: pad, Act: act}
	return m.Apply(ly, in)
}

// AddAvePool2D adds an average pooling layer.  stride of 0 defaults to size.
func (m *Model) AddAvePool2D(name string, size, stride [2]int, pad PadModes, in *Layer) *Layer {
	ly := &Layer{Nm: name, Kind: AvePool2D, Size: size, Stride: stride, Pad: pad}
	return m.Apply(ly, in)
}

// AddGlobalAvePool2D adds a global average pooling layer
func (m *Model) AddGlobalAvePool2D(name string, in *Layer) *Layer {
	ly := &Layer{Nm: name, Kind: GlobalAvePool2D}
	return m.Apply(ly, in)
}

// AddAdd adds an elementwise sum of the given layers
func (m *Model) AddAdd(name string, in ...*Layer) *Layer {
	ly := &Layer{Nm: name, Kind: Add}
	return m.Apply(ly, in...)
}

// AddFlatten adds a flatten layer
func (m *Model) AddFlatten(name string, in *Layer) *Layer {
	ly := &Layer{Nm: name, Kind: Flatten}
	return m.Apply(ly, in)
}

// AddDropout adds a dropout layer with given (training-time) rate
func (m *Model) AddDropout(name string, rate float32, in *Layer) *Layer {
	ly := &Layer{Nm: name, Kind: Dropout, Rate: rate}
	return m.Apply(ly, in)
}

// node returns the node of layer within this model, nil if none
func (m *Model) node(ly *Layer) *Node {
	for _, nd := range ly.InNodes {
		if m.nodes[nd] {
			return nd
		}
	}
	return nil
}

// InLayers returns the inbound layers of given layer within this model,
// one per inbound edge, in order.
func (m *Model) InLayers(ly *Layer) []*Layer {
	nd := m.node(ly)
	if nd == nil {
		return nil
	}
	return nd.In
}

// OutLayers returns the distinct outbound layers of given layer within this model
func (m *Model) OutLayers(ly *Layer) []*Layer {
	var outs []*Layer
	for _, nd := range ly.OutNodes {
		if !m.nodes[nd] {
			continue
		}
		dup := false
		for _, o := range outs {
			if o == nd.Out {
				dup = true
				break
			}
		}
		if !dup {
			outs = append(outs, nd.Out)
		}
	}
	return outs
}

// OutputLayers returns Outputs if set, and otherwise the layers that have
// no outbound layers within this model.
func (m *Model) OutputLayers() []*Layer {
	if len(m.Outputs) > 0 {
		return m.Outputs
	}
	var outs []*Layer
	for _, ly := range m.Layers {
		if len(m.OutLayers(ly)) == 0 {
			outs = append(outs, ly)
		}
	}
	return outs
}

// Build computes the shapes of all layers from their inputs, and allocates
// the weights of weighted layers that do not yet have them.
// Existing weights must have the right shape.
func (m *Model) Build() error {
	emsg := ""
	for _, ly := range m.Layers {
		nn := 0
		for _, nd := range ly.InNodes {
			if m.nodes[nd] {
				nn++
			}
		}
		if nn > 1 {
			emsg += fmt.Sprintf("layer %s: called %d times within model %s\n", ly.Nm, nn, m.Nm)
			continue
		}
		in := m.InLayers(ly)
		ins := make([][]int, len(in))
		for i, il := range in {
			ins[i] = il.Shp
		}
		shp, err := ly.outShape(ins)
		if err != nil {
			emsg += err.Error() + "\n"
			continue
		}
		ly.Shp = shp
		if !ly.Kind.IsWeighted() {
			continue
		}
		wsh := ly.WtShape(ins[0])
		if ly.Wts == nil {
			ly.Wts = etensor.NewFloat32(wsh, nil, nil)
		} else if !shapeEqual(ly.Wts.Shapes(), wsh) {
			emsg += fmt.Sprintf("layer %s: weights shape %v, needs %v\n", ly.Nm, ly.Wts.Shapes(), wsh)
		}
		if ly.UseBias && len(ly.Bias) == 0 {
			ly.Bias = make([]float32, wsh[len(wsh)-1])
		}
	}
	if emsg != "" {
		return errors.New(emsg)
	}
	return nil
}
