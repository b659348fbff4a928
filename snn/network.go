// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snn

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"unsafe"

	"github.com/c2h5oh/datasize"
	"github.com/emer/emergent/v2/emer"
	"github.com/emer/emergent/v2/params"
	"github.com/goki/ki/indent"
)

// snn.Network is the converted spiking network: the Layers arena, with
// designated input and output layers.  Layers refer to each other only
// by their index in Layers.
type Network struct {
	Nm        string            `desc:"overall name of network -- helps discriminate if there are multiple"`
	Layers    []*Layer          `desc:"list of layers, indexed by Layer.Idx"`
	LayMap    map[string]*Layer `view:"-" desc:"map of name to layers -- layer names must be unique"`
	Inputs    []int             `desc:"indexes of the input layers, in order"`
	Outputs   []int             `desc:"indexes of the output layers, in order"`
	Order     []int             `desc:"indexes of the layers in topological order, from Finalize"`
	BatchSize int               `def:"1" desc:"number of samples simulated in parallel"`
	DT        float32           `def:"1" desc:"integration time step in msec"`
	Seed      int64             `desc:"random seed for the engine, used by Poisson input neurons"`
	Eng       Engine            `view:"-" desc:"engine that the network has been compiled onto -- nil if not compiled"`
}

// NewNetwork returns a new Network with defaults
func NewNetwork(name string) *Network {
	nt := &Network{Nm: name}
	nt.Defaults()
	return nt
}

func (nt *Network) Defaults() {
	nt.BatchSize = 1
	nt.DT = 1
}

// Name returns the name of the network
func (nt *Network) Name() string { return nt.Nm }

// NLayers returns the number of layers
func (nt *Network) NLayers() int { return len(nt.Layers) }

// Layer returns the layer at given index
func (nt *Network) Layer(idx int) *Layer { return nt.Layers[idx] }

// MakeLayMap updates layer map based on current layers
func (nt *Network) MakeLayMap() {
	nt.LayMap = make(map[string]*Layer, len(nt.Layers))
	for _, ly := range nt.Layers {
		nt.LayMap[ly.Nm] = ly
	}
}

// LayerByName returns a layer by looking it up by name in the layer map (nil if not found).
// Will create the layer map if it is nil or a different size than layers slice,
// but otherwise needs to be updated manually.
func (nt *Network) LayerByName(name string) *Layer {
	if nt.LayMap == nil || len(nt.LayMap) != len(nt.Layers) {
		nt.MakeLayMap()
	}
	return nt.LayMap[name]
}

// LayerByNameTry returns a layer by looking it up by name -- emits a log error message
// if layer is not found
func (nt *Network) LayerByNameTry(name string) (*Layer, error) {
	ly := nt.LayerByName(name)
	if ly == nil {
		err := fmt.Errorf("Layer named: %v not found in Network: %v", name, nt.Nm)
		log.Println(err)
		return ly, err
	}
	return ly, nil
}

// AddLayer adds a new layer with given name, shape and neuron type.  The shape
// can be nil for non-input layers, in which case it is set by the first
// projection received.  Input neuron types make an Input layer.
func (nt *Network) AddLayer(name string, shape []int, ntyp NeuronTypes) *Layer {
	ly := &Layer{Nm: name, Neuron: ntyp, Typ: emer.Hidden}
	ly.Neurons.Defaults()
	if len(shape) > 0 {
		ly.Shp.SetShape(shape, nil, nil)
	}
	ly.Idx = len(nt.Layers)
	if ntyp.IsInput() {
		ly.Typ = emer.Input
		nt.Inputs = append(nt.Inputs, ly.Idx)
	}
	nt.Layers = append(nt.Layers, ly)
	if nt.LayMap == nil {
		nt.LayMap = make(map[string]*Layer)
	}
	nt.LayMap[name] = ly
	return ly
}

// AddOutput designates the layer as an output of the network
func (nt *Network) AddOutput(ly *Layer) {
	if ly.IsOutput() {
		return
	}
	ly.Typ = emer.Target
	nt.Outputs = append(nt.Outputs, ly.Idx)
}

// ConnectLayers connects the sending layer to the receiving layer with
// given projection, which the receiving layer then owns.
// Returns ErrShapeMismatch if the shape of the receiving layer disagrees with
// the shape computed for the projection.
func (nt *Network) ConnectLayers(send, recv *Layer, pj *Prjn) error {
	if err := pj.Connect(send, recv); err != nil {
		return err
	}
	recv.RcvPrjns = append(recv.RcvPrjns, pj)
	return nil
}

// SendLayer returns the sending layer of the projection
func (nt *Network) SendLayer(pj *Prjn) *Layer { return nt.Layers[pj.Send] }

// Finalize computes the topological Order of the layers, starting from the
// inputs: a layer is reached once the sending layers of all of its projections
// have been reached.  Returns ErrShapeMismatch if any output layer cannot be reached.
func (nt *Network) Finalize() error {
	nt.Order = nil
	nl := len(nt.Layers)
	nwait := make([]int, nl)
	sends := make([][]int, nl)
	for _, ly := range nt.Layers {
		nwait[ly.Idx] = len(ly.RcvPrjns)
		for _, pj := range ly.RcvPrjns {
			sends[pj.Send] = append(sends[pj.Send], ly.Idx)
		}
	}
	visited := make([]bool, nl)
	queue := make([]int, 0, nl)
	for _, li := range nt.Inputs {
		if !visited[li] {
			visited[li] = true
			queue = append(queue, li)
		}
	}
	var order []int
	for len(queue) > 0 {
		li := queue[0]
		queue = queue[1:]
		order = append(order, li)
		for _, ri := range sends[li] {
			nwait[ri]--
			if nwait[ri] == 0 && !visited[ri] {
				visited[ri] = true
				queue = append(queue, ri)
			}
		}
	}
	var unreach []string
	for _, oi := range nt.Outputs {
		if !visited[oi] {
			unreach = append(unreach, nt.Layers[oi].Nm)
		}
	}
	if len(nt.Outputs) == 0 {
		return fmt.Errorf("Network Finalize: %s has no output layers: %w", nt.Nm, ErrShapeMismatch)
	}
	if len(unreach) > 0 {
		return fmt.Errorf("Network Finalize: %s: output layers unreachable from input layers: %v: %w", nt.Nm, unreach, ErrShapeMismatch)
	}
	nt.Order = order
	return nil
}

// ApplyParams applies given parameter style Sheet to layers and prjns in this network.
// Returns true if any params were set, and error if there were any errors.
// If setMsg is true, then a message is printed to confirm each parameter that is set.
// It always prints a message if a parameter fails to be set.
// If the network is compiled, the thresholds are updated on the engine, and
// the network is compiled again if any Pipelined flag changed.
func (nt *Network) ApplyParams(pars *params.Sheet, setMsg bool) (bool, error) {
	applied := false
	var rerr error
	pipe := make([]bool, len(nt.Layers))
	for li, ly := range nt.Layers {
		pipe[li] = ly.Neurons.Pipelined
	}
	for _, ly := range nt.Layers {
		app, err := pars.Apply(ly, setMsg)
		if app {
			applied = true
		}
		if err != nil {
			rerr = err
		}
		for _, pj := range ly.RcvPrjns {
			app, err = pars.Apply(pj, setMsg)
			if app {
				applied = true
			}
			if err != nil {
				rerr = err
			}
		}
	}
	if !applied || nt.Eng == nil {
		return applied, rerr
	}
	for li, ly := range nt.Layers {
		if ly.Neurons.Pipelined != pipe[li] {
			if err := nt.Compile(nt.Eng); err != nil {
				return applied, err
			}
			return applied, rerr
		}
	}
	for _, ly := range nt.Layers {
		if err := nt.Eng.SetThreshold(ly.Nm, ly.Neurons.Thr); err != nil {
			rerr = err
		}
	}
	return applied, rerr
}

// SetThr sets the firing threshold of the layer, on the engine too if compiled
func (nt *Network) SetThr(ly *Layer, thr float32) error {
	ly.Neurons.Thr = thr
	if nt.Eng == nil {
		return nil
	}
	return nt.Eng.SetThreshold(ly.Nm, thr)
}

// PipelineDepth returns the number of batches of latency between the input and
// output layers, due to Pipelined neurons in non-output layers.  Every path from
// an input to an output must have the same latency, else ErrUnsupportedTopology.
func (nt *Network) PipelineDepth() (int, error) {
	if len(nt.Order) == 0 {
		return 0, fmt.Errorf("Network PipelineDepth: network %s has not been finalized", nt.Nm)
	}
	nl := len(nt.Layers)
	minl := make([]int, nl)
	maxl := make([]int, nl)
	for _, li := range nt.Order {
		ly := nt.Layers[li]
		lo, hi := 0, 0
		for pi, pj := range ly.RcvPrjns {
			if pi == 0 || minl[pj.Send] < lo {
				lo = minl[pj.Send]
			}
			if pi == 0 || maxl[pj.Send] > hi {
				hi = maxl[pj.Send]
			}
		}
		if ly.Neurons.Pipelined && !ly.IsOutput() {
			lo++
			hi++
		}
		minl[li], maxl[li] = lo, hi
	}
	depth := -1
	for _, oi := range nt.Outputs {
		if minl[oi] != maxl[oi] || (depth >= 0 && maxl[oi] != depth) {
			return 0, fmt.Errorf("Network PipelineDepth: %s: paths to output layers have different latencies: %w", nt.Nm, ErrUnsupportedTopology)
		}
		depth = maxl[oi]
	}
	if depth < 0 {
		depth = 0
	}
	return depth, nil
}

//////////////////////////////////////////////////////////////////////////////////////
//  Reports

// Summary returns a table of the layers in topological order (or as added, if
// not finalized), with their shape, neuron type, and received projections
func (nt *Network) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Network: %s\n", nt.Nm)
	fmt.Fprintf(&b, "%-20s %-16s %-14s %s\n", "Layer", "Shape", "Neuron", "Incoming")
	order := nt.Order
	if len(order) == 0 {
		for li := range nt.Layers {
			order = append(order, li)
		}
	}
	for _, li := range order {
		ly := nt.Layers[li]
		fmt.Fprintf(&b, "%-20s %-16v %-14v %d\n", ly.Nm, ly.Shp.Shapes(), ly.Neuron, len(ly.RcvPrjns))
		for _, pj := range ly.RcvPrjns {
			b.Write(indent.TabBytes(1))
			fmt.Fprintf(&b, "<- %s (%v, %v)\n", nt.Layers[pj.Send].Nm, pj.Typ, pj.Conn)
		}
	}
	return b.String()
}

// SizeReport returns a string reporting the size of each layer and projection
// in the network, and total memory footprint of the state on the engine.
func (nt *Network) SizeReport() string {
	var b strings.Builder
	neur := 0
	neurMem := 0
	syn := 0
	synMem := 0
	nvars := len(NeuronVars)
	f32 := int(unsafe.Sizeof(float32(0)))
	for _, ly := range nt.Layers {
		nn := ly.NNeurons()
		nmem := nn * nvars * f32 * nt.BatchSize
		neur += nn
		neurMem += nmem
		fmt.Fprintf(&b, "%14s:\t Neurons: %d\t NeurMem: %v \n", ly.Nm, nn, (datasize.ByteSize)(nmem).HumanReadable())
		for _, pj := range ly.RcvPrjns {
			var ns, pmem int
			if pj.Conn == Sparse {
				ns = pj.NSyns
				pmem = ns * int(unsafe.Sizeof(int32(0))*2+unsafe.Sizeof(float32(0)))
			} else if pj.Wts != nil {
				pmem = pj.Wts.Len() * f32
			}
			syn += ns
			synMem += pmem
			fmt.Fprintf(&b, "\t%14s:\t Type: %v \t Syns: %d\t SynMem: %v\n", nt.Layers[pj.Send].Nm, pj.Conn, ns, (datasize.ByteSize)(pmem).HumanReadable())
		}
	}
	fmt.Fprintf(&b, "\n\n%14s:\t Neurons: %d\t NeurMem: %v \t Syns: %d \t SynMem: %v\n", nt.Nm, neur, (datasize.ByteSize)(neurMem).HumanReadable(), syn, (datasize.ByteSize)(synMem).HumanReadable())
	return b.String()
}

// Validate checks that all layers have shapes and all projections are
// connected with weights, returning all problems found
func (nt *Network) Validate() error {
	emsg := ""
	for _, ly := range nt.Layers {
		if !ly.HasShape() {
			emsg += fmt.Sprintf("layer %s has no shape\n", ly.Nm)
		}
		for _, pj := range ly.RcvPrjns {
			if err := pj.Validate(); err != nil {
				emsg += err.Error() + "\n"
			}
		}
	}
	if emsg != "" {
		return errors.New(emsg)
	}
	return nil
}
