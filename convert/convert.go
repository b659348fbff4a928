// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package convert converts a trained ann.Model into a spiking snn.Network.

Each weighted layer (Dense, Conv2D) of the source model becomes a layer of
integrate-and-fire neurons, whose threshold is set by a Normalizer.
Pass-through layers (Add, Flatten, Dropout) are resolved to the layers that
produce their values, and average-pooling layers are fused into the
projections of the weighted layers that follow them.  There is no other
layer kind that can be converted, and weighted layers other than the last
one must use ReLU activation without bias.
*/
package convert

import (
	"fmt"
	"log"

	"github.com/emer/spikeconv/ann"
	"github.com/emer/spikeconv/snn"
	"github.com/goki/ki/kit"
)

// InputTypes are the encodings of the source model inputs into spikes
type InputTypes int32

//go:generate stringer -type=InputTypes

var KiT_InputTypes = kit.Enums.AddEnum(InputTypesN, false, nil)

func (ev InputTypes) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *InputTypes) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

const (
	// InputSpike spikes on every step where the input is positive
	InputSpike InputTypes = iota

	// InputSpikeSigned also emits negative spikes for negative inputs
	InputSpikeSigned

	// InputPoisson spikes at random with a rate proportional to the input
	InputPoisson

	// InputPoissonSigned is InputPoisson with negative spikes for negative inputs
	InputPoissonSigned

	// InputIF integrates the input, spiking when it reaches 1
	InputIF

	// InputIFSigned is InputIF with negative spikes at -1
	InputIFSigned

	InputTypesN
)

// NeuronType returns the neuron type of the input layers, and whether they
// emit signed spikes
func (it InputTypes) NeuronType() (snn.NeuronTypes, bool) {
	switch it {
	case InputSpikeSigned:
		return snn.SpikeInput, true
	case InputPoisson:
		return snn.PoissonInput, false
	case InputPoissonSigned:
		return snn.PoissonInput, true
	case InputIF:
		return snn.IFInput, false
	case InputIFSigned:
		return snn.IFInput, true
	}
	return snn.SpikeInput, false
}

// Config has the options of a conversion
type Config struct {
	InputType  InputTypes    `desc:"encoding of the inputs into spikes"`
	ConnType   snn.ConnTypes `desc:"whether weights are computed procedurally or materialized as sparse lists"`
	BatchSize  int           `def:"1" desc:"number of samples simulated in parallel"`
	DT         float32       `def:"1" desc:"integration time step in msec"`
	RateFactor float32       `def:"1" desc:"for Poisson inputs, scaling of the input value to a firing rate per msec"`
	Seed       int64         `desc:"random seed for the engine"`
	Verbose    bool          `desc:"log each layer as it is configured"`
}

func (cf *Config) Defaults() {
	cf.InputType = InputPoisson
	cf.ConnType = snn.Procedural
	cf.BatchSize = 1
	cf.DT = 1
	cf.RateFactor = 1
}

// Converter converts source models with a given configuration and normalization.
// It holds no state between conversions.
type Converter struct {
	Config Config     `desc:"conversion options"`
	Norm   Normalizer `desc:"method of setting the thresholds of the converted layers"`
}

// NewConverter returns a new Converter with default Config and given
// Normalizer (NoNorm if nil)
func NewConverter(norm Normalizer) *Converter {
	cv := &Converter{Norm: norm}
	if norm == nil {
		cv.Norm = &NoNorm{}
	}
	cv.Config.Defaults()
	return cv
}

// Convert builds the spiking network equivalent to the model, which must
// have been built, and compiles it onto the engine.  All checks on the model
// are done before anything is built, and on any error no network is returned.
func (cv *Converter) Convert(model *ann.Model, eng snn.Engine) (*snn.Network, error) {
	if err := CheckModel(model); err != nil {
		return nil, err
	}
	ctx, err := cv.Norm.PreCompile(model, &cv.Config)
	if err != nil {
		return nil, err
	}
	b := newBuilder(model, &cv.Config)
	nt, err := b.build(cv.Norm, ctx)
	if err != nil {
		return nil, err
	}
	if err := nt.Finalize(); err != nil {
		return nil, err
	}
	if err := nt.Compile(eng); err != nil {
		return nil, err
	}
	if err := cv.Norm.PostCompile(nt); err != nil {
		return nil, err
	}
	return nt, nil
}

// CheckModel checks that every layer of the model can be converted,
// returning snn.ErrUnsupportedLayer naming the first layer that cannot.
// The final layers are exempt from the kind and activation checks, but must
// be Dense or Conv2D, and no weighted layer can have a bias.  Once the kinds
// are checked, weighted layers must have weights (else snn.ErrShapeMismatch),
// and same padding must put the first window where the projections do.
func CheckModel(model *ann.Model) error {
	if len(model.Inputs) == 0 {
		return fmt.Errorf("model %s has no input layers: %w", model.Nm, snn.ErrUnsupportedLayer)
	}
	final := make(map[*ann.Layer]bool)
	for _, ly := range model.OutputLayers() {
		final[ly] = true
	}
	for _, ly := range model.Layers {
		if ly.Kind.IsWeighted() && ly.UseBias {
			return fmt.Errorf("layer %s has a bias: %w", ly.Nm, snn.ErrUnsupportedLayer)
		}
		if final[ly] {
			if !ly.Kind.IsWeighted() {
				return fmt.Errorf("final layer %s of kind %v cannot be an output: %w", ly.Nm, ly.Kind, snn.ErrUnsupportedLayer)
			}
			continue
		}
		switch ly.Kind {
		case ann.Input, ann.Flatten, ann.Dropout, ann.Add, ann.AvePool2D, ann.GlobalAvePool2D:
		case ann.Dense, ann.Conv2D:
			if ly.Act != ann.ReLU {
				return fmt.Errorf("layer %s has %v activation, only ReLU is supported: %w", ly.Nm, ly.Act, snn.ErrUnsupportedLayer)
			}
		default:
			return fmt.Errorf("layer %s of kind %v is not supported: %w", ly.Nm, ly.Kind, snn.ErrUnsupportedLayer)
		}
		for _, il := range model.InLayers(ly) {
			if model.LayerIndex(il) < 0 {
				return fmt.Errorf("layer %s receives from layer %s, which is not in model %s: %w", ly.Nm, il.Nm, model.Nm, snn.ErrUnsupportedLayer)
			}
		}
	}
	for _, ly := range model.Layers {
		if ly.Kind.IsWeighted() && ly.Wts == nil {
			return fmt.Errorf("layer %s has no weights -- Build model first: %w", ly.Nm, snn.ErrShapeMismatch)
		}
		if err := checkPad(model, ly); err != nil {
			return err
		}
	}
	return nil
}

// checkPad checks that the same padding of a Conv2D or AvePool2D layer starts
// the first window at the offset used by the projections, which is not the
// case for some strided windows
func checkPad(model *ann.Model, ly *ann.Layer) error {
	if (ly.Kind != ann.Conv2D && ly.Kind != ann.AvePool2D) || ly.Pad != ann.Same {
		return nil
	}
	in := model.InLayers(ly)
	if len(in) == 0 || len(in[0].Shp) != 3 {
		return nil
	}
	st := ly.Strides()
	for ax := 0; ax < 2; ax++ {
		pad := ly.Pad.PadBefore(in[0].Shp[ax], ly.Size[ax], st[ax])
		if pad != snn.Same.Offset(ly.Size[ax]) {
			return fmt.Errorf("layer %s: same padding of window %v with stride %v on input %v starts at %d, not %d: %w", ly.Nm, ly.Size, st, in[0].Shp, -pad, -snn.Same.Offset(ly.Size[ax]), snn.ErrUnsupportedLayer)
		}
	}
	return nil
}

//////////////////////////////////////////////////////////////////////////////////////
//  builder

// builder holds the state of one conversion, with source layers referred to
// by their index in the model Layers
type builder struct {
	model   *ann.Model
	cfg     *Config
	nt      *snn.Network
	ids     map[*ann.Layer]int
	snnIdx  []int
	visited []bool
	outs    map[*ann.Layer]bool
}

func newBuilder(model *ann.Model, cfg *Config) *builder {
	b := &builder{model: model, cfg: cfg}
	nl := len(model.Layers)
	b.ids = make(map[*ann.Layer]int, nl)
	for i, ly := range model.Layers {
		b.ids[ly] = i
	}
	b.snnIdx = make([]int, nl)
	for i := range b.snnIdx {
		b.snnIdx[i] = -1
	}
	b.visited = make([]bool, nl)
	b.outs = make(map[*ann.Layer]bool)
	for _, ly := range model.OutputLayers() {
		b.outs[ly] = true
	}
	return b
}

// build creates the network layers and projections, visiting the source
// layers from the inputs once all of their inbound layers have been visited
func (b *builder) build(norm Normalizer, ctx NormContext) (*snn.Network, error) {
	m := b.model
	b.nt = snn.NewNetwork(m.Nm)
	b.nt.BatchSize = b.cfg.BatchSize
	b.nt.DT = b.cfg.DT
	b.nt.Seed = b.cfg.Seed

	nl := len(m.Layers)
	nwait := make([]int, nl)
	sends := make([][]int, nl)
	for ri, ly := range m.Layers {
		for _, il := range m.InLayers(ly) {
			nwait[ri]++
			si := b.ids[il]
			sends[si] = append(sends[si], ri)
		}
	}
	ntyp, signed := b.cfg.InputType.NeuronType()
	var queue []int
	for _, il := range m.Inputs {
		li := b.ids[il]
		if b.visited[li] {
			continue
		}
		b.visited[li] = true
		sl := b.nt.AddLayer(il.Nm, il.Shp, ntyp)
		sl.Neurons.SignedSpikes = signed
		sl.Neurons.RateFactor = b.cfg.RateFactor
		b.snnIdx[li] = sl.Idx
		if b.cfg.Verbose {
			log.Printf("configuring input layer: %s %v as %v\n", il.Nm, il.Shp, ntyp)
		}
		queue = append(queue, li)
	}
	for len(queue) > 0 {
		li := queue[0]
		queue = queue[1:]
		if err := b.configLayer(m.Layers[li], norm, ctx); err != nil {
			return nil, err
		}
		for _, ri := range sends[li] {
			nwait[ri]--
			if nwait[ri] == 0 && !b.visited[ri] {
				b.visited[ri] = true
				queue = append(queue, ri)
			}
		}
	}
	return b.nt, nil
}

// configLayer creates the network layer for a weighted source layer and its
// projections, or checks the pooling rules for a pool layer
func (b *builder) configLayer(ly *ann.Layer, norm Normalizer, ctx NormContext) error {
	switch {
	case ly.Kind.IsPool():
		in := b.model.InLayers(ly)
		if len(in) != 1 {
			return fmt.Errorf("pool layer %s has %d inbound layers, needs 1: %w", ly.Nm, len(in), snn.ErrUnsupportedLayer)
		}
		if b.outs[ly] {
			return fmt.Errorf("pool layer %s cannot be an output: %w", ly.Nm, snn.ErrUnsupportedLayer)
		}
		for _, p := range b.resolve(in[0]) {
			if p.Kind.IsPool() {
				return fmt.Errorf("pool layer %s receives from pool layer %s: %w", ly.Nm, p.Nm, snn.ErrUnsupportedLayer)
			}
		}
		return nil
	case !ly.Kind.IsWeighted():
		return nil
	}
	sl := b.nt.AddLayer(ly.Nm, nil, snn.IF)
	sl.Neurons.Thr = norm.CreateNeurons(ly, ctx)
	b.snnIdx[b.ids[ly]] = sl.Idx
	if b.cfg.Verbose {
		log.Printf("configuring layer: %s %v threshold: %g\n", ly.Nm, ly.Kind, sl.Neurons.Thr)
	}
	for _, il := range b.model.InLayers(ly) {
		for _, p := range b.resolve(il) {
			if !p.Kind.IsPool() {
				if err := b.connect(p, ly, sl, nil); err != nil {
					return err
				}
				continue
			}
			for _, pp := range b.resolve(b.model.InLayers(p)[0]) {
				if err := b.connect(pp, ly, sl, p); err != nil {
					return err
				}
			}
		}
	}
	if b.outs[ly] {
		b.nt.AddOutput(sl)
	}
	return nil
}

// resolve returns the layers that produce the values of given layer, following
// pass-through layers, with one entry per inbound edge
func (b *builder) resolve(ly *ann.Layer) []*ann.Layer {
	if !ly.Kind.IsPassThrough() {
		return []*ann.Layer{ly}
	}
	var prods []*ann.Layer
	for _, il := range b.model.InLayers(ly) {
		prods = append(prods, b.resolve(il)...)
	}
	return prods
}

// connect makes the projection from the network layer of send to the network
// layer sl of the weighted source layer ly, fusing the pooling of pool if non-nil
func (b *builder) connect(send, ly *ann.Layer, sl *snn.Layer, pool *ann.Layer) error {
	si := b.snnIdx[b.ids[send]]
	if si < 0 {
		return fmt.Errorf("layer %s receives from layer %s, which has not been converted: %w", ly.Nm, send.Nm, snn.ErrUnsupportedLayer)
	}
	ssl := b.nt.Layer(si)
	var pj *snn.Prjn
	switch {
	case pool == nil && ly.Kind == ann.Dense:
		pj = snn.NewDensePrjn(ly.Units)
	case pool == nil:
		pj = snn.NewConv2DPrjn(convGeom(ly))
	case ly.Kind == ann.Dense:
		pj = snn.NewPoolDensePrjn(b.poolGeom(pool, ssl), ly.Units)
	default:
		pj = snn.NewPoolConv2DPrjn(b.poolGeom(pool, ssl), convGeom(ly))
	}
	pj.Conn = b.cfg.ConnType
	if err := b.nt.ConnectLayers(ssl, sl, pj); err != nil {
		return fmt.Errorf("converting layer %s: %w", ly.Nm, err)
	}
	if err := pj.SetWts(ly.Wts); err != nil {
		return fmt.Errorf("converting layer %s: %w", ly.Nm, err)
	}
	if b.cfg.Verbose {
		log.Printf("\tprojection: %v\n", pj)
	}
	return nil
}

// poolGeom returns the pooling geometry of a pool layer, where a global
// pool is a window over the whole sending layer
func (b *builder) poolGeom(pool *ann.Layer, send *snn.Layer) snn.PoolGeom {
	if pool.Kind == ann.GlobalAvePool2D {
		shp := send.Shp.Shapes()
		if len(shp) < 2 {
			return snn.PoolGeom{}
		}
		return snn.PoolGeom{Size: [2]int{shp[0], shp[1]}, Stride: [2]int{shp[0], shp[1]}, Pad: snn.Valid}
	}
	return snn.PoolGeom{Size: pool.Size, Stride: pool.Strides(), Pad: padMode(pool.Pad)}
}

func convGeom(ly *ann.Layer) snn.ConvGeom {
	return snn.ConvGeom{Kernel: ly.Size, Stride: ly.Strides(), Pad: padMode(ly.Pad), Filters: ly.Filters}
}

func padMode(pm ann.PadModes) snn.PadModes {
	if pm == ann.Same {
		return snn.Same
	}
	return snn.Valid
}
