// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package convert

import (
	"testing"

	"github.com/emer/etable/v2/etensor"
	"github.com/emer/spikeconv/ann"
	"github.com/emer/spikeconv/sim"
	"github.com/emer/spikeconv/snn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(n int, v float32) []float32 {
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = v
	}
	return vals
}

// mlpModel is Input [4] -> Hid [3] ReLU -> Out [2], with constant weights
func mlpModel(t *testing.T) *ann.Model {
	m := ann.NewModel("MLP")
	in := m.AddInput("Input", 4)
	hid := m.AddDense("Hid", 3, ann.ReLU, in)
	out := m.AddDense("Out", 2, ann.Linear, hid)
	require.NoError(t, m.Build())
	require.NoError(t, hid.SetWts(fill(4*3, 0.5)))
	require.NoError(t, out.SetWts(fill(3*2, 0.25)))
	return m
}

func mlpData(scale float32) *etensor.Float32 {
	tsr := etensor.NewFloat32([]int{2, 4}, nil, nil)
	for i, v := range []float32{1, 1, 1, 1, 2, 0, 0, 0} {
		tsr.Values[i] = v * scale
	}
	return tsr
}

func TestDataNorm(t *testing.T) {
	m := mlpModel(t)
	dn := NewDataNorm(mlpData(1))
	cv := NewConverter(dn)
	nt, err := cv.Convert(m, sim.NewEngine(1))
	require.NoError(t, err)

	// Hid acts are 2 and 1, Out acts are 1.5
	scales, err := DataNormScales(m, dn.Data)
	require.NoError(t, err)
	assert.Equal(t, float32(2), scales[m.LayerByName("Hid")])
	assert.Equal(t, float32(1.5), scales[m.LayerByName("Out")])
	assert.Equal(t, float32(2), nt.LayerByName("Hid").Neurons.Thr)
	assert.Equal(t, float32(0.75), nt.LayerByName("Out").Neurons.Thr)

	dn.Data = []*etensor.Float32{mlpData(10)}
	nt, err = cv.Convert(m, sim.NewEngine(1))
	require.NoError(t, err)
	assert.Equal(t, float32(20), nt.LayerByName("Hid").Neurons.Thr)
	assert.Equal(t, float32(0.75), nt.LayerByName("Out").Neurons.Thr)
}

// layers whose activations are below the weights are scaled by the weights
func TestDataNormWeightScale(t *testing.T) {
	m := mlpModel(t)
	scales, err := DataNormScales(m, []*etensor.Float32{mlpData(0.1)})
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), scales[m.LayerByName("Hid")])
	assert.Equal(t, float32(0.25), scales[m.LayerByName("Out")])
}

// scaling the weights of the first layer scales its threshold, while the
// threshold of the next layer, relative to it, is unchanged
func TestDataNormWeightRescale(t *testing.T) {
	data := mlpData(1)
	var hidThr, outThr []float32
	for _, k := range []float32{1, 4} {
		m := mlpModel(t)
		for i := range m.LayerByName("Hid").Wts.Values {
			m.LayerByName("Hid").Wts.Values[i] *= k
		}
		dn := NewDataNorm(data)
		nt, err := NewConverter(dn).Convert(m, sim.NewEngine(1))
		require.NoError(t, err)
		assert.Equal(t, []*etensor.Float32{data}, dn.Data)
		hidThr = append(hidThr, nt.LayerByName("Hid").Neurons.Thr)
		outThr = append(outThr, nt.LayerByName("Out").Neurons.Thr)
	}
	assert.InDelta(t, 4*hidThr[0], hidThr[1], 1.0e-5)
	assert.InDelta(t, outThr[0], outThr[1], 1.0e-5)
}

// the strategy carries nothing from one conversion to the next
func TestDataNormStateless(t *testing.T) {
	dn := NewDataNorm(mlpData(1))
	cv := NewConverter(dn)
	nt1, err := cv.Convert(mlpModel(t), sim.NewEngine(1))
	require.NoError(t, err)
	assert.Equal(t, &DataNorm{Data: []*etensor.Float32{mlpData(1)}}, dn)
	nt2, err := cv.Convert(mlpModel(t), sim.NewEngine(1))
	require.NoError(t, err)
	assert.Equal(t, nt1.LayerByName("Out").Neurons.Thr, nt2.LayerByName("Out").Neurons.Thr)
}

func TestDataNormErrors(t *testing.T) {
	m := mlpModel(t)
	_, err := NewConverter(NewDataNorm()).Convert(m, sim.NewEngine(1))
	assert.ErrorIs(t, err, snn.ErrInputCardinality)
	_, err = NewConverter(NewDataNorm(mlpData(1), mlpData(1))).Convert(m, sim.NewEngine(1))
	assert.ErrorIs(t, err, snn.ErrInputCardinality)
	empty := etensor.NewFloat32([]int{0, 4}, nil, nil)
	_, err = NewConverter(NewDataNorm(empty)).Convert(m, sim.NewEngine(1))
	assert.ErrorIs(t, err, snn.ErrInputCardinality)
}

func TestSpikeNorm(t *testing.T) {
	m := ann.NewModel("Spike")
	in := m.AddInput("Input", 2)
	hid := m.AddDense("Hid", 2, ann.ReLU, in)
	out := m.AddDense("Out", 1, ann.Linear, hid)
	require.NoError(t, m.Build())
	require.NoError(t, hid.SetWts([]float32{0.5, 0, 0, 1}))
	require.NoError(t, out.SetWts([]float32{1, 1}))

	data := etensor.NewFloat32([]int{2, 2}, nil, nil)
	copy(data.Values, []float32{1, 0, 0, 0})
	sn := NewSpikeNorm(10, data)
	cv := NewConverter(sn)
	cv.Config.InputType = InputSpike
	nt, err := cv.Convert(m, sim.NewEngine(1))
	require.NoError(t, err)

	// Hid unit 0 integrates 0.5 per step from the second step on, and only
	// reaches threshold on the last step, so Out gets no input
	assert.Equal(t, float32(4.5), nt.LayerByName("Hid").Neurons.Thr)
	assert.Equal(t, float32(1), nt.LayerByName("Out").Neurons.Thr)

	sn.ClassifyTime = 0
	_, err = cv.Convert(m, sim.NewEngine(1))
	assert.Error(t, err)

	sn.ClassifyTime = 10
	sn.Data = nil
	_, err = cv.Convert(m, sim.NewEngine(1))
	assert.ErrorIs(t, err, snn.ErrInputCardinality)
}

func TestNoNorm(t *testing.T) {
	nt, err := NewConverter(nil).Convert(mlpModel(t), sim.NewEngine(1))
	require.NoError(t, err)
	for _, ly := range nt.Layers {
		if !ly.IsInput() {
			assert.Equal(t, float32(1), ly.Neurons.Thr, ly.Nm)
		}
	}
}

func TestCheckModel(t *testing.T) {
	tests := []struct {
		name string
		mk   func() *ann.Model
	}{
		{"NoInputs", func() *ann.Model {
			return ann.NewModel("Empty")
		}},
		{"Bias", func() *ann.Model {
			m := ann.NewModel("Bias")
			in := m.AddInput("Input", 4)
			m.AddDense("Out", 2, ann.Linear, in).UseBias = true
			return m
		}},
		{"Sigmoid", func() *ann.Model {
			m := ann.NewModel("Sigmoid")
			in := m.AddInput("Input", 4)
			hid := m.AddDense("Hid", 3, ann.Sigmoid, in)
			m.AddDense("Out", 2, ann.Linear, hid)
			return m
		}},
		{"MaxPool", func() *ann.Model {
			m := ann.NewModel("MaxPool")
			in := m.AddInput("Input", 4, 4, 1)
			mp := m.Apply(&ann.Layer{Nm: "Max", Kind: ann.MaxPool2D, Size: [2]int{2, 2}}, in)
			flat := m.AddFlatten("Flat", mp)
			m.AddDense("Out", 2, ann.Linear, flat)
			return m
		}},
		{"PoolOutput", func() *ann.Model {
			m := ann.NewModel("PoolOutput")
			in := m.AddInput("Input", 4, 4, 1)
			m.AddAvePool2D("Pool", [2]int{2, 2}, [2]int{}, ann.Valid, in)
			return m
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckModel(tt.mk())
			assert.ErrorIs(t, err, snn.ErrUnsupportedLayer)
		})
	}
	assert.NoError(t, CheckModel(mlpModel(t)))
}

func TestPoolOfPool(t *testing.T) {
	m := ann.NewModel("PoolPool")
	in := m.AddInput("Input", 10, 10, 1)
	p1 := m.AddAvePool2D("Pool1", [2]int{2, 2}, [2]int{}, ann.Valid, in)
	p2 := m.AddAvePool2D("Pool2", [2]int{2, 2}, [2]int{}, ann.Valid, p1)
	flat := m.AddFlatten("Flat", p2)
	m.AddDense("Out", 2, ann.Linear, flat)
	require.NoError(t, m.Build())
	nt, err := NewConverter(nil).Convert(m, sim.NewEngine(1))
	assert.ErrorIs(t, err, snn.ErrUnsupportedLayer)
	assert.Nil(t, nt)
}

func TestWeightShapeMismatch(t *testing.T) {
	m := mlpModel(t)
	m.LayerByName("Out").Wts = etensor.NewFloat32([]int{2, 3}, nil, nil)
	nt, err := NewConverter(nil).Convert(m, sim.NewEngine(1))
	assert.ErrorIs(t, err, snn.ErrShapeMismatch)
	assert.Nil(t, nt)
}

func TestUnbuiltModel(t *testing.T) {
	m := ann.NewModel("Unbuilt")
	in := m.AddInput("Input", 4)
	m.AddDense("Out", 2, ann.Linear, in)
	nt, err := NewConverter(NewDataNorm(mlpData(1))).Convert(m, sim.NewEngine(1))
	assert.ErrorIs(t, err, snn.ErrShapeMismatch)
	assert.Nil(t, nt)
}

func TestStridedSamePad(t *testing.T) {
	tests := []struct {
		name string
		in   int
		mk   func(m *ann.Model, in *ann.Layer) *ann.Layer
		ok   bool
	}{
		{"ConvStride2", 10, func(m *ann.Model, in *ann.Layer) *ann.Layer {
			return m.AddConv2D("Conv", 1, [2]int{3, 3}, [2]int{2, 2}, ann.Same, ann.ReLU, in)
		}, false},
		{"ConvStride2Odd", 9, func(m *ann.Model, in *ann.Layer) *ann.Layer {
			return m.AddConv2D("Conv", 1, [2]int{3, 3}, [2]int{2, 2}, ann.Same, ann.ReLU, in)
		}, true},
		{"ConvStride1", 10, func(m *ann.Model, in *ann.Layer) *ann.Layer {
			return m.AddConv2D("Conv", 1, [2]int{3, 3}, [2]int{}, ann.Same, ann.ReLU, in)
		}, true},
		{"PoolStride3", 5, func(m *ann.Model, in *ann.Layer) *ann.Layer {
			return m.AddAvePool2D("Pool", [2]int{3, 3}, [2]int{}, ann.Same, in)
		}, false},
		{"PoolStride3Even", 10, func(m *ann.Model, in *ann.Layer) *ann.Layer {
			return m.AddAvePool2D("Pool", [2]int{3, 3}, [2]int{}, ann.Same, in)
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ann.NewModel(tt.name)
			in := m.AddInput("Input", tt.in, tt.in, 1)
			flat := m.AddFlatten("Flat", tt.mk(m, in))
			m.AddDense("Out", 2, ann.Linear, flat)
			require.NoError(t, m.Build())
			err := CheckModel(m)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, snn.ErrUnsupportedLayer)
			}
		})
	}
}

func TestVerbose(t *testing.T) {
	cv := NewConverter(NewDataNorm(mlpData(1)))
	cv.Config.Verbose = true
	nt, err := cv.Convert(mlpModel(t), sim.NewEngine(1))
	require.NoError(t, err)
	assert.Equal(t, 3, nt.NLayers())
}
