// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ann

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// difTol is the numerical difference tolerance for comparing vs. target values
const difTol = float32(1.0e-6)

func TestPadModes(t *testing.T) {
	assert.Equal(t, 3, Valid.OutSize(10, 3, 3))
	assert.Equal(t, 8, Valid.OutSize(10, 3, 1))
	assert.Equal(t, 4, Same.OutSize(10, 3, 3))
	assert.Equal(t, 10, Same.OutSize(10, 3, 1))
	assert.Equal(t, 0, Valid.PadBefore(10, 3, 3))
	assert.Equal(t, 1, Same.PadBefore(10, 3, 3))
	assert.Equal(t, 2, Same.PadBefore(10, 5, 1))
}

func TestConvAntiDiag(t *testing.T) {
	x := []float32{
		1, 0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0,
		0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1, 0,
		0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1,
		0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1, 0,
		1, 0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0,
		0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1,
		0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1,
		0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1,
	}
	y := []float32{
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		0, 1, 1, 0, 1, 1, 0, 1, 1, 0,
		2, 1, 1, 2, 1, 1, 2, 1, 1, 2,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 2, 1, 1, 2, 1, 1, 2, 1,
		0, 2, 0, 0, 2, 0, 0, 2, 0, 0,
		3, 0, 0, 3, 0, 0, 3, 0, 0, 3,
		0, 1, 2, 1, 0, 3, 0, 1, 2, 1,
		1, 2, 1, 1, 2, 1, 1, 2, 1, 1,
		1, 2, 1, 2, 1, 2, 1, 2, 1, 2,
	}
	m := NewModel("conv")
	in := m.AddInput("in", 12, 12, 1)
	cv := m.AddConv2D("conv", 1, [2]int{3, 3}, [2]int{}, Valid, ReLU, in)
	require.NoError(t, m.Build())
	assert.Equal(t, []int{10, 10, 1}, cv.Shp)
	assert.Equal(t, []int{3, 3, 1, 1}, cv.Wts.Shapes())
	require.NoError(t, cv.SetWts([]float32{0, 0, 1, 0, 1, 0, 1, 0, 0}))

	outs, err := m.Predict([][]float32{x})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.InDeltaSlice(t, y, outs[0], float64(difTol))
}

func TestAvePoolCropping(t *testing.T) {
	m := NewModel("pool")
	in := m.AddInput("in", 10, 10, 2)
	pl := m.AddAvePool2D("pool", [2]int{3, 3}, [2]int{}, Same, in)
	require.NoError(t, m.Build())
	assert.Equal(t, []int{4, 4, 2}, pl.Shp)

	x := make([]float32, 200)
	for i := range x {
		if i%2 == 0 {
			x[i] = 1
		} else {
			x[i] = 2
		}
	}
	outs, err := m.Predict([][]float32{x})
	require.NoError(t, err)
	// edge windows are cropped to the input, so every average equals the
	// constant channel value
	for i, v := range outs[0] {
		trg := float32(1)
		if i%2 == 1 {
			trg = 2
		}
		assert.InDelta(t, trg, v, float64(difTol), "pool idx: %d", i)
	}
}

func TestValidPoolBlocks(t *testing.T) {
	m := NewModel("pool")
	in := m.AddInput("in", 4, 4, 1)
	m.AddAvePool2D("pool", [2]int{2, 2}, [2]int{}, Valid, in)
	require.NoError(t, m.Build())
	x := []float32{
		1, 3, 0, 0,
		0, 0, 4, 4,
		2, 2, 1, 0,
		2, 2, 0, 0,
	}
	outs, err := m.Predict([][]float32{x})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{1, 2, 2, 0.25}, outs[0], float64(difTol))
}

func TestDenseAct(t *testing.T) {
	m := NewModel("dense")
	in := m.AddInput("in", 3)
	d := m.AddDense("dense", 2, ReLU, in)
	require.NoError(t, m.Build())
	require.NoError(t, d.SetWts([]float32{1, -1, 2, -2, 3, -3}))
	outs, err := m.Predict([][]float32{{1, 1, 1}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{6, 0}, outs[0], float64(difTol))

	d.Act = Softmax
	outs, err = m.Predict([][]float32{{0, 0, 0}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.5, 0.5}, outs[0], float64(difTol))
}

func TestSharedLayer(t *testing.T) {
	m1 := NewModel("m1")
	m2 := NewModel("m2")
	in1 := m1.AddInput("in1", 4)
	in2 := m2.AddInput("in2", 4)
	d := m1.AddDense("dense", 2, ReLU, in1)
	m2.Apply(d, in2)
	require.NoError(t, m1.Build())
	require.NoError(t, m2.Build())

	assert.Len(t, d.InNodes, 2)
	assert.Equal(t, []*Layer{in1}, m1.InLayers(d))
	assert.Equal(t, []*Layer{in2}, m2.InLayers(d))
	assert.Equal(t, []*Layer{d}, m1.OutLayers(in1))
	assert.Empty(t, m1.OutLayers(in2))
	assert.Equal(t, []*Layer{d}, m1.OutputLayers())
	assert.Equal(t, -1, m1.LayerIndex(in2))
}

func TestBuildErrors(t *testing.T) {
	m := NewModel("bad")
	in := m.AddInput("in", 4, 4, 1)
	m.AddDense("dense", 2, ReLU, in)
	assert.Error(t, m.Build())

	m = NewModel("bad2")
	a := m.AddInput("a", 4)
	b := m.AddInput("b", 5)
	m.AddAdd("add", a, b)
	assert.Error(t, m.Build())

	m = NewModel("bad3")
	in = m.AddInput("in", 2, 2, 1)
	m.AddConv2D("conv", 1, [2]int{3, 3}, [2]int{}, Valid, ReLU, in)
	assert.Error(t, m.Build())
}
