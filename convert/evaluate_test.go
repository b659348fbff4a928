// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package convert

import (
	"fmt"
	"testing"

	"github.com/emer/emergent/v2/params"
	"github.com/emer/etable/v2/etensor"
	"github.com/emer/spikeconv/ann"
	"github.com/emer/spikeconv/sim"
	"github.com/emer/spikeconv/snn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oneHot returns n samples of nu units, sample i with unit i%nu on, and the labels
func oneHot(n, nu int) ([]*etensor.Float32, []*etensor.Int) {
	data := etensor.NewFloat32([]int{n, nu}, nil, nil)
	lbls := etensor.NewInt([]int{n}, nil, nil)
	for si := 0; si < n; si++ {
		data.Values[si*nu+si%nu] = 1
		lbls.Values[si] = si % nu
	}
	return []*etensor.Float32{data}, []*etensor.Int{lbls}
}

// chainModel is Input -> Hid -> Out with identity weights, each of nu units
func chainModel(t *testing.T, nu int) *ann.Model {
	m := ann.NewModel("Chain")
	in := m.AddInput("Input", nu)
	hid := m.AddDense("Hid", nu, ann.ReLU, in)
	out := m.AddDense("Out", nu, ann.Linear, hid)
	require.NoError(t, m.Build())
	require.NoError(t, hid.SetWts(identity(nu)))
	require.NoError(t, out.SetWts(identity(nu)))
	return m
}

func TestEvaluateConverted(t *testing.T) {
	for _, conn := range []snn.ConnTypes{snn.Procedural, snn.Sparse} {
		for _, batch := range []int{1, 2, 4} {
			t.Run(fmt.Sprintf("%vBatch%d", conn, batch), func(t *testing.T) {
				m := ann.NewModel("OneHot")
				in := m.AddInput("Input", 4)
				out := m.AddDense("Out", 4, ann.Linear, in)
				require.NoError(t, m.Build())
				require.NoError(t, out.SetWts(identity(4)))

				cv := NewConverter(nil)
				cv.Config.InputType = InputSpike
				cv.Config.ConnType = conn
				cv.Config.BatchSize = batch
				nt, err := cv.Convert(m, sim.NewEngine(1))
				require.NoError(t, err)

				data, lbls := oneHot(6, 4)
				res, err := nt.Evaluate(data, lbls, 5, []int{0, 5})
				require.NoError(t, err)
				assert.Equal(t, 6, res.NSamples)
				assert.Equal(t, []int{6}, res.NCorrect)
				assert.Equal(t, []float64{100}, res.Accuracy)
				assert.Equal(t, float64(100), res.MeanAccuracy)

				// input spikes on every step, the output from the second on
				require.Len(t, res.Spikes, 2)
				trs := res.Spikes[5]
				require.Len(t, trs, 2)
				assert.Equal(t, []int32{1, 1, 1, 1, 1}, trs[0].Idx)
				assert.Equal(t, []float32{0, 1, 2, 3, 4}, trs[0].Times)
				assert.Equal(t, []int32{1, 1, 1, 1}, trs[1].Idx)
				assert.Equal(t, []float32{1, 2, 3, 4}, trs[1].Times)

				preds, err := nt.Predict(data, 5)
				require.NoError(t, err)
				assert.Equal(t, [][]int{lbls[0].Values}, preds)
			})
		}
	}
}

// the accuracy of the converted model is that of the ann on the same data
func TestEvaluateMatchesModel(t *testing.T) {
	m := chainModel(t, 3)
	data, lbls := oneHot(9, 3)
	// the ann scores sample i as i%3, so flip the labels of the last three
	for si := 6; si < 9; si++ {
		lbls[0].Values[si] = (si + 1) % 3
	}
	cv := NewConverter(NewDataNorm(data...))
	cv.Config.InputType = InputSpike
	cv.Config.BatchSize = 2
	nt, err := cv.Convert(m, sim.NewEngine(2))
	require.NoError(t, err)
	res, err := nt.Evaluate(data, lbls, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{6}, res.NCorrect)
	assert.InDelta(t, 100*6.0/9.0, res.Accuracy[0], 1e-9)
}

var pipeParams = &params.Sheet{
	{Sel: "#Hid", Desc: "pipelined hidden layer",
		Params: params.Params{
			"Layer.Neurons.Pipelined": "true",
		}},
}

// a Pipelined hidden layer delays the output by one batch, which Evaluate
// takes into account, on the engine as on the network
func TestEvaluatePipelinedEngine(t *testing.T) {
	for _, batch := range []int{1, 3} {
		t.Run(fmt.Sprintf("Batch%d", batch), func(t *testing.T) {
			cv := NewConverter(nil)
			cv.Config.InputType = InputSpike
			cv.Config.BatchSize = batch
			nt, err := cv.Convert(chainModel(t, 2), sim.NewEngine(1))
			require.NoError(t, err)
			d, err := nt.PipelineDepth()
			require.NoError(t, err)
			assert.Equal(t, 0, d)

			app, err := nt.ApplyParams(pipeParams, false)
			require.NoError(t, err)
			require.True(t, app)
			require.True(t, nt.IsCompiled())
			assert.True(t, nt.LayerByName("Hid").Neurons.Pipelined)
			d, err = nt.PipelineDepth()
			require.NoError(t, err)
			assert.Equal(t, 1, d)
			eng := nt.Eng.(*sim.Engine)
			assert.True(t, eng.PopMap["Hid"].Params.Pipelined)

			data, lbls := oneHot(8, 2)
			res, err := nt.Evaluate(data, lbls, 5, nil)
			require.NoError(t, err)
			assert.Equal(t, []int{8}, res.NCorrect)
			assert.Equal(t, []float64{100}, res.Accuracy)

			preds, err := nt.Predict(data, 5)
			require.NoError(t, err)
			assert.Equal(t, [][]int{lbls[0].Values}, preds)
		})
	}
}

// with the latch on the engine only, the network sees no lag, and the
// predictions are those of the previous sample
func TestPipelinedLag(t *testing.T) {
	cv := NewConverter(nil)
	cv.Config.InputType = InputSpike
	nt, err := cv.Convert(chainModel(t, 2), sim.NewEngine(1))
	require.NoError(t, err)
	hid := nt.LayerByName("Hid")
	hid.Neurons.Pipelined = true
	desc, err := nt.Desc()
	require.NoError(t, err)
	hid.Neurons.Pipelined = false
	require.NoError(t, nt.Eng.Build(desc))
	d, err := nt.PipelineDepth()
	require.NoError(t, err)
	assert.Equal(t, 0, d)

	data, _ := oneHot(8, 2)
	preds, err := nt.Predict(data, 5)
	require.NoError(t, err)
	// the first sample sees no spikes and predicts the first unit
	assert.Equal(t, [][]int{{0, 0, 1, 0, 1, 0, 1, 0}}, preds)
}
