// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snn

import (
	"fmt"
	"testing"

	"github.com/emer/etable/v2/etensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// delayEngine is an Engine whose output population reports one spike count
// for the neuron given by the first input value presented Depth batches ago.
type delayEngine struct {
	Depth  int
	NOut   int
	DTime  float32
	Batch  int
	Step   int
	Resets int
	Thrs   map[string]float32
	staged map[int][]float32
	line   []map[int][]float32
}

func (de *delayEngine) Build(desc *NetDesc) error {
	de.DTime = desc.DT
	de.Batch = desc.BatchSize
	de.Thrs = make(map[string]float32)
	for _, pd := range desc.Pops {
		de.Thrs[pd.Name] = pd.Params.Thr
	}
	de.NOut = desc.Pops[len(desc.Pops)-1].N
	de.staged = make(map[int][]float32)
	return nil
}

func (de *delayEngine) StepTime() error {
	de.Step++
	return nil
}

func (de *delayEngine) ResetTime() {
	de.Step = 0
	de.Resets++
	de.line = append(de.line, de.staged)
	de.staged = make(map[int][]float32)
}

func (de *delayEngine) Time() float32                   { return float32(de.Step) * de.DTime }
func (de *delayEngine) Timestep() int                   { return de.Step }
func (de *delayEngine) DT() float32                     { return de.DTime }
func (de *delayEngine) BatchSize() int                  { return de.Batch }
func (de *delayEngine) KernelTimes() map[string]float64 { return map[string]float64{"neuronUpdate": 0} }

func (de *delayEngine) SetInput(pop string, batch int, vals []float32) error {
	de.staged[batch] = append([]float32(nil), vals...)
	return nil
}

func (de *delayEngine) SetThreshold(pop string, thr float32) error {
	if _, has := de.Thrs[pop]; !has {
		return fmt.Errorf("no population %s", pop)
	}
	de.Thrs[pop] = thr
	return nil
}

func (de *delayEngine) State(pop, varNm string, batch int) ([]float32, error) {
	st := make([]float32, de.NOut)
	li := len(de.line) - 1 - de.Depth
	if li < 0 {
		return st, nil
	}
	if vals, has := de.line[li][batch]; has {
		st[int(vals[0])] = float32(de.Step)
	}
	return st, nil
}

func (de *delayEngine) Spikes(pop string, batch int) ([]int32, error) {
	return []int32{int32(batch)}, nil
}

// labelData returns n samples whose single input value is their label
func labelData(n, ncat int) ([]*etensor.Float32, []*etensor.Int) {
	data := etensor.NewFloat32([]int{n, 1}, nil, nil)
	lbls := etensor.NewInt([]int{n}, nil, nil)
	for si := 0; si < n; si++ {
		data.Values[si] = float32(si % ncat)
		lbls.Values[si] = si % ncat
	}
	return []*etensor.Float32{data}, []*etensor.Int{lbls}
}

func TestEvaluatePipelined(t *testing.T) {
	for _, depth := range []int{0, 1, 2} {
		for _, batch := range []int{1, 3, 4} {
			t.Run(fmt.Sprintf("Depth%dBatch%d", depth, batch), func(t *testing.T) {
				nt := chainNet(t, depth, true)
				nt.BatchSize = batch
				de := &delayEngine{Depth: depth}
				require.NoError(t, nt.Compile(de))
				data, lbls := labelData(10, 4)
				res, err := nt.Evaluate(data, lbls, 5, nil)
				require.NoError(t, err)
				assert.Equal(t, []float64{100}, res.Accuracy)
				assert.Equal(t, float64(100), res.MeanAccuracy)
				assert.Equal(t, []int{10}, res.NCorrect)
				assert.Equal(t, 10, res.NSamples)
				nbatch := (10 + batch - 1) / batch
				assert.Equal(t, nbatch+depth, de.Resets)
			})
		}
	}
}

// with the lag ignored, the predictions are those of earlier samples,
// and only the first sample, with an empty output, is scored correct
func TestEvaluateLagMismatch(t *testing.T) {
	nt := chainNet(t, 1, false)
	de := &delayEngine{Depth: 1}
	require.NoError(t, nt.Compile(de))
	data, lbls := labelData(8, 4)
	res, err := nt.Evaluate(data, lbls, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{12.5}, res.Accuracy)
}

func TestEvaluateSpikes(t *testing.T) {
	nt := chainNet(t, 1, false)
	nt.BatchSize = 3
	require.NoError(t, nt.Compile(&delayEngine{}))
	data, lbls := labelData(7, 2)
	res, err := nt.Evaluate(data, lbls, 3, []int{4, 1, 4})
	require.NoError(t, err)
	assert.Equal(t, 2, len(res.Spikes))
	for _, si := range []int{1, 4} {
		trs, has := res.Spikes[si]
		require.True(t, has)
		require.Equal(t, len(nt.Order), len(trs))
		for _, tr := range trs {
			assert.Equal(t, []int32{1, 1, 1}, tr.Idx)
			assert.Equal(t, []float32{0, 1, 2}, tr.Times)
		}
	}
}

func TestPredict(t *testing.T) {
	nt := chainNet(t, 2, true)
	nt.BatchSize = 2
	require.NoError(t, nt.Compile(&delayEngine{Depth: 2}))
	data, _ := labelData(5, 3)
	preds, err := nt.Predict(data, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1, 2, 0, 1}}, preds)
}

func TestEvaluateErrors(t *testing.T) {
	nt := chainNet(t, 1, false)
	data, lbls := labelData(6, 2)
	_, err := nt.Evaluate(data, lbls, 5, nil)
	assert.ErrorIs(t, err, ErrNotCompiled)
	_, err = nt.Predict(data, 5)
	assert.ErrorIs(t, err, ErrNotCompiled)

	de := &delayEngine{}
	require.NoError(t, nt.Compile(de))
	_, err = nt.Evaluate(append(data, data[0]), lbls, 5, nil)
	assert.ErrorIs(t, err, ErrInputCardinality)
	_, err = nt.Evaluate(data, nil, 5, nil)
	assert.ErrorIs(t, err, ErrInputCardinality)
	_, err = nt.Evaluate([]*etensor.Float32{etensor.NewFloat32([]int{6, 2}, nil, nil)}, lbls, 5, nil)
	assert.ErrorIs(t, err, ErrInputCardinality)
	_, short := labelData(5, 2)
	_, err = nt.Evaluate(data, short, 5, nil)
	assert.ErrorIs(t, err, ErrInputCardinality)
	_, err = nt.Evaluate(data, lbls, 5, []int{2, 6})
	assert.ErrorIs(t, err, ErrInvalidSampleSelection)
	_, err = nt.Evaluate(data, lbls, 5, []int{-1})
	assert.ErrorIs(t, err, ErrInvalidSampleSelection)
	assert.Equal(t, 0, de.Resets)
}

func TestSetThrCompiled(t *testing.T) {
	nt := chainNet(t, 1, false)
	de := &delayEngine{}
	require.NoError(t, nt.Compile(de))
	hid := nt.LayerByName("Hid1")
	require.NoError(t, nt.SetThr(hid, 3))
	assert.Equal(t, float32(3), hid.Neurons.Thr)
	assert.Equal(t, float32(3), de.Thrs["Hid1"])
	_, err := nt.ApplyParams(TestParams, false)
	assert.NoError(t, err)
	assert.Equal(t, float32(2), de.Thrs["Out"])
	kt, err := nt.KernelTimes()
	assert.NoError(t, err)
	assert.Contains(t, kt, "neuronUpdate")
}
