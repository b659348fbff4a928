// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snn

import (
	"fmt"
	"sort"

	"github.com/emer/etable/v2/etensor"
)

// SpikeTrace holds the spikes of one layer for one sample: the index of the
// neuron and the time of each spike
type SpikeTrace struct {
	Idx   []int32
	Times []float32
}

// EvalResult is the result of Evaluate
type EvalResult struct {

	// percent correct for each output layer
	Accuracy []float64

	// mean of Accuracy over the output layers
	MeanAccuracy float64

	// number of correct predictions for each output layer
	NCorrect []int

	// number of samples evaluated
	NSamples int

	// spikes of each layer, in Order, for each sample that was selected for recording
	Spikes map[int][]SpikeTrace
}

// PipelineState holds the counters of one Evaluate or Predict run
type PipelineState struct {

	// number of batches of latency through the network
	Depth int

	// number of real samples
	NSamples int

	// number of samples including the padding needed to drain the pipeline
	NPadded int

	// batch size of the engine
	Batch int

	// running number of correct predictions per output
	NCorrect []int

	// number of samples scored so far
	NScored int

	// samples to record spikes for, sorted and without duplicates
	Save []int

	// recorded spikes
	Spikes map[int][]SpikeTrace
}

// NewPipelineState returns the state for a run over n samples
func NewPipelineState(depth, n, batch, nout int, save []int) *PipelineState {
	ps := &PipelineState{Depth: depth, NSamples: n, Batch: batch}
	ps.NPadded = n + depth*batch
	ps.NCorrect = make([]int, nout)
	ps.Save = save
	ps.Spikes = make(map[int][]SpikeTrace, len(save))
	return ps
}

// ScoreStart returns the start of the batch of real samples whose output is
// available after presenting the batch at start, and whether there is one
func (ps *PipelineState) ScoreStart(start int) (int, bool) {
	lag := ps.Depth * ps.Batch
	if start < lag {
		return 0, false
	}
	return start - lag, start-lag < ps.NSamples
}

// Accuracy returns percent correct per output for the samples scored so far
func (ps *PipelineState) Accuracy() []float64 {
	acc := make([]float64, len(ps.NCorrect))
	if ps.NScored == 0 {
		return acc
	}
	for i, nc := range ps.NCorrect {
		acc[i] = 100 * float64(nc) / float64(ps.NScored)
	}
	return acc
}

// CheckData validates the data tensors against the input layers, one
// per input layer with the sample as the outer dimension, and returns the
// number of samples
func (nt *Network) CheckData(data []*etensor.Float32) (int, error) {
	if len(data) != len(nt.Inputs) {
		return 0, fmt.Errorf("network %s has %d input layers, got %d data tensors: %w", nt.Nm, len(nt.Inputs), len(data), ErrInputCardinality)
	}
	n := -1
	for i, d := range data {
		if d == nil || d.NumDims() == 0 {
			return 0, fmt.Errorf("data tensor %d is empty: %w", i, ErrInputCardinality)
		}
		ly := nt.Layers[nt.Inputs[i]]
		dn := d.Dim(0)
		if dn > 0 && d.Len()/dn != ly.NNeurons() {
			return 0, fmt.Errorf("data tensor %d has %d values per sample, input layer %s has %d neurons: %w", i, d.Len()/dn, ly.Nm, ly.NNeurons(), ErrInputCardinality)
		}
		if n >= 0 && dn != n {
			return 0, fmt.Errorf("data tensors have different numbers of samples: %d vs %d: %w", n, dn, ErrInputCardinality)
		}
		n = dn
	}
	return n, nil
}

// checkSave returns the sorted, deduplicated list of samples to record
func checkSave(save []int, n int) ([]int, error) {
	seen := make(map[int]bool, len(save))
	var res []int
	for _, si := range save {
		if si < 0 || si >= n {
			return nil, fmt.Errorf("sample %d selected for spike recording, there are %d samples: %w", si, n, ErrInvalidSampleSelection)
		}
		if !seen[si] {
			seen[si] = true
			res = append(res, si)
		}
	}
	sort.Ints(res)
	return res, nil
}

// Evaluate presents the samples in data (one tensor per input layer, with the
// sample as the outer dimension) to the network in batches, each for given
// presentation time (msec), and compares the predictions of each output layer
// (the neuron with the most spikes) with the labels (one tensor per output layer).
// Spikes are recorded for the samples in save.
// All arguments are checked before any simulation is run, and no result
// is returned if an error occurs.
func (nt *Network) Evaluate(data []*etensor.Float32, labels []*etensor.Int, time float32, save []int) (*EvalResult, error) {
	if nt.Eng == nil {
		return nil, fmt.Errorf("Network Evaluate: %s: %w", nt.Nm, ErrNotCompiled)
	}
	n, err := nt.CheckData(data)
	if err != nil {
		return nil, err
	}
	if len(labels) != len(nt.Outputs) {
		return nil, fmt.Errorf("network %s has %d output layers, got %d label tensors: %w", nt.Nm, len(nt.Outputs), len(labels), ErrInputCardinality)
	}
	for i, lb := range labels {
		if lb == nil || lb.Len() != n {
			return nil, fmt.Errorf("label tensor %d does not have %d samples: %w", i, n, ErrInputCardinality)
		}
	}
	sv, err := checkSave(save, n)
	if err != nil {
		return nil, err
	}
	depth, err := nt.PipelineDepth()
	if err != nil {
		return nil, err
	}
	ps := NewPipelineState(depth, n, nt.Eng.BatchSize(), len(nt.Outputs), sv)
	err = nt.runPipeline(ps, data, time, func(start, end int) error {
		for oi, li := range nt.Outputs {
			for si := start; si < end; si++ {
				pred, err := nt.Prediction(nt.Layers[li], si-start)
				if err != nil {
					return err
				}
				if pred == labels[oi].Values[si] {
					ps.NCorrect[oi]++
				}
			}
		}
		ps.NScored = end
		return nil
	})
	if err != nil {
		return nil, err
	}
	res := &EvalResult{NSamples: n, NCorrect: ps.NCorrect, Spikes: ps.Spikes}
	res.Accuracy = ps.Accuracy()
	for _, a := range res.Accuracy {
		res.MeanAccuracy += a
	}
	if len(res.Accuracy) > 0 {
		res.MeanAccuracy /= float64(len(res.Accuracy))
	}
	return res, nil
}

// Predict presents the samples in data to the network as in Evaluate, and returns
// the prediction of each output layer for each sample: [output][sample]
func (nt *Network) Predict(data []*etensor.Float32, time float32) ([][]int, error) {
	if nt.Eng == nil {
		return nil, fmt.Errorf("Network Predict: %s: %w", nt.Nm, ErrNotCompiled)
	}
	n, err := nt.CheckData(data)
	if err != nil {
		return nil, err
	}
	depth, err := nt.PipelineDepth()
	if err != nil {
		return nil, err
	}
	preds := make([][]int, len(nt.Outputs))
	for i := range preds {
		preds[i] = make([]int, n)
	}
	ps := NewPipelineState(depth, n, nt.Eng.BatchSize(), len(nt.Outputs), nil)
	err = nt.runPipeline(ps, data, time, func(start, end int) error {
		for oi, li := range nt.Outputs {
			for si := start; si < end; si++ {
				pred, err := nt.Prediction(nt.Layers[li], si-start)
				if err != nil {
					return err
				}
				preds[oi][si] = pred
			}
		}
		ps.NScored = end
		return nil
	})
	if err != nil {
		return nil, err
	}
	return preds, nil
}

// runPipeline runs all padded batches, calling score with the range of real
// samples whose output is available at the end of each batch.
func (nt *Network) runPipeline(ps *PipelineState, data []*etensor.Float32, time float32, score func(start, end int) error) error {
	eng := nt.Eng
	for start := 0; start < ps.NPadded; start += ps.Batch {
		end := start + ps.Batch
		if end > ps.NSamples {
			end = ps.NSamples
		}
		if start < ps.NSamples {
			if err := nt.ApplyInputs(data, start, end); err != nil {
				return err
			}
		}
		eng.ResetTime()
		for eng.Time() < time {
			if err := eng.StepTime(); err != nil {
				return err
			}
			if err := nt.recordSpikes(ps, start, end); err != nil {
				return err
			}
		}
		sst, ok := ps.ScoreStart(start)
		if !ok {
			continue
		}
		send := sst + ps.Batch
		if send > ps.NSamples {
			send = ps.NSamples
		}
		if err := score(sst, send); err != nil {
			return err
		}
	}
	return nil
}

// ApplyInputs sets the inputs of the engine batch to samples start..end of
// the data, which must have been checked with CheckData
func (nt *Network) ApplyInputs(data []*etensor.Float32, start, end int) error {
	for ii, li := range nt.Inputs {
		ly := nt.Layers[li]
		nn := ly.NNeurons()
		for si := start; si < end; si++ {
			if err := nt.Eng.SetInput(ly.Nm, si-start, data[ii].Values[si*nn:(si+1)*nn]); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordSpikes appends the spikes of the last step for the samples to record
// that are in the current batch.  The time of a spike is the start of the step.
func (nt *Network) recordSpikes(ps *PipelineState, start, end int) error {
	if len(ps.Save) == 0 || start >= ps.NSamples {
		return nil
	}
	eng := nt.Eng
	st := float32(eng.Timestep()-1) * eng.DT()
	for _, si := range ps.Save {
		if si < start || si >= end {
			continue
		}
		trs, ok := ps.Spikes[si]
		if !ok {
			trs = make([]SpikeTrace, len(nt.Order))
			ps.Spikes[si] = trs
		}
		for oi, li := range nt.Order {
			spk, err := eng.Spikes(nt.Layers[li].Nm, si-start)
			if err != nil {
				return err
			}
			tr := &trs[oi]
			tr.Idx = append(tr.Idx, spk...)
			for range spk {
				tr.Times = append(tr.Times, st)
			}
		}
	}
	return nil
}

// Prediction returns the index of the neuron of the layer with the most spikes,
// the first one if there are several, for given batch element
func (nt *Network) Prediction(ly *Layer, batch int) (int, error) {
	nspk, err := nt.Eng.State(ly.Nm, "NSpk", batch)
	if err != nil {
		return -1, err
	}
	pred := -1
	mx := float32(0)
	for i, v := range nspk {
		if pred < 0 || v > mx {
			pred = i
			mx = v
		}
	}
	return pred, nil
}
