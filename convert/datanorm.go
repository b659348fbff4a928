// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package convert

import (
	"fmt"
	"log"

	"github.com/emer/etable/v2/etensor"
	"github.com/emer/etable/v2/minmax"
	"github.com/emer/spikeconv/ann"
	"github.com/emer/spikeconv/snn"
	"github.com/goki/mat32"
)

// DataNorm sets thresholds from the activations of the source model on
// normalization data.  The scale of each weighted layer is the larger of its
// maximum activation and its maximum absolute weight, and its threshold is its
// scale relative to the scale of the nearest weighted layer upstream (the
// largest, if there are several).  Layers without a weighted layer upstream
// get their scale as threshold.
type DataNorm struct {

	// normalization data, one tensor per model input with the sample as the outer dimension
	Data []*etensor.Float32
}

// NewDataNorm returns a DataNorm using given data
func NewDataNorm(data ...*etensor.Float32) *DataNorm {
	return &DataNorm{Data: data}
}

// DataNormScales returns the scale of each weighted layer of the model on
// given data: the larger of its maximum activation and maximum absolute weight
func DataNormScales(model *ann.Model, data []*etensor.Float32) (map[*ann.Layer]float32, error) {
	if len(data) != len(model.Inputs) {
		return nil, fmt.Errorf("DataNorm: model %s has %d inputs, got %d data tensors: %w", model.Nm, len(model.Inputs), len(data), snn.ErrInputCardinality)
	}
	n := -1
	for _, d := range data {
		dns := ann.NSamples(d)
		if n >= 0 && dns != n {
			return nil, fmt.Errorf("DataNorm: data tensors have different numbers of samples: %d vs %d: %w", n, dns, snn.ErrInputCardinality)
		}
		n = dns
	}
	if n <= 0 {
		return nil, fmt.Errorf("DataNorm: no normalization data: %w", snn.ErrInputCardinality)
	}
	var wtd []*ann.Layer
	for _, ly := range model.Layers {
		if ly.Kind.IsWeighted() {
			wtd = append(wtd, ly)
		}
	}
	acts := make([]minmax.AvgMax32, len(wtd))
	for i := range acts {
		acts[i].Init()
	}
	for si := 0; si < n; si++ {
		out, err := model.Forward(ann.SampleInputs(data, si))
		if err != nil {
			return nil, fmt.Errorf("DataNorm: %w", err)
		}
		for i, ly := range wtd {
			for ui, a := range out[ly] {
				acts[i].UpdateVal(a, int32(ui))
			}
		}
	}
	scales := make(map[*ann.Layer]float32, len(wtd))
	for i, ly := range wtd {
		acts[i].CalcAvg()
		wmax := float32(0)
		for _, w := range ly.Wts.Values {
			wmax = mat32.Max(wmax, mat32.Abs(w))
		}
		scales[ly] = mat32.Max(acts[i].Max, wmax)
	}
	return scales, nil
}

func (dn *DataNorm) PreCompile(model *ann.Model, cfg *Config) (NormContext, error) {
	scales, err := DataNormScales(model, dn.Data)
	if err != nil {
		return nil, err
	}
	ctx := make(NormContext, len(scales))
	for _, ly := range model.Layers {
		scale, has := scales[ly]
		if !has {
			continue
		}
		prv := float32(0)
		for _, up := range upstreamWeighted(model, ly) {
			prv = mat32.Max(prv, scales[up])
		}
		thr := scale
		if prv > 0 {
			thr = scale / prv
		}
		if thr <= 0 {
			thr = 1
		}
		ctx[ly] = thr
		if cfg != nil && cfg.Verbose {
			log.Printf("layer <%s> threshold: %g\n", ly.Nm, thr)
		}
	}
	return ctx, nil
}

func (dn *DataNorm) CreateNeurons(ly *ann.Layer, ctx NormContext) float32 {
	return ctxThr(ly, ctx)
}

func (dn *DataNorm) PostCompile(nt *snn.Network) error { return nil }
