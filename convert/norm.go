// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package convert

import (
	"github.com/emer/spikeconv/ann"
	"github.com/emer/spikeconv/snn"
)

// NormContext holds whatever a Normalizer computes before the network is
// built: the threshold of each weighted source layer
type NormContext map[*ann.Layer]float32

// Normalizer sets the firing thresholds of the converted layers.  It is
// called at three points of a conversion: before the network is built, for
// each weighted layer as it is converted, and after the network is compiled.
type Normalizer interface {
	// PreCompile computes the context used by CreateNeurons, from the source model
	PreCompile(model *ann.Model, cfg *Config) (NormContext, error)

	// CreateNeurons returns the threshold for the layer converted from ly
	CreateNeurons(ly *ann.Layer, ctx NormContext) float32

	// PostCompile can adjust the thresholds of the compiled network
	PostCompile(nt *snn.Network) error
}

// NoNorm gives every layer a threshold of 1, for models whose weights
// are already scaled
type NoNorm struct{}

func (nn *NoNorm) PreCompile(model *ann.Model, cfg *Config) (NormContext, error) { return nil, nil }
func (nn *NoNorm) CreateNeurons(ly *ann.Layer, ctx NormContext) float32          { return 1 }
func (nn *NoNorm) PostCompile(nt *snn.Network) error                             { return nil }

// ctxThr returns the threshold of the layer in the context, 1 if it has none
func ctxThr(ly *ann.Layer, ctx NormContext) float32 {
	if thr, has := ctx[ly]; has {
		return thr
	}
	return 1
}

// upstreamWeighted returns the nearest weighted layers upstream of ly,
// through pass-through and pool layers, one entry per distinct layer.
func upstreamWeighted(model *ann.Model, ly *ann.Layer) []*ann.Layer {
	var ups []*ann.Layer
	seen := make(map[*ann.Layer]bool)
	var walk func(l *ann.Layer)
	walk = func(l *ann.Layer) {
		for _, il := range model.InLayers(l) {
			if seen[il] {
				continue
			}
			seen[il] = true
			if il.Kind.IsWeighted() {
				ups = append(ups, il)
				continue
			}
			walk(il)
		}
	}
	walk(ly)
	return ups
}
