// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package snn provides the converted spiking network: a Network of Layers of
integrate-and-fire (or input encoder) neurons, connected by Prjns (projections)
whose weights are synthesized from the source network weights.

There are four kinds of Prjn: Dense, Conv2D, and the fused PoolDense and
PoolConv2D, where an average-pooling layer of the source network is folded
into the weights of the following dense or convolutional layer, as average
pooling is itself a fixed linear operator.  Weights are either computed on the
fly from the neuron indexes (Procedural) or materialized as explicit
(pre, post, weight) lists (Sparse), and both give the same values.

A Network is compiled onto an Engine, which runs the time-stepped simulation,
and then evaluated over batches of samples, compensating for any latency that
pipelined layers introduce.
*/
package snn

import (
	"errors"

	"github.com/goki/ki/kit"
)

var (
	// ErrUnsupportedLayer is returned for source layers whose kind, activation
	// or bias cannot be converted
	ErrUnsupportedLayer = errors.New("unsupported layer")

	// ErrShapeMismatch is returned when shapes of layers and weights disagree,
	// or when output layers are not reachable from the input layers
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInputCardinality is returned when the number of data or label tensors,
	// or their number of samples, does not match the network
	ErrInputCardinality = errors.New("input cardinality mismatch")

	// ErrInvalidSampleSelection is returned when a sample selected for spike
	// recording is out of range
	ErrInvalidSampleSelection = errors.New("invalid sample selection")

	// ErrUnsupportedTopology is returned when paths from the inputs to the
	// outputs have different pipeline latencies
	ErrUnsupportedTopology = errors.New("unsupported topology")

	// ErrNotCompiled is returned when a network is used before Compile
	ErrNotCompiled = errors.New("network not compiled")
)

// ConnTypes are the ways the weights of a Prjn are given to the Engine
type ConnTypes int32

//go:generate stringer -type=ConnTypes

var KiT_ConnTypes = kit.Enums.AddEnum(ConnTypesN, false, nil)

func (ev ConnTypes) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *ConnTypes) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

const (
	// Procedural computes each weight from the pre and post neuron indexes when needed
	Procedural ConnTypes = iota

	// Sparse materializes the nonzero connections as explicit index and weight lists
	Sparse

	ConnTypesN
)

// PadModes are the padding modes of convolution and pooling windows
type PadModes int32

//go:generate stringer -type=PadModes

var KiT_PadModes = kit.Enums.AddEnum(PadModesN, false, nil)

func (ev PadModes) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *PadModes) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

const (
	// Valid windows lie entirely within the input
	Valid PadModes = iota

	// Same windows are offset by (size-1)/2, giving ceil(in / stride) positions
	Same

	PadModesN
)

// OutSize returns the number of window positions along an axis of given
// input size, for window size k and stride s
func (pm PadModes) OutSize(in, k, s int) int {
	if pm == Same {
		return (in + s - 1) / s
	}
	return (in - k + s) / s
}

// Offset returns the offset of the first window along an axis for window size k
func (pm PadModes) Offset(k int) int {
	if pm == Same {
		return (k - 1) / 2
	}
	return 0
}
