// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package ann provides the source (rate-coded, non-spiking) network that is
converted into a spiking network: a graph of typed Layers connected through
Nodes within a Model, with weights stored as etensor.Float32 and a reference
forward pass.

Layers are laid out in row-major (rows, cols, channels) order, and weights use
the [in, units] layout for Dense and [kh, kw, in-chans, out-chans] for Conv2D.
A Layer can be called within more than one Model (each call creates a Node),
and each Model only sees the Nodes that it created.
*/
package ann

import (
	"github.com/goki/ki/kit"
)

// LayerKinds are the kinds of layers in a source network
type LayerKinds int32

//go:generate stringer -type=LayerKinds

var KiT_LayerKinds = kit.Enums.AddEnum(LayerKindsN, false, nil)

func (ev LayerKinds) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *LayerKinds) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

const (
	// Input is an input layer that receives external data
	Input LayerKinds = iota

	// Dense is a fully-connected layer with weights [in, units]
	Dense

	// Conv2D is a 2D convolution with kernel [kh, kw, in-chans, filters]
	Conv2D

	// AvePool2D is a 2D average-pooling layer, which averages only over the
	// part of each window that lies within the input
	AvePool2D

	// GlobalAvePool2D averages each channel over the whole input, producing a flat layer
	GlobalAvePool2D

	// Add sums its inputs elementwise
	Add

	// Flatten reshapes its input into a flat layer
	Flatten

	// Dropout is an identity at inference time
	Dropout

	// MaxPool2D is a 2D max-pooling layer (not convertible)
	MaxPool2D

	// BatchNorm is a batch normalization layer (not convertible)
	BatchNorm

	LayerKindsN
)

// IsWeighted returns true for the kinds that carry a weight tensor
func (lk LayerKinds) IsWeighted() bool {
	return lk == Dense || lk == Conv2D
}

// IsPool returns true for the average-pooling kinds
func (lk LayerKinds) IsPool() bool {
	return lk == AvePool2D || lk == GlobalAvePool2D
}

// IsPassThrough returns true for kinds that only route or merge their
// inputs without any weights (Add, Flatten, Dropout)
func (lk LayerKinds) IsPassThrough() bool {
	return lk == Add || lk == Flatten || lk == Dropout
}

// Activations are the output activation functions of weighted layers
type Activations int32

//go:generate stringer -type=Activations

var KiT_Activations = kit.Enums.AddEnum(ActivationsN, false, nil)

func (ev Activations) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *Activations) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

const (
	// Linear is the identity
	Linear Activations = iota

	// ReLU is the rectified linear function max(0, x)
	ReLU

	// Sigmoid is the logistic function
	Sigmoid

	// Softmax normalizes the exponentiated outputs to sum to 1
	Softmax

	ActivationsN
)

// PadModes are the padding modes for convolution and pooling windows
type PadModes int32

//go:generate stringer -type=PadModes

var KiT_PadModes = kit.Enums.AddEnum(PadModesN, false, nil)

func (ev PadModes) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *PadModes) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

const (
	// Valid only places windows entirely within the input
	Valid PadModes = iota

	// Same pads the input so that the output has ceil(in / stride) positions
	Same

	PadModesN
)

// OutSize returns the number of window positions along one axis of
// given input size, for window size k and stride s.
func (pm PadModes) OutSize(in, k, s int) int {
	if pm == Same {
		return (in + s - 1) / s
	}
	return (in - k + s) / s
}

// PadBefore returns the number of padding positions before the first input
// element along one axis, as padding is applied by the training framework:
// half of the total padding needed, rounded down.
func (pm PadModes) PadBefore(in, k, s int) int {
	if pm != Same {
		return 0
	}
	out := pm.OutSize(in, k, s)
	tot := (out-1)*s + k - in
	if tot < 0 {
		return 0
	}
	return tot / 2
}
