// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package spikeconv is the overall repository for converting trained, rate-coded
feed-forward networks (dense, convolutional and average-pooling layers) into
equivalent spiking networks built from integrate-and-fire neurons, and for
evaluating the converted networks on batches of samples.

This top-level of the repository has no functional code -- everything is organized
into the following sub-packages:

* ann: the source network: layers, the nodes that connect them within a model,
weights, and a reference forward pass that provides the activations used for
normalization and for checking the conversion.

* snn: the converted spiking network: Layers, Prjns (projections) and the
connectivity synthesis for Dense, Conv2D and the fused average-pooling
projections, in procedural and sparse form, plus the Engine interface for the
simulation substrate and the pipelined batch evaluator.

* convert: the Converter that walks an ann.Model and builds an snn.Network,
with the DataNorm and SpikeNorm threshold normalization strategies.

* sim: a reference CPU simulation engine implementing snn.Engine.

* examples: these compile into runnable programs -- examples/bench converts
and evaluates a synthetic convolutional network of a given size.
*/
package spikeconv
