// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"github.com/emer/etable/v2/minmax"
	"github.com/emer/spikeconv/snn"
)

// SynPop is a population of synapses from a sending to a receiving Pop.
// Sparse connections are stored in compressed rows by sending neuron.
type SynPop struct {
	Nm      string                   `desc:"name of the synapse population"`
	Pre     *Pop                     `desc:"sending population"`
	Post    *Pop                     `desc:"receiving population"`
	Conn    snn.ConnTypes            `desc:"procedural or sparse connectivity"`
	WtFun   func(si, ri int) float32 `view:"-" desc:"weight function, for Procedural"`
	RowSt   []int32                  `desc:"start of the connections of each sending neuron in Post and G, for Sparse"`
	RowN    []int32                  `desc:"number of connections of each sending neuron, for Sparse"`
	PostIdx []int32                  `desc:"receiving neuron of each connection, for Sparse"`
	G       []float32                `desc:"weight of each connection, for Sparse"`
	FanOut  minmax.AvgMax32          `inactive:"+" view:"inline" desc:"average and max number of connections per sending neuron, for Sparse"`
}

// SetSparse builds the compressed rows from the connection lists
func (sy *SynPop) SetSparse(sc *snn.SparseConns) {
	npre := sy.Pre.N
	sy.RowN = make([]int32, npre)
	sy.RowSt = make([]int32, npre)
	for _, p := range sc.Pre {
		sy.RowN[p]++
	}
	st := int32(0)
	sy.FanOut.Init()
	for si := 0; si < npre; si++ {
		sy.RowSt[si] = st
		st += sy.RowN[si]
		sy.FanOut.UpdateVal(float32(sy.RowN[si]), int32(si))
	}
	sy.FanOut.CalcAvg()
	sy.PostIdx = make([]int32, st)
	sy.G = make([]float32, st)
	fill := make([]int32, npre)
	for i, p := range sc.Pre {
		ci := sy.RowSt[p] + fill[p]
		fill[p]++
		sy.PostIdx[ci] = sc.Post[i]
		sy.G[ci] = sc.G[i]
	}
}

// NSyns returns the number of materialized synapses, 0 for Procedural
func (sy *SynPop) NSyns() int { return len(sy.G) }

// Deliver adds the weights of the spikes sent by Pre on given step, with their
// sign, to Isyn of Post
func (sy *SynPop) Deliver(step int) {
	pre, post := sy.Pre, sy.Post
	for b := 0; b < pre.nbatch; b++ {
		isyn := post.Isyn[b*post.N : (b+1)*post.N]
		spk, sgn := pre.SendSpikes(b, step)
		for k, si := range spk {
			s := float32(sgn[k])
			if sy.Conn == snn.Sparse {
				st := sy.RowSt[si]
				ed := st + sy.RowN[si]
				for ci := st; ci < ed; ci++ {
					isyn[sy.PostIdx[ci]] += s * sy.G[ci]
				}
				continue
			}
			for ri := range isyn {
				if w := sy.WtFun(int(si), ri); w != 0 {
					isyn[ri] += s * w
				}
			}
		}
	}
}
