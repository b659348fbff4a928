// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snn

import (
	"fmt"

	"github.com/emer/emergent/v2/prjn"
	"github.com/emer/etable/v2/etensor"
	"gonum.org/v1/gonum/mat"
)

//////////////////////////////////////////////////////////////////////////////////////
//  Sparse weights

// SparseConns are the materialized connections of a projection, in order of
// sending neuron and then receiving neuron.
type SparseConns struct {
	Pre  []int32   `desc:"index of the sending neuron of each connection"`
	Post []int32   `desc:"index of the receiving neuron of each connection"`
	G    []float32 `desc:"weight of each connection"`
}

// Len returns the number of connections
func (sc *SparseConns) Len() int { return len(sc.Pre) }

// Weight returns the weight of the connection from si to ri, 0 if there is none
func (sc *SparseConns) Weight(si, ri int) float32 {
	for i, p := range sc.Pre {
		if int(p) == si && int(sc.Post[i]) == ri {
			return sc.G[i]
		}
	}
	return 0
}

func (sc *SparseConns) add(si, ri int, g float32) {
	sc.Pre = append(sc.Pre, int32(si))
	sc.Post = append(sc.Post, int32(ri))
	sc.G = append(sc.G, g)
}

// SparseWeights computes the connections of the projection as explicit
// index and weight lists.  For the pooling projections, the pooling and the
// transform are built as separate matrices and combined per input channel.
func (pj *Prjn) SparseWeights() (*SparseConns, error) {
	if err := pj.Validate(); err != nil {
		return nil, err
	}
	switch pj.Typ {
	case Dense:
		return pj.denseSparse(), nil
	case Conv2D:
		tm, tmsk := pj.transformMatrix()
		return extractConns(tm, tmsk), nil
	case PoolDense, PoolConv2D:
		return pj.poolSparse(), nil
	}
	return nil, fmt.Errorf("Prjn SparseWeights: %s: unknown projection type %v", pj.Nm, pj.Typ)
}

// denseSparse uses the full connectivity pattern between the layers
func (pj *Prjn) denseSparse() *SparseConns {
	ssh := etensor.NewShape([]int{pj.NSend()}, nil, nil)
	rsh := etensor.NewShape(pj.RecvShp, nil, nil)
	_, recvn, cons := prjn.NewFull().Connect(ssh, rsh, false)
	nsyn := 0
	for _, rn := range recvn.Values {
		nsyn += int(rn)
	}
	sc := &SparseConns{}
	sc.Pre = make([]int32, 0, nsyn)
	sc.Post = make([]int32, 0, nsyn)
	sc.G = make([]float32, 0, nsyn)
	slen := ssh.Len()
	rlen := rsh.Len()
	for si := 0; si < slen; si++ {
		for ri := 0; ri < rlen; ri++ {
			if !cons.Values.Index(ri*slen + si) {
				continue
			}
			sc.add(si, ri, pj.Wts.Values[si*pj.Units+ri])
		}
	}
	return sc
}

// transformMatrix returns the matrix of the dense or convolution transform,
// from the transform input (PoolShp) to the receiving layer, together with
// its connectivity mask.  For Conv2D the kernel is scattered onto every
// receiving position, cropped at the edges of the input.
func (pj *Prjn) transformMatrix() (tm, tmsk *mat.Dense) {
	nin := shapeLen(pj.PoolShp)
	nout := pj.NRecv()
	tm = mat.NewDense(nin, nout, nil)
	tmsk = mat.NewDense(nin, nout, nil)
	if !pj.Typ.IsConv() {
		for i := 0; i < nin; i++ {
			for u := 0; u < nout; u++ {
				tm.Set(i, u, float64(pj.Wts.Values[i*pj.Units+u]))
				tmsk.Set(i, u, 1)
			}
		}
		return
	}
	cg := &pj.Conv
	irows, icols, ic := pj.PoolShp[0], pj.PoolShp[1], pj.PoolShp[2]
	orows, ocols, oc := pj.RecvShp[0], pj.RecvShp[1], pj.RecvShp[2]
	kh, kw := cg.Kernel[0], cg.Kernel[1]
	padr, padc := cg.Pad.Offset(kh), cg.Pad.Offset(kw)
	for orow := 0; orow < orows; orow++ {
		rst := orow*cg.Stride[0] - padr
		for ocol := 0; ocol < ocols; ocol++ {
			cst := ocol*cg.Stride[1] - padc
			for kr := 0; kr < kh; kr++ {
				row := rst + kr
				if row < 0 || row >= irows {
					continue
				}
				for kc := 0; kc < kw; kc++ {
					col := cst + kc
					if col < 0 || col >= icols {
						continue
					}
					for ich := 0; ich < ic; ich++ {
						ii := (row*icols+col)*ic + ich
						wi := ((kr*kw+kc)*ic + ich) * oc
						for och := 0; och < oc; och++ {
							oi := (orow*ocols+ocol)*oc + och
							tm.Set(ii, oi, float64(pj.Wts.Values[wi+och]))
							tmsk.Set(ii, oi, 1)
						}
					}
				}
			}
		}
	}
	return
}

// poolMatrix returns the pooling matrix for one channel, from the input
// pixels to the pooled pixels, with 1 / area of the cropped window over the
// pixels of each window, and its connectivity mask.
func (pj *Prjn) poolMatrix() (pm, pmsk *mat.Dense) {
	icols := pj.SendShp[1]
	prows, pcols := pj.PoolShp[0], pj.PoolShp[1]
	pm = mat.NewDense(pj.SendShp[0]*icols, prows*pcols, nil)
	pmsk = mat.NewDense(pj.SendShp[0]*icols, prows*pcols, nil)
	for prow := 0; prow < prows; prow++ {
		for pcol := 0; pcol < pcols; pcol++ {
			rst, red, cst, ced := pj.poolWindow(prow, pcol)
			area := float64((red - rst) * (ced - cst))
			pi := prow*pcols + pcol
			for r := rst; r < red; r++ {
				for c := cst; c < ced; c++ {
					pm.Set(r*icols+c, pi, 1/area)
					pmsk.Set(r*icols+c, pi, 1)
				}
			}
		}
	}
	return
}

// poolSparse combines the pooling and transform matrices channel by channel:
// the pooling matrix is block diagonal over channels, so each sending channel
// only reaches the transform rows of the same channel.
func (pj *Prjn) poolSparse() *SparseConns {
	pm, pmsk := pj.poolMatrix()
	tm, tmsk := pj.transformMatrix()
	ic := pj.SendShp[2]
	npool := pj.PoolShp[0] * pj.PoolShp[1]
	nout := pj.NRecv()
	cw := make([]*mat.Dense, ic)
	cmsk := make([]*mat.Dense, ic)
	for ch := 0; ch < ic; ch++ {
		tch := mat.NewDense(npool, nout, nil)
		tchm := mat.NewDense(npool, nout, nil)
		for pi := 0; pi < npool; pi++ {
			tch.SetRow(pi, tm.RawRowView(pi*ic+ch))
			tchm.SetRow(pi, tmsk.RawRowView(pi*ic+ch))
		}
		cw[ch] = &mat.Dense{}
		cw[ch].Mul(pm, tch)
		cmsk[ch] = &mat.Dense{}
		cmsk[ch].Mul(pmsk, tchm)
	}
	sc := &SparseConns{}
	nsend := pj.NSend()
	for si := 0; si < nsend; si++ {
		pix, ch := si/ic, si%ic
		for ri := 0; ri < nout; ri++ {
			if cmsk[ch].At(pix, ri) > 0 {
				sc.add(si, ri, float32(cw[ch].At(pix, ri)))
			}
		}
	}
	return sc
}

// extractConns returns the connections where the mask is nonzero
func extractConns(wm, msk *mat.Dense) *SparseConns {
	sc := &SparseConns{}
	nr, nc := msk.Dims()
	for si := 0; si < nr; si++ {
		for ri := 0; ri < nc; ri++ {
			if msk.At(si, ri) > 0 {
				sc.add(si, ri, float32(wm.At(si, ri)))
			}
		}
	}
	return sc
}
