// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snn

import (
	"github.com/goki/ki/ints"
)

//////////////////////////////////////////////////////////////////////////////////////
//  Procedural weights

// ProcWeight returns the weight of the connection from sending neuron si to
// receiving neuron ri, computed from the neuron indexes and the geometry of
// the projection, without materializing any connectivity.
// Returns 0 for pairs that are not connected.
func (pj *Prjn) ProcWeight(si, ri int) float32 {
	switch pj.Typ {
	case Dense:
		return pj.Wts.Values[si*pj.Units+ri]
	case Conv2D:
		row, col, ch := unravel(si, pj.SendShp)
		return pj.convWeight(row, col, ch, ri)
	case PoolDense:
		wt := float32(0)
		nc := pj.PoolShp[2]
		pcols := pj.PoolShp[1]
		pj.poolWindows(si, func(prow, pcol, ch int, area float32) {
			pi := (prow*pcols+pcol)*nc + ch
			wt += pj.Wts.Values[pi*pj.Units+ri] / area
		})
		return wt
	case PoolConv2D:
		wt := float32(0)
		pj.poolWindows(si, func(prow, pcol, ch int, area float32) {
			wt += pj.convWeight(prow, pcol, ch, ri) / area
		})
		return wt
	}
	return 0
}

// WtFun returns the ProcWeight function of the projection
func (pj *Prjn) WtFun() func(si, ri int) float32 {
	return pj.ProcWeight
}

// convWeight returns the kernel weight connecting the input at (row, col, ch)
// of the transform input (PoolShp) to receiving neuron ri, or 0 if it is
// outside the receptive field.
func (pj *Prjn) convWeight(row, col, ch, ri int) float32 {
	cg := &pj.Conv
	orow, ocol, och := unravel(ri, pj.RecvShp)
	kr := row - (orow*cg.Stride[0] - cg.Pad.Offset(cg.Kernel[0]))
	if kr < 0 || kr >= cg.Kernel[0] {
		return 0
	}
	kc := col - (ocol*cg.Stride[1] - cg.Pad.Offset(cg.Kernel[1]))
	if kc < 0 || kc >= cg.Kernel[1] {
		return 0
	}
	ic := pj.PoolShp[2]
	return pj.Wts.Values[((kr*cg.Kernel[1]+kc)*ic+ch)*cg.Filters+och]
}

// poolWindows calls fun for every pooling window that covers sending neuron si,
// with the pooled row, col and channel and the area of the window cropped
// to the sending layer.  Windows are scanned down from the one aligned with the
// neuron, stopping when they no longer cover it.
func (pj *Prjn) poolWindows(si int, fun func(prow, pcol, ch int, area float32)) {
	pg := &pj.Pool
	row, col, ch := unravel(si, pj.SendShp)
	irows, icols := pj.SendShp[0], pj.SendShp[1]
	padr, padc := pg.Pad.Offset(pg.Size[0]), pg.Pad.Offset(pg.Size[1])
	prow := ints.MinInt((row+padr)/pg.Stride[0], pj.PoolShp[0]-1)
	for ; prow >= 0; prow-- {
		rst := prow*pg.Stride[0] - padr
		if rst+pg.Size[0] <= row {
			break
		}
		khc := ints.MinInt(rst+pg.Size[0], irows) - ints.MaxInt(rst, 0)
		pcol := ints.MinInt((col+padc)/pg.Stride[1], pj.PoolShp[1]-1)
		for ; pcol >= 0; pcol-- {
			cst := pcol*pg.Stride[1] - padc
			if cst+pg.Size[1] <= col {
				break
			}
			kwc := ints.MinInt(cst+pg.Size[1], icols) - ints.MaxInt(cst, 0)
			fun(prow, pcol, ch, float32(khc*kwc))
		}
	}
}

// poolWindow returns the start and end rows and cols of the pooling window at
// pooled position (prow, pcol), cropped to the sending layer
func (pj *Prjn) poolWindow(prow, pcol int) (rst, red, cst, ced int) {
	pg := &pj.Pool
	rst = prow*pg.Stride[0] - pg.Pad.Offset(pg.Size[0])
	red = ints.MinInt(rst+pg.Size[0], pj.SendShp[0])
	rst = ints.MaxInt(rst, 0)
	cst = pcol*pg.Stride[1] - pg.Pad.Offset(pg.Size[1])
	ced = ints.MinInt(cst+pg.Size[1], pj.SendShp[1])
	cst = ints.MaxInt(cst, 0)
	return
}
