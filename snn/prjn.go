// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snn

import (
	"fmt"

	"github.com/emer/etable/v2/etensor"
	"github.com/goki/ki/kit"
)

// PrjnTypes are the kinds of connectivity of a Prjn
type PrjnTypes int32

//go:generate stringer -type=PrjnTypes

var KiT_PrjnTypes = kit.Enums.AddEnum(PrjnTypesN, false, nil)

func (ev PrjnTypes) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *PrjnTypes) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

const (
	// Dense connects every sending neuron to every receiving neuron with weights [in, units]
	Dense PrjnTypes = iota

	// Conv2D is a 2D convolution of the sending layer with kernel [kh, kw, in-chans, filters]
	Conv2D

	// PoolDense is an average pooling of the sending layer followed by Dense
	PoolDense

	// PoolConv2D is an average pooling of the sending layer followed by Conv2D
	PoolConv2D

	PrjnTypesN
)

// IsPool returns true if the projection fuses an average pooling
func (pt PrjnTypes) IsPool() bool {
	return pt == PoolDense || pt == PoolConv2D
}

// IsConv returns true if the projection applies a convolution
func (pt PrjnTypes) IsConv() bool {
	return pt == Conv2D || pt == PoolConv2D
}

// PoolGeom is the geometry of the average pooling of a PoolDense or PoolConv2D projection
type PoolGeom struct {

	// pooling window size, rows, cols
	Size [2]int

	// pooling stride, rows, cols
	Stride [2]int

	// padding mode for the pooling windows
	Pad PadModes
}

// Update sets a zero stride to the default, equal to the window size
func (pg *PoolGeom) Update() {
	for i := range pg.Stride {
		if pg.Stride[i] <= 0 {
			pg.Stride[i] = pg.Size[i]
		}
	}
}

// ConvGeom is the geometry of the convolution of a Conv2D or PoolConv2D projection
type ConvGeom struct {

	// kernel size, rows, cols
	Kernel [2]int

	// kernel stride, rows, cols
	Stride [2]int

	// padding mode for the kernel
	Pad PadModes

	// number of output channels
	Filters int
}

// Update sets a zero stride to the default of 1
func (cg *ConvGeom) Update() {
	for i := range cg.Stride {
		if cg.Stride[i] <= 0 {
			cg.Stride[i] = 1
		}
	}
}

// snn.Prjn is a projection of connections from a sending layer to the receiving
// layer that owns it.  The sending layer is referred to by its index in the
// network Layers.
type Prjn struct {
	Cls     string           `desc:"Class is for applying parameter styles, can be space separated multple tags"`
	Typ     PrjnTypes        `desc:"kind of connectivity"`
	Conn    ConnTypes        `desc:"whether weights are computed procedurally or materialized as sparse lists"`
	Send    int              `desc:"index of the sending layer in the network Layers"`
	Recv    int              `desc:"index of the receiving layer in the network Layers"`
	Pool    PoolGeom         `desc:"geometry of the fused average pooling, for PoolDense and PoolConv2D"`
	Conv    ConvGeom         `desc:"geometry of the convolution, for Conv2D and PoolConv2D"`
	Units   int              `desc:"number of receiving units, for Dense and PoolDense"`
	Wts     *etensor.Float32 `desc:"weights of the dense or convolution transform: [in, units] or [kh, kw, in-chans, filters]"`
	SendShp []int            `desc:"shape of the sending layer"`
	PoolShp []int            `desc:"shape of the pooled sending layer that the transform applies to -- same as SendShp without pooling"`
	RecvShp []int            `desc:"shape of the receiving layer"`
	NSyns   int              `desc:"number of materialized synapses, for Sparse connectivity, after Compile"`
	Nm      string           `desc:"name of the projection: <send>To<recv>"`
}

// NewDensePrjn returns a new Dense projection onto given number of units
func NewDensePrjn(units int) *Prjn {
	return &Prjn{Typ: Dense, Units: units}
}

// NewConv2DPrjn returns a new Conv2D projection
func NewConv2DPrjn(cg ConvGeom) *Prjn {
	return &Prjn{Typ: Conv2D, Conv: cg}
}

// NewPoolDensePrjn returns a new PoolDense projection onto given number of units
func NewPoolDensePrjn(pg PoolGeom, units int) *Prjn {
	return &Prjn{Typ: PoolDense, Pool: pg, Units: units}
}

// NewPoolConv2DPrjn returns a new PoolConv2D projection
func NewPoolConv2DPrjn(pg PoolGeom, cg ConvGeom) *Prjn {
	return &Prjn{Typ: PoolConv2D, Pool: pg, Conv: cg}
}

// emer.Styler interface for params

func (pj *Prjn) Name() string     { return pj.Nm }
func (pj *Prjn) Class() string    { return pj.Typ.String() + " " + pj.Cls }
func (pj *Prjn) TypeName() string { return "Prjn" } // always, for params..

func (pj *Prjn) Label() string { return pj.Nm }

// NSend returns the number of sending neurons
func (pj *Prjn) NSend() int { return shapeLen(pj.SendShp) }

// NRecv returns the number of receiving neurons
func (pj *Prjn) NRecv() int { return shapeLen(pj.RecvShp) }

// String satisfies fmt.Stringer for prjn
func (pj *Prjn) String() string {
	return fmt.Sprintf("%s: %v %v -> %v (%v)", pj.Nm, pj.Typ, pj.SendShp, pj.RecvShp, pj.Conn)
}

// Connect computes the shapes of the projection from the sending layer shape,
// and sets the receiving layer shape, or checks that it agrees with the shape it
// already has from another projection.
func (pj *Prjn) Connect(send, recv *Layer) error {
	if !send.HasShape() {
		return fmt.Errorf("Prjn Connect: sending layer %s has no shape: %w", send.Nm, ErrShapeMismatch)
	}
	pj.Pool.Update()
	pj.Conv.Update()
	pj.Send = send.Idx
	pj.Recv = recv.Idx
	pj.Nm = send.Nm + "To" + recv.Nm
	pj.SendShp = append([]int(nil), send.Shp.Shapes()...)
	pj.PoolShp = pj.SendShp
	if pj.Typ.IsPool() {
		if len(pj.SendShp) != 3 {
			return fmt.Errorf("Prjn Connect: %s: pooling needs a [rows, cols, chans] sending layer, has %v: %w", pj.Nm, pj.SendShp, ErrShapeMismatch)
		}
		pg := &pj.Pool
		prow := pg.Pad.OutSize(pj.SendShp[0], pg.Size[0], pg.Stride[0])
		pcol := pg.Pad.OutSize(pj.SendShp[1], pg.Size[1], pg.Stride[1])
		if prow <= 0 || pcol <= 0 {
			return fmt.Errorf("Prjn Connect: %s: pooling window %v does not fit %v: %w", pj.Nm, pg.Size, pj.SendShp, ErrShapeMismatch)
		}
		pj.PoolShp = []int{prow, pcol, pj.SendShp[2]}
	}
	if pj.Typ.IsConv() {
		if len(pj.PoolShp) != 3 {
			return fmt.Errorf("Prjn Connect: %s: convolution needs a [rows, cols, chans] input, has %v: %w", pj.Nm, pj.PoolShp, ErrShapeMismatch)
		}
		cg := &pj.Conv
		orow := cg.Pad.OutSize(pj.PoolShp[0], cg.Kernel[0], cg.Stride[0])
		ocol := cg.Pad.OutSize(pj.PoolShp[1], cg.Kernel[1], cg.Stride[1])
		if orow <= 0 || ocol <= 0 {
			return fmt.Errorf("Prjn Connect: %s: kernel %v does not fit %v: %w", pj.Nm, cg.Kernel, pj.PoolShp, ErrShapeMismatch)
		}
		pj.RecvShp = []int{orow, ocol, cg.Filters}
	} else {
		pj.RecvShp = []int{pj.Units}
	}
	return recv.SetShape(pj.RecvShp)
}

// WtShape returns the shape of the weights required by the projection
func (pj *Prjn) WtShape() []int {
	if pj.Typ.IsConv() {
		return []int{pj.Conv.Kernel[0], pj.Conv.Kernel[1], pj.PoolShp[2], pj.Conv.Filters}
	}
	return []int{shapeLen(pj.PoolShp), pj.Units}
}

// SetWts sets the weights of the transform, which must have the shape
// given by WtShape.  The tensor is shared, not copied, and is treated
// as read-only.
func (pj *Prjn) SetWts(wts *etensor.Float32) error {
	if wts == nil {
		return fmt.Errorf("Prjn SetWts: %s: nil weights", pj.Nm)
	}
	if wsh := pj.WtShape(); !shapeEqual(wts.Shapes(), wsh) {
		return fmt.Errorf("Prjn SetWts: %s: weights have shape %v, need %v: %w", pj.Nm, wts.Shapes(), wsh, ErrShapeMismatch)
	}
	pj.Wts = wts
	return nil
}

// Validate tests for non-nil weights and agreement of the shapes,
// returning an error listing the problems
func (pj *Prjn) Validate() error {
	emsg := ""
	if pj.Wts == nil {
		emsg += pj.Nm + " has no weights; "
	} else if wsh := pj.WtShape(); !shapeEqual(pj.Wts.Shapes(), wsh) {
		emsg += fmt.Sprintf("%s weights have shape %v, need %v; ", pj.Nm, pj.Wts.Shapes(), wsh)
	}
	if len(pj.SendShp) == 0 || len(pj.RecvShp) == 0 {
		emsg += pj.Nm + " is not connected; "
	}
	if emsg != "" {
		return fmt.Errorf("Prjn Validate: %s%w", emsg, ErrShapeMismatch)
	}
	return nil
}
