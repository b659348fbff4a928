// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ann

import (
	"fmt"

	"github.com/emer/etable/v2/etensor"
	"github.com/goki/ki/ints"
	"github.com/goki/mat32"
)

// Acts holds the output activations of each layer of a model for one sample
type Acts map[*Layer][]float32

// Forward computes the activations of all layers for one sample, given the
// values for each of the Inputs, in order.  Model must have been built.
func (m *Model) Forward(ins [][]float32) (Acts, error) {
	if len(ins) != len(m.Inputs) {
		return nil, fmt.Errorf("ann.Model Forward: model %s has %d inputs, got %d", m.Nm, len(m.Inputs), len(ins))
	}
	acts := make(Acts, len(m.Layers))
	for i, ly := range m.Inputs {
		if len(ins[i]) != ly.Len() {
			return nil, fmt.Errorf("ann.Model Forward: input %s needs %d values, got %d", ly.Nm, ly.Len(), len(ins[i]))
		}
		acts[ly] = ins[i]
	}
	for _, ly := range m.Layers {
		if ly.Kind == Input {
			continue
		}
		in := m.InLayers(ly)
		iacts := make([][]float32, len(in))
		for i, il := range in {
			ia, ok := acts[il]
			if !ok {
				return nil, fmt.Errorf("ann.Model Forward: layer %s computed before its input %s", ly.Nm, il.Nm)
			}
			iacts[i] = ia
		}
		out, err := ly.forward(iacts, in)
		if err != nil {
			return nil, err
		}
		acts[ly] = out
	}
	return acts, nil
}

// Predict returns the activations of the output layers for one sample
func (m *Model) Predict(ins [][]float32) ([][]float32, error) {
	acts, err := m.Forward(ins)
	if err != nil {
		return nil, err
	}
	outs := m.OutputLayers()
	res := make([][]float32, len(outs))
	for i, ly := range outs {
		res[i] = acts[ly]
	}
	return res, nil
}

// NSamples returns the number of samples (outer dimension) of a data tensor
func NSamples(data *etensor.Float32) int {
	if data.NumDims() == 0 {
		return 0
	}
	return data.Dim(0)
}

// SampleValues returns the values for sample si of a data tensor,
// whose outer dimension is the sample.  The values are not copied.
func SampleValues(data *etensor.Float32, si int) []float32 {
	n := NSamples(data)
	if n == 0 {
		return nil
	}
	sz := data.Len() / n
	return data.Values[si*sz : (si+1)*sz]
}

// SampleInputs returns the values of sample si from each data tensor
func SampleInputs(data []*etensor.Float32, si int) [][]float32 {
	ins := make([][]float32, len(data))
	for i, d := range data {
		ins[i] = SampleValues(d, si)
	}
	return ins
}

// forward computes the output of the layer from the inbound activations
func (ly *Layer) forward(ins [][]float32, in []*Layer) ([]float32, error) {
	out := make([]float32, ly.Len())
	switch ly.Kind {
	case Dense:
		ly.denseFwd(ins[0], out)
	case Conv2D:
		ly.convFwd(ins[0], in[0].Shp, out)
	case AvePool2D:
		ly.poolFwd(ins[0], in[0].Shp, out)
	case GlobalAvePool2D:
		ish := in[0].Shp
		npix := ish[0] * ish[1]
		for pi := 0; pi < npix; pi++ {
			for c := 0; c < ish[2]; c++ {
				out[c] += ins[0][pi*ish[2]+c]
			}
		}
		for c := range out {
			out[c] /= float32(npix)
		}
	case Add:
		for _, ia := range ins {
			for i := range out {
				out[i] += ia[i]
			}
		}
	case Flatten, Dropout:
		copy(out, ins[0])
	default:
		return nil, fmt.Errorf("ann.Layer forward: layer %s of kind %v cannot be computed", ly.Nm, ly.Kind)
	}
	if ly.Kind.IsWeighted() {
		ly.activate(out)
	}
	return out, nil
}

func (ly *Layer) denseFwd(in, out []float32) {
	nu := ly.Units
	w := ly.Wts.Values
	for i, iv := range in {
		if iv == 0 {
			continue
		}
		for u := 0; u < nu; u++ {
			out[u] += iv * w[i*nu+u]
		}
	}
	if ly.UseBias {
		for u := range out {
			out[u] += ly.Bias[u]
		}
	}
}

func (ly *Layer) convFwd(in []float32, ish []int, out []float32) {
	st := ly.Strides()
	kh, kw := ly.Size[0], ly.Size[1]
	ih, iw, ic := ish[0], ish[1], ish[2]
	oh, ow, oc := ly.Shp[0], ly.Shp[1], ly.Shp[2]
	padh := ly.Pad.PadBefore(ih, kh, st[0])
	padw := ly.Pad.PadBefore(iw, kw, st[1])
	w := ly.Wts.Values
	for or := 0; or < oh; or++ {
		for ocl := 0; ocl < ow; ocl++ {
			oi := (or*ow + ocl) * oc
			for kr := 0; kr < kh; kr++ {
				ir := or*st[0] - padh + kr
				if ir < 0 || ir >= ih {
					continue
				}
				for kc := 0; kc < kw; kc++ {
					icl := ocl*st[1] - padw + kc
					if icl < 0 || icl >= iw {
						continue
					}
					ii := (ir*iw + icl) * ic
					for c := 0; c < ic; c++ {
						iv := in[ii+c]
						if iv == 0 {
							continue
						}
						wi := ((kr*kw+kc)*ic + c) * oc
						for f := 0; f < oc; f++ {
							out[oi+f] += iv * w[wi+f]
						}
					}
				}
			}
			if ly.UseBias {
				for f := 0; f < oc; f++ {
					out[oi+f] += ly.Bias[f]
				}
			}
		}
	}
}

// poolFwd averages over the part of each window within the input
func (ly *Layer) poolFwd(in []float32, ish []int, out []float32) {
	st := ly.Strides()
	kh, kw := ly.Size[0], ly.Size[1]
	ih, iw, ic := ish[0], ish[1], ish[2]
	oh, ow := ly.Shp[0], ly.Shp[1]
	padh := ly.Pad.PadBefore(ih, kh, st[0])
	padw := ly.Pad.PadBefore(iw, kw, st[1])
	for or := 0; or < oh; or++ {
		rs := or*st[0] - padh
		re := ints.MinInt(rs+kh, ih)
		rs = ints.MaxInt(rs, 0)
		for ocl := 0; ocl < ow; ocl++ {
			cs := ocl*st[1] - padw
			ce := ints.MinInt(cs+kw, iw)
			cs = ints.MaxInt(cs, 0)
			area := float32((re - rs) * (ce - cs))
			oi := (or*ow + ocl) * ic
			for r := rs; r < re; r++ {
				for cl := cs; cl < ce; cl++ {
					ii := (r*iw + cl) * ic
					for c := 0; c < ic; c++ {
						out[oi+c] += in[ii+c]
					}
				}
			}
			for c := 0; c < ic; c++ {
				out[oi+c] /= area
			}
		}
	}
}

func (ly *Layer) activate(out []float32) {
	switch ly.Act {
	case ReLU:
		for i, v := range out {
			if v < 0 {
				out[i] = 0
			}
		}
	case Sigmoid:
		for i, v := range out {
			out[i] = 1 / (1 + mat32.Exp(-v))
		}
	case Softmax:
		mx := -mat32.Infinity
		for _, v := range out {
			mx = mat32.Max(mx, v)
		}
		sum := float32(0)
		for i, v := range out {
			out[i] = mat32.Exp(v - mx)
			sum += out[i]
		}
		for i := range out {
			out[i] /= sum
		}
	}
}
