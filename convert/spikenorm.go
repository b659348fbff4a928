// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package convert

import (
	"fmt"

	"github.com/emer/etable/v2/etensor"
	"github.com/emer/spikeconv/ann"
	"github.com/emer/spikeconv/snn"
	"github.com/goki/mat32"
)

// SpikeNorm balances thresholds on the compiled network: layer by layer, in
// order from the inputs, the threshold is set to the maximum membrane
// potential the layer reaches on the normalization data when it cannot spike,
// with the thresholds of the layers before it already balanced.
type SpikeNorm struct {

	// normalization data, one tensor per network input with the sample as the outer dimension
	Data []*etensor.Float32

	// presentation time of each sample, in msec
	ClassifyTime float32 `def:"500"`
}

// NewSpikeNorm returns a SpikeNorm using given data and presentation time
func NewSpikeNorm(classifyTime float32, data ...*etensor.Float32) *SpikeNorm {
	return &SpikeNorm{Data: data, ClassifyTime: classifyTime}
}

func (sn *SpikeNorm) PreCompile(model *ann.Model, cfg *Config) (NormContext, error) {
	return nil, nil
}

func (sn *SpikeNorm) CreateNeurons(ly *ann.Layer, ctx NormContext) float32 { return 1 }

func (sn *SpikeNorm) PostCompile(nt *snn.Network) error {
	if sn.ClassifyTime <= 0 {
		return fmt.Errorf("SpikeNorm: ClassifyTime must be positive, is %g", sn.ClassifyTime)
	}
	n, err := nt.CheckData(sn.Data)
	if err != nil {
		return fmt.Errorf("SpikeNorm: %w", err)
	}
	for _, li := range nt.Order {
		ly := nt.Layer(li)
		if ly.IsInput() {
			continue
		}
		if err := nt.SetThr(ly, mat32.Infinity); err != nil {
			return err
		}
		vmax, err := sn.maxVmem(nt, ly, n)
		if err != nil {
			return err
		}
		if vmax <= 0 {
			vmax = 1
		}
		if err := nt.SetThr(ly, vmax); err != nil {
			return err
		}
	}
	return nil
}

// maxVmem presents all the data, returning the maximum Vmem of the layer
func (sn *SpikeNorm) maxVmem(nt *snn.Network, ly *snn.Layer, n int) (float32, error) {
	eng := nt.Eng
	batch := eng.BatchSize()
	vmax := float32(0)
	for start := 0; start < n; start += batch {
		end := start + batch
		if end > n {
			end = n
		}
		if err := nt.ApplyInputs(sn.Data, start, end); err != nil {
			return 0, err
		}
		eng.ResetTime()
		for eng.Time() < sn.ClassifyTime {
			if err := eng.StepTime(); err != nil {
				return 0, err
			}
			for bi := 0; bi < end-start; bi++ {
				vm, err := eng.State(ly.Nm, "Vmem", bi)
				if err != nil {
					return 0, err
				}
				for _, v := range vm {
					vmax = mat32.Max(vmax, v)
				}
			}
		}
	}
	return vmax, nil
}
