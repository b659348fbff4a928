// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package sim is a reference CPU implementation of the snn.Engine interface.

Each step delivers the spikes emitted on the previous step through the synapse
populations, and then updates all the neurons.  The updates can be split across
worker goroutines by population, with each population updated by one thread.
*/
package sim

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unsafe"

	"github.com/c2h5oh/datasize"
	"github.com/emer/emergent/v2/timer"
	"github.com/emer/spikeconv/snn"
)

// PopFunChan is a channel that runs Pop functions
type PopFunChan chan func(pp *Pop)

// sim.Engine simulates the populations of a snn.NetDesc in the current process
type Engine struct {
	Nm       string                 `desc:"name of the network built"`
	NThreads int                    `def:"1" desc:"number of parallel threads (go routines) to use for updating populations"`
	Pops     []*Pop                 `desc:"neuron populations, in the order of the description"`
	PopMap   map[string]*Pop        `view:"-" desc:"map of name to populations"`
	Syns     []*SynPop              `desc:"synapse populations"`
	Batch    int                    `desc:"number of samples simulated in parallel"`
	DTime    float32                `desc:"integration time step in msec"`
	Step     int                    `desc:"number of steps since ResetTime"`
	ThrPops  [][]*Pop               `view:"-" inactive:"+" desc:"populations per thread"`
	ThrChans []PopFunChan           `view:"-" desc:"population function channels, per thread"`
	ThrTimes []timer.Time           `view:"-" desc:"timers for each thread, so you can see how evenly the workload is being distributed"`
	FunTimes map[string]*timer.Time `view:"-" desc:"timers for each kernel (step of processing)"`
	WaitGp   sync.WaitGroup         `view:"-" desc:"wait group for synchronizing threaded population calls"`
	running  bool
}

// NewEngine returns a new Engine using given number of threads
func NewEngine(nthreads int) *Engine {
	if nthreads < 1 {
		nthreads = 1
	}
	return &Engine{NThreads: nthreads}
}

// Build allocates the populations of the description, computing the
// compressed rows of the sparse synapse populations.
func (en *Engine) Build(desc *snn.NetDesc) error {
	if desc.BatchSize < 1 {
		return fmt.Errorf("sim.Engine Build: %s: batch size must be at least 1, is %d", desc.Name, desc.BatchSize)
	}
	if desc.DT <= 0 {
		return fmt.Errorf("sim.Engine Build: %s: DT must be positive, is %g", desc.Name, desc.DT)
	}
	en.StopThreads()
	en.FunTimes = make(map[string]*timer.Time)
	en.FunTimerStart("init")
	en.Nm = desc.Name
	en.Batch = desc.BatchSize
	en.DTime = desc.DT
	en.Step = 0
	en.Pops = make([]*Pop, len(desc.Pops))
	en.PopMap = make(map[string]*Pop, len(desc.Pops))
	emsg := ""
	for i, pd := range desc.Pops {
		if _, has := en.PopMap[pd.Name]; has {
			emsg += fmt.Sprintf("population %s is not unique\n", pd.Name)
		}
		pp := &Pop{Nm: pd.Name, Idx: i, N: pd.N, Type: pd.Type, Params: pd.Params}
		pp.alloc(en.Batch, desc.Seed)
		en.Pops[i] = pp
		en.PopMap[pd.Name] = pp
	}
	en.FunTimerStop("init")
	en.FunTimerStart("initSparse")
	en.Syns = nil
	for _, sd := range desc.Syns {
		pre, ok := en.PopMap[sd.Pre]
		post, ok2 := en.PopMap[sd.Post]
		if !ok || !ok2 {
			emsg += fmt.Sprintf("synapse population %s: populations %s -> %s not found\n", sd.Name, sd.Pre, sd.Post)
			continue
		}
		sy := &SynPop{Nm: sd.Name, Pre: pre, Post: post, Conn: sd.Conn, WtFun: sd.WtFun}
		switch sd.Conn {
		case snn.Sparse:
			if err := checkConns(sd.Conns, pre.N, post.N); err != nil {
				emsg += fmt.Sprintf("synapse population %s: %v\n", sd.Name, err)
				continue
			}
			sy.SetSparse(sd.Conns)
		default:
			if sd.WtFun == nil {
				emsg += fmt.Sprintf("synapse population %s: no weight function\n", sd.Name)
				continue
			}
		}
		en.Syns = append(en.Syns, sy)
		post.RcvSyns = append(post.RcvSyns, sy)
	}
	en.FunTimerStop("initSparse")
	if emsg != "" {
		return errors.New(emsg)
	}
	en.BuildThreads()
	return nil
}

// checkConns checks that the sparse connections are within the populations
func checkConns(sc *snn.SparseConns, npre, npost int) error {
	if sc == nil {
		return errors.New("no sparse connections")
	}
	if len(sc.Post) != len(sc.Pre) || len(sc.G) != len(sc.Pre) {
		return errors.New("sparse connection lists have different lengths")
	}
	for i, p := range sc.Pre {
		if p < 0 || int(p) >= npre || sc.Post[i] < 0 || int(sc.Post[i]) >= npost {
			return fmt.Errorf("connection %d: %d -> %d is out of range", i, p, sc.Post[i])
		}
	}
	return nil
}

// StepTime delivers the spikes of the last step and then updates all neurons
func (en *Engine) StepTime() error {
	if en.Pops == nil {
		return errors.New("sim.Engine StepTime: engine has not been built")
	}
	step := en.Step - 1
	en.ThrPopFun(func(pp *Pop) { pp.Deliver(step) }, "presynapticUpdate")
	dt := en.DTime
	en.ThrPopFun(func(pp *Pop) { pp.Update(dt) }, "neuronUpdate")
	en.Step++
	return nil
}

// ResetTime resets the time and all neuron state other than the inputs
func (en *Engine) ResetTime() {
	en.Step = 0
	for _, pp := range en.Pops {
		pp.Reset()
	}
}

func (en *Engine) Time() float32  { return float32(en.Step) * en.DTime }
func (en *Engine) Timestep() int  { return en.Step }
func (en *Engine) DT() float32    { return en.DTime }
func (en *Engine) BatchSize() int { return en.Batch }

// PopByNameTry returns the population of given name, or an error if not found
func (en *Engine) PopByNameTry(pop string) (*Pop, error) {
	pp, ok := en.PopMap[pop]
	if !ok {
		return nil, fmt.Errorf("Population named: %v not found in Engine: %v", pop, en.Nm)
	}
	return pp, nil
}

func (en *Engine) popBatch(pop string, batch int) (*Pop, error) {
	pp, err := en.PopByNameTry(pop)
	if err != nil {
		return nil, err
	}
	if batch < 0 || batch >= en.Batch {
		return nil, fmt.Errorf("batch element %d out of range for batch size %d", batch, en.Batch)
	}
	return pp, nil
}

// SetInput sets the input values of an input population for given batch element
func (en *Engine) SetInput(pop string, batch int, vals []float32) error {
	pp, err := en.popBatch(pop, batch)
	if err != nil {
		return err
	}
	if !pp.Type.IsInput() {
		return fmt.Errorf("sim.Engine SetInput: population %s of type %v is not an input", pop, pp.Type)
	}
	if len(vals) != pp.N {
		return fmt.Errorf("sim.Engine SetInput: population %s has %d neurons, got %d values", pop, pp.N, len(vals))
	}
	copy(pp.Input[batch*pp.N:], vals)
	return nil
}

// SetThreshold sets the firing threshold of the population
func (en *Engine) SetThreshold(pop string, thr float32) error {
	pp, err := en.PopByNameTry(pop)
	if err != nil {
		return err
	}
	pp.Params.Thr = thr
	return nil
}

// State returns a copy of the values of a neuron variable for given batch element
func (en *Engine) State(pop, varNm string, batch int) ([]float32, error) {
	pp, err := en.popBatch(pop, batch)
	if err != nil {
		return nil, err
	}
	vals, ok := pp.Var(varNm)
	if !ok {
		_, err := snn.NeuronVarIdxByName(varNm)
		return nil, err
	}
	return append([]float32(nil), vals[batch*pp.N:(batch+1)*pp.N]...), nil
}

// Spikes returns a copy of the indexes of the neurons that spiked on the last step
func (en *Engine) Spikes(pop string, batch int) ([]int32, error) {
	pp, err := en.popBatch(pop, batch)
	if err != nil {
		return nil, err
	}
	return append([]int32(nil), pp.Spk[batch]...), nil
}

//////////////////////////////////////////////////////////////////////////////////////
//  Threading infrastructure

// BuildThreads allocates the populations to threads, round-robin, and starts them
func (en *Engine) BuildThreads() {
	if en.NThreads < 1 {
		en.NThreads = 1
	}
	en.ThrPops = make([][]*Pop, en.NThreads)
	en.ThrChans = make([]PopFunChan, en.NThreads)
	en.ThrTimes = make([]timer.Time, en.NThreads)
	for _, pp := range en.Pops {
		pp.Thread = pp.Idx % en.NThreads
		en.ThrPops[pp.Thread] = append(en.ThrPops[pp.Thread], pp)
	}
	if en.NThreads <= 1 {
		return
	}
	for th := 0; th < en.NThreads; th++ {
		en.ThrChans[th] = make(PopFunChan)
	}
	en.StartThreads()
}

// StartThreads starts up the computation threads, which monitor the channels for work
func (en *Engine) StartThreads() {
	for th := 0; th < en.NThreads; th++ {
		go en.ThrWorker(th)
	}
	en.running = true
}

// StopThreads stops the computation threads.  The engine must be built again to use them.
func (en *Engine) StopThreads() {
	if !en.running {
		return
	}
	for th := 0; th < en.NThreads; th++ {
		close(en.ThrChans[th])
	}
	en.running = false
}

// ThrWorker is the worker function run by the worker threads
func (en *Engine) ThrWorker(tt int) {
	for fun := range en.ThrChans[tt] {
		en.ThrTimes[tt].Start()
		for _, pp := range en.ThrPops[tt] {
			fun(pp)
		}
		en.ThrTimes[tt].Stop()
		en.WaitGp.Done()
	}
}

// ThrPopFun calls function on each population, using the worker threads if NThreads > 1
// and otherwise just iterating over populations in the current thread.
func (en *Engine) ThrPopFun(fun func(pp *Pop), funame string) {
	en.FunTimerStart(funame)
	if !en.running {
		for _, pp := range en.Pops {
			fun(pp)
		}
	} else {
		for th := 0; th < en.NThreads; th++ {
			en.WaitGp.Add(1)
			en.ThrChans[th] <- fun
		}
		en.WaitGp.Wait()
	}
	en.FunTimerStop(funame)
}

//////////////////////////////////////////////////////////////////////////////////////
//  Timers and reports

// FunTimerStart starts function timer for given function name -- ensures creation of timer
func (en *Engine) FunTimerStart(fun string) {
	if en.FunTimes == nil {
		en.FunTimes = make(map[string]*timer.Time)
	}
	ft, ok := en.FunTimes[fun]
	if !ok {
		ft = &timer.Time{}
		en.FunTimes[fun] = ft
	}
	ft.Start()
}

// FunTimerStop stops function timer -- timer must already exist
func (en *Engine) FunTimerStop(fun string) {
	ft := en.FunTimes[fun]
	ft.Stop()
}

// KernelTimes returns the total time in seconds spent in each kernel
func (en *Engine) KernelTimes() map[string]float64 {
	kt := make(map[string]float64, len(en.FunTimes))
	for fn, ft := range en.FunTimes {
		kt[fn] = ft.TotalSecs()
	}
	return kt
}

// TimerReset resets all the kernel and thread timers
func (en *Engine) TimerReset() {
	for _, ft := range en.FunTimes {
		ft.Reset()
	}
	for th := range en.ThrTimes {
		en.ThrTimes[th].Reset()
	}
}

// TimerReport returns the amount of time spent in each kernel, and in each thread
func (en *Engine) TimerReport() string {
	var b strings.Builder
	fmt.Fprintf(&b, "TimerReport: %v, NThreads: %v\n", en.Nm, en.NThreads)
	fmt.Fprintf(&b, "\tFunction Name\tTotal Secs\tPct\n")
	fnms := make([]string, 0, len(en.FunTimes))
	for k := range en.FunTimes {
		fnms = append(fnms, k)
	}
	sort.Strings(fnms)
	pcts := make([]float64, len(fnms))
	tot := 0.0
	for i, fn := range fnms {
		pcts[i] = en.FunTimes[fn].TotalSecs()
		tot += pcts[i]
	}
	for i, fn := range fnms {
		fmt.Fprintf(&b, "\t%v \t%6.4g\t%6.4g\n", fn, pcts[i], 100*(pcts[i]/tot))
	}
	fmt.Fprintf(&b, "\tTotal   \t%6.4g\n", tot)

	if en.NThreads <= 1 {
		return b.String()
	}
	fmt.Fprintf(&b, "\n\tThr\tTotal Secs\tPct\n")
	pcts = make([]float64, en.NThreads)
	tot = 0.0
	for th := 0; th < en.NThreads; th++ {
		pcts[th] = en.ThrTimes[th].TotalSecs()
		tot += pcts[th]
	}
	for th := 0; th < en.NThreads; th++ {
		fmt.Fprintf(&b, "\t%v \t%6.4g\t%6.4g\n", th, pcts[th], 100*(pcts[th]/tot))
	}
	return b.String()
}

// SizeReport returns a string reporting the memory used by each population
// and synapse population
func (en *Engine) SizeReport() string {
	var b strings.Builder
	f32 := int(unsafe.Sizeof(float32(0)))
	i32 := int(unsafe.Sizeof(int32(0)))
	neurMem := 0
	synMem := 0
	for _, pp := range en.Pops {
		nmem := 4 * pp.N * en.Batch * f32
		neurMem += nmem
		fmt.Fprintf(&b, "%14s:\t Neurons: %d\t NeurMem: %v \n", pp.Nm, pp.N, (datasize.ByteSize)(nmem).HumanReadable())
	}
	for _, sy := range en.Syns {
		smem := sy.NSyns()*(i32+f32) + 2*len(sy.RowSt)*i32
		synMem += smem
		fmt.Fprintf(&b, "%14s:\t Type: %v\t Syns: %d\t MaxFanOut: %g\t SynMem: %v\n", sy.Nm, sy.Conn, sy.NSyns(), sy.FanOut.Max, (datasize.ByteSize)(smem).HumanReadable())
	}
	fmt.Fprintf(&b, "\n%14s:\t NeurMem: %v \t SynMem: %v\n", en.Nm, (datasize.ByteSize)(neurMem).HumanReadable(), (datasize.ByteSize)(synMem).HumanReadable())
	return b.String()
}
