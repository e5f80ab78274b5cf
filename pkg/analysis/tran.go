package analysis

import (
	"mnacore/pkg/assembler"
	"mnacore/pkg/device"
	"mnacore/pkg/simerr"
	"mnacore/pkg/topology"
)

// Transient runs a fixed-step Backward Euler sweep from tStart to
// tStop. Adaptive step control and higher-order integration are out
// of scope; every step uses the same h.
type Transient struct {
	Base
	tStart, tStop, h float64

	Result Result
}

func NewTransient(topo *topology.Topology, asm *assembler.Assembler, tStart, tStop, maxStep float64) *Transient {
	if maxStep <= 0 {
		maxStep = (tStop - tStart) / 100
	}
	return &Transient{Base: newBase(topo, asm), tStart: tStart, tStop: tStop, h: maxStep}
}

func (tr *Transient) Run() error {
	tr.Topo.Reset()

	tr.Result = Result{}

	for t := tr.tStart; t <= tr.tStop+1e-12; t += tr.h {
		status := &device.Status{Time: t, TimeStep: tr.h, Mode: device.Transient, Temp: 300.15}

		solution, err := tr.newtonRaphson(status, 0, tr.Asm.Assemble)
		if err != nil {
			if kind, ok := simerr.Of(err); ok && kind == simerr.SingularMatrix {
				return err
			}
			// NonConvergence: the last iterate is still usable and recorded.
		}

		updateAll(tr.Topo, solution, tr.Asm.Index())

		tr.Result.Keys = append(tr.Result.Keys, t)
		tr.Result.Solutions = append(tr.Result.Solutions, append([]float64(nil), solution...))
		tr.Result.Index = tr.Asm.Index()
	}

	return nil
}
