package analysis

import (
	"mnacore/pkg/assembler"
	"mnacore/pkg/device"
	"mnacore/pkg/simerr"
	"mnacore/pkg/topology"
)

// ACSweep runs a linear angular-frequency sweep of the small-signal
// system, requiring at least one AC voltage source.
type ACSweep struct {
	Base
	omegaStart, omegaStop float64
	numPoints             int

	Result Result
}

func NewACSweep(topo *topology.Topology, asm *assembler.Assembler, omegaStart, omegaStop float64, numPoints int) *ACSweep {
	return &ACSweep{Base: newBase(topo, asm), omegaStart: omegaStart, omegaStop: omegaStop, numPoints: numPoints}
}

func (ac *ACSweep) hasACSource() bool {
	for _, d := range ac.Topo.Devices() {
		if d.Kind == device.ACVoltageSource {
			return true
		}
	}
	return false
}

func (ac *ACSweep) frequencies() []float64 {
	if ac.numPoints <= 1 {
		return []float64{ac.omegaStart}
	}
	step := (ac.omegaStop - ac.omegaStart) / float64(ac.numPoints-1)
	pts := make([]float64, ac.numPoints)
	for i := range pts {
		pts[i] = ac.omegaStart + float64(i)*step
	}
	return pts
}

func (ac *ACSweep) Run() error {
	if !ac.hasACSource() {
		return simerr.New(simerr.NoACSource, "AC sweep requires at least one AC voltage source")
	}

	// The small-signal system linearizes about the DC bias point.
	op := NewOperatingPoint(ac.Topo, ac.Asm)
	if err := op.Run(); err != nil {
		return err
	}

	ac.Result = Result{}

	for _, omega := range ac.frequencies() {
		status := &device.Status{Mode: device.AC, Omega: omega, Temp: 300.15}

		if err := ac.Asm.AssembleAC(status); err != nil {
			return err
		}
		if err := ac.Asm.System().Solve(); err != nil {
			if kind, ok := simerr.Of(err); ok && kind == simerr.SingularMatrix {
				ac.Result.Omitted = append(ac.Result.Omitted, omega)
				continue
			}
			return err
		}

		size := ac.Asm.System().Size
		complexSolution := make([]complex128, size+1)
		for i := 1; i <= size; i++ {
			re, im := ac.Asm.System().GetComplexSolution(i)
			complexSolution[i] = complex(re, im)
		}

		ac.Result.Keys = append(ac.Result.Keys, omega)
		ac.Result.Complex = append(ac.Result.Complex, complexSolution)
		ac.Result.Index = ac.Asm.Index()
	}

	return nil
}
