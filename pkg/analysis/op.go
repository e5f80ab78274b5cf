package analysis

import (
	"mnacore/pkg/assembler"
	"mnacore/pkg/device"
	"mnacore/pkg/topology"
)

// OperatingPoint finds the DC bias point of a circuit: the degenerate
// case of a transient analysis with h=0 and t=0.
type OperatingPoint struct {
	Base
	Result Result
}

func NewOperatingPoint(topo *topology.Topology, asm *assembler.Assembler) *OperatingPoint {
	return &OperatingPoint{Base: newBase(topo, asm)}
}

// Run solves for the bias point and records it as the analysis's
// single sweep point, keyed at 0.
func (op *OperatingPoint) Run() error {
	op.Topo.Reset()
	status := &device.Status{Mode: device.OperatingPoint, Temp: 300.15}

	solution, err := op.solveOperatingPoint(status, op.Asm.Assemble)
	if err != nil {
		return err
	}

	updateAll(op.Topo, solution, op.Asm.Index())

	op.Result = Result{
		Keys:      []float64{0},
		Solutions: [][]float64{append([]float64(nil), solution...)},
		Index:     op.Asm.Index(),
	}
	return nil
}
