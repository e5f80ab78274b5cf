// Package analysis orchestrates the DC-sweep, transient, and AC-sweep
// analysis loops: it runs Newton-Raphson when nonlinear devices are
// present and records one solution vector per sweep point, keyed by
// the sweep parameter (source value, time, or angular frequency).
package analysis

import (
	"math"

	"mnacore/pkg/assembler"
	"mnacore/pkg/device"
	"mnacore/pkg/simerr"
	"mnacore/pkg/topology"
)

type convergence struct {
	maxIter int
	abstol  float64
	reltol  float64
}

func defaultConvergence() convergence {
	return convergence{maxIter: 100, abstol: 1e-12, reltol: 1e-6}
}

// Result is one analysis's full set of recorded sweep points, shared
// by DC sweep, transient, and AC sweep so the query package can read
// them uniformly.
type Result struct {
	Keys      []float64 // sweep parameter: source value, time, or omega
	Solutions [][]float64
	Complex   [][]complex128 // populated only by AC sweep
	Index     device.Index
	Omitted   []float64 // sweep points dropped for SingularMatrix
}

// Base carries the pieces every analysis mode shares: the topology it
// runs against, the assembler that builds its system, and the
// Newton-Raphson convergence parameters.
type Base struct {
	Topo *topology.Topology
	Asm  *assembler.Assembler
	conv convergence
}

func newBase(topo *topology.Topology, asm *assembler.Assembler) Base {
	return Base{Topo: topo, Asm: asm, conv: defaultConvergence()}
}

func l2Residual(a, b []float64) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// updateNonlinear refreshes history on only the nonlinear devices
// (the diode), used between NR iterations within one sweep point.
func updateNonlinear(topo *topology.Topology, solution []float64, ix device.Index) {
	for _, d := range topo.Devices() {
		if d.IsNonlinear() {
			d.UpdateState(solution, ix)
		}
	}
}

// updateAll refreshes history on every device, used once per
// successful sweep point to advance V_prev/I_prev for the next one.
func updateAll(topo *topology.Topology, solution []float64, ix device.Index) {
	for _, d := range topo.Devices() {
		d.UpdateState(solution, ix)
	}
}

// newtonRaphson runs the bare NR loop at gmin, re-stamping and
// re-solving until consecutive iterates satisfy the L2 tolerance or
// maxIter is exhausted (NonConvergence, with the last iterate still
// available to the caller via the returned solution).
func (b *Base) newtonRaphson(status *device.Status, gmin float64, assemble func(*device.Status) error) ([]float64, error) {
	var prev []float64

	for iter := 0; iter < b.conv.maxIter; iter++ {
		if iter > 0 {
			updateNonlinear(b.Topo, prev, b.Asm.Index())
		}

		if err := assemble(status); err != nil {
			return nil, err
		}
		b.Asm.System().LoadGmin(gmin)

		if err := b.Asm.System().Solve(); err != nil {
			return nil, err
		}
		cur := b.Asm.System().Solution()

		if iter > 0 && l2Residual(cur, prev) < 1e-6 {
			return cur, nil
		}

		if prev == nil {
			prev = make([]float64, len(cur))
		}
		copy(prev, cur)

		if !b.Topo.HasNonlinear() {
			return cur, nil
		}
	}

	return prev, simerr.New(simerr.NonConvergence, "Newton-Raphson did not converge in 100 iterations")
}

// solveOperatingPoint runs NR at gmin=0; if that fails to converge, it
// falls back to gmin stepping (geometric ramp-down from a large
// diagonal conductance) before giving up.
func (b *Base) solveOperatingPoint(status *device.Status, assemble func(*device.Status) error) ([]float64, error) {
	solution, err := b.newtonRaphson(status, 0, assemble)
	if err == nil {
		return solution, nil
	}
	if !b.Topo.HasNonlinear() {
		return solution, err
	}

	const numSteps = 10
	startGmin := float64(b.Asm.System().Size) * 0.001
	gmin := startGmin * math.Pow(10, float64(numSteps))

	for i := 0; i <= numSteps; i++ {
		if _, stepErr := b.newtonRaphson(status, gmin, assemble); stepErr != nil {
			return solution, simerr.Wrap(simerr.NonConvergence, "gmin stepping failed", stepErr)
		}
		gmin /= 10
	}

	return b.newtonRaphson(status, 0, assemble)
}
