package device

// UpdateState refreshes this device's history fields from a converged
// solution vector. solution is 1-based (index 0 unused) as returned by
// matrix.System.Solution; ix carries the same node/branch index used
// to stamp this sweep point.
func (d *Device) UpdateState(solution []float64, ix Index) {
	switch d.Kind {
	case Capacitor:
		d.VPrev = terminalVoltage(solution, ix, d.N1, d.N2)
	case Inductor:
		d.IPrev = solution[ix.Branch[d.Name]]
	case Diode:
		d.VPrev = terminalVoltage(solution, ix, d.N1, d.N2)
	}
}

func terminalVoltage(solution []float64, ix Index, n1, n2 int) float64 {
	var v1, v2 float64
	if i1 := ix.row(n1); i1 != 0 {
		v1 = solution[i1]
	}
	if i2 := ix.row(n2); i2 != 0 {
		v2 = solution[i2]
	}
	return v1 - v2
}
