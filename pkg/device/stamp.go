package device

import (
	"fmt"
	"math"

	"mnacore/pkg/matrix"
	"mnacore/pkg/simerr"
)

// Node maps a topology node id to its dense row/column, with 0
// meaning ground (and therefore skipped by every stamp below).
// Branch maps a current-unknown device's name to its assigned
// column in the augmented MNA space.
type Index struct {
	Node   map[int]int
	Branch map[string]int
}

func (ix Index) row(nodeID int) int { return ix.Node[nodeID] }

// Stamp adds this device's linear contribution to the real-valued
// DC/transient system.
func (d *Device) Stamp(mat matrix.DeviceMatrix, ix Index, status *Status) error {
	switch d.Kind {
	case Resistor:
		d.stampResistor(mat, ix)
	case Capacitor:
		d.stampCapacitorTime(mat, ix, status)
	case Inductor:
		d.stampInductorTime(mat, ix, status)
	case Diode:
		d.stampDiode(mat, ix, status)
	case VoltageSource:
		d.stampVoltageSourceTime(mat, ix, status)
	case CurrentSource:
		d.stampCurrentSourceTime(mat, ix, status)
	case ACVoltageSource:
		d.stampACVoltageSourceDC(mat, ix)
	case VCVS:
		d.stampVCVS(mat, ix)
	case VCCS:
		d.stampVCCS(mat, ix)
	case CCVS:
		return d.stampCCVS(mat, ix)
	case CCCS:
		return d.stampCCCS(mat, ix)
	default:
		return fmt.Errorf("device %s: unknown kind", d.Name)
	}
	return nil
}

// StampAC adds this device's contribution to the small-signal
// complex-valued system at angular frequency status.Omega.
func (d *Device) StampAC(mat matrix.DeviceMatrix, ix Index, status *Status) error {
	switch d.Kind {
	case Resistor:
		d.stampResistorAC(mat, ix)
	case Capacitor:
		d.stampCapacitorAC(mat, ix, status)
	case Inductor:
		d.stampInductorAC(mat, ix, status)
	case Diode:
		d.stampDiodeAC(mat, ix, status)
	case VoltageSource:
		d.stampVoltageSourceACIncidence(mat, ix)
	case CurrentSource:
		// current sources carry no AC drive and are silent in AC sweep.
	case ACVoltageSource:
		d.stampACVoltageSourceAC(mat, ix)
	case VCVS:
		d.stampVCVS(mat, ix)
	case VCCS:
		d.stampVCCS(mat, ix)
	case CCVS:
		return d.stampCCVS(mat, ix)
	case CCCS:
		return d.stampCCCS(mat, ix)
	default:
		return fmt.Errorf("device %s: unknown kind", d.Name)
	}
	return nil
}

func (d *Device) stampResistor(mat matrix.DeviceMatrix, ix Index) {
	i1, i2 := ix.row(d.N1), ix.row(d.N2)
	g := 1.0 / d.Value
	stampConductance(mat, i1, i2, g)
}

func (d *Device) stampResistorAC(mat matrix.DeviceMatrix, ix Index) {
	i1, i2 := ix.row(d.N1), ix.row(d.N2)
	g := 1.0 / d.Value
	stampConductanceAC(mat, i1, i2, g, 0)
}

// stampConductance applies the canonical four-term conductance stamp
// between two dense rows, skipping terms whose terminal is ground (0).
func stampConductance(mat matrix.DeviceMatrix, i1, i2 int, g float64) {
	if i1 != 0 {
		mat.AddElement(i1, i1, g)
		if i2 != 0 {
			mat.AddElement(i1, i2, -g)
		}
	}
	if i2 != 0 {
		if i1 != 0 {
			mat.AddElement(i2, i1, -g)
		}
		mat.AddElement(i2, i2, g)
	}
}

func stampConductanceAC(mat matrix.DeviceMatrix, i1, i2 int, real, imag float64) {
	if i1 != 0 {
		mat.AddComplexElement(i1, i1, real, imag)
		if i2 != 0 {
			mat.AddComplexElement(i1, i2, -real, -imag)
		}
	}
	if i2 != 0 {
		if i1 != 0 {
			mat.AddComplexElement(i2, i1, -real, -imag)
		}
		mat.AddComplexElement(i2, i2, real, imag)
	}
}

func (d *Device) stampCapacitorTime(mat matrix.DeviceMatrix, ix Index, status *Status) {
	i1, i2 := ix.row(d.N1), ix.row(d.N2)

	h := status.TimeStep
	if status.Mode != Transient || h <= 0 {
		return // open circuit: no stamp
	}

	geq := d.Value / h
	ieq := geq * d.VPrev

	stampConductance(mat, i1, i2, geq)
	if i1 != 0 {
		mat.AddRHS(i1, ieq)
	}
	if i2 != 0 {
		mat.AddRHS(i2, -ieq)
	}
}

func (d *Device) stampCapacitorAC(mat matrix.DeviceMatrix, ix Index, status *Status) {
	i1, i2 := ix.row(d.N1), ix.row(d.N2)
	omega := acOmegaFloor(status.Omega)
	stampConductanceAC(mat, i1, i2, 0, omega*d.Value)
}

func (d *Device) stampInductorTime(mat matrix.DeviceMatrix, ix Index, status *Status) {
	i1, i2 := ix.row(d.N1), ix.row(d.N2)
	k := d.BranchIdx

	if i1 != 0 {
		mat.AddElement(i1, k, 1)
		mat.AddElement(k, i1, 1)
	}
	if i2 != 0 {
		mat.AddElement(i2, k, -1)
		mat.AddElement(k, i2, -1)
	}

	h := status.TimeStep
	if h <= 0 {
		return // short: no diagonal term
	}
	geq := d.Value / h
	mat.AddElement(k, k, -geq)
	mat.AddRHS(k, -geq*d.IPrev)
}

func (d *Device) stampInductorAC(mat matrix.DeviceMatrix, ix Index, status *Status) {
	i1, i2 := ix.row(d.N1), ix.row(d.N2)
	omega := acOmegaFloor(status.Omega)
	admittance := 1.0 / (omega * d.Value)
	stampConductanceAC(mat, i1, i2, 0, -admittance)
}

func acOmegaFloor(omega float64) float64 {
	const floor = 1e-9
	if math.Abs(omega) < floor {
		if omega < 0 {
			return -floor
		}
		return floor
	}
	return omega
}

// stampDiode linearizes the exponential diode law about VPrev and
// writes the equivalent conductance/current-source companion.
func (d *Device) stampDiode(mat matrix.DeviceMatrix, ix Index, status *Status) {
	i1, i2 := ix.row(d.N1), ix.row(d.N2)

	nvt := d.Eta * d.Vt
	vd := d.VPrev
	arg := vd / nvt
	if arg > 80 {
		arg = 80
	}
	evd := math.Exp(arg)
	is := d.EffectiveIs(status.Temp)

	id := is * (evd - 1.0)
	gd := (is/nvt)*evd + d.Gmin
	ieq := id - gd*vd

	stampConductance(mat, i1, i2, gd)
	if i1 != 0 {
		mat.AddRHS(i1, -ieq)
	}
	if i2 != 0 {
		mat.AddRHS(i2, ieq)
	}
}

// stampDiodeAC uses the operating-point conductance as a fixed
// small-signal admittance; no junction-capacitance term is modeled.
func (d *Device) stampDiodeAC(mat matrix.DeviceMatrix, ix Index, status *Status) {
	i1, i2 := ix.row(d.N1), ix.row(d.N2)
	nvt := d.Eta * d.Vt
	is := d.EffectiveIs(status.Temp)
	gd := (is/nvt)*math.Exp(d.VPrev/nvt) + d.Gmin
	stampConductanceAC(mat, i1, i2, gd, 0)
}

func stampVoltageIncidence(mat matrix.DeviceMatrix, i1, i2, k int) {
	if i1 != 0 {
		mat.AddElement(k, i1, 1)
		mat.AddElement(i1, k, 1)
	}
	if i2 != 0 {
		mat.AddElement(k, i2, -1)
		mat.AddElement(i2, k, -1)
	}
}

func stampVoltageIncidenceAC(mat matrix.DeviceMatrix, i1, i2, k int) {
	if i1 != 0 {
		mat.AddComplexElement(k, i1, 1, 0)
		mat.AddComplexElement(i1, k, 1, 0)
	}
	if i2 != 0 {
		mat.AddComplexElement(k, i2, -1, 0)
		mat.AddComplexElement(i2, k, -1, 0)
	}
}

func (d *Device) stampVoltageSourceTime(mat matrix.DeviceMatrix, ix Index, status *Status) {
	i1, i2 := ix.row(d.N1), ix.row(d.N2)
	k := ix.Branch[d.Name]
	stampVoltageIncidence(mat, i1, i2, k)
	mat.AddRHS(k, d.Waveform.At(status.Time))
}

func (d *Device) stampVoltageSourceACIncidence(mat matrix.DeviceMatrix, ix Index) {
	i1, i2 := ix.row(d.N1), ix.row(d.N2)
	k := ix.Branch[d.Name]
	stampVoltageIncidenceAC(mat, i1, i2, k)
}

func (d *Device) stampCurrentSourceTime(mat matrix.DeviceMatrix, ix Index, status *Status) {
	i1, i2 := ix.row(d.N1), ix.row(d.N2)
	s := d.Waveform.At(status.Time)
	if i1 != 0 {
		mat.AddRHS(i1, -s)
	}
	if i2 != 0 {
		mat.AddRHS(i2, s)
	}
}

func (d *Device) stampACVoltageSourceDC(mat matrix.DeviceMatrix, ix Index) {
	// In DC/transient this behaves exactly like a DC voltage source.
	i1, i2 := ix.row(d.N1), ix.row(d.N2)
	k := ix.Branch[d.Name]
	stampVoltageIncidence(mat, i1, i2, k)
	mat.AddRHS(k, d.Value)
}

func (d *Device) stampACVoltageSourceAC(mat matrix.DeviceMatrix, ix Index) {
	i1, i2 := ix.row(d.N1), ix.row(d.N2)
	k := ix.Branch[d.Name]
	stampVoltageIncidenceAC(mat, i1, i2, k)

	phaseRad := d.ACPhase * math.Pi / 180.0
	real := d.ACMag * math.Cos(phaseRad)
	imag := d.ACMag * math.Sin(phaseRad)
	mat.AddComplexRHS(k, real, imag)
}

// stampVCVS enforces V(n1)-V(n2) = gain*(V(c1)-V(c2)).
func (d *Device) stampVCVS(mat matrix.DeviceMatrix, ix Index) {
	i1, i2 := ix.row(d.N1), ix.row(d.N2)
	c1, c2 := ix.row(d.C1), ix.row(d.C2)
	k := ix.Branch[d.Name]

	stampVoltageIncidence(mat, i1, i2, k)

	if c1 != 0 {
		mat.AddElement(k, c1, -d.Value)
	}
	if c2 != 0 {
		mat.AddElement(k, c2, d.Value)
	}
}

// stampVCCS adds the off-diagonal transconductance g between the
// output pair and the controlling pair.
func (d *Device) stampVCCS(mat matrix.DeviceMatrix, ix Index) {
	n1, n2 := ix.row(d.N1), ix.row(d.N2)
	c1, c2 := ix.row(d.C1), ix.row(d.C2)
	g := d.Value

	if n1 != 0 {
		if c1 != 0 {
			mat.AddElement(n1, c1, g)
		}
		if c2 != 0 {
			mat.AddElement(n1, c2, -g)
		}
	}
	if n2 != 0 {
		if c1 != 0 {
			mat.AddElement(n2, c1, -g)
		}
		if c2 != 0 {
			mat.AddElement(n2, c2, g)
		}
	}
}

// stampCCVS enforces V(n1)-V(n2) = gain * I(ctrlDevice).
func (d *Device) stampCCVS(mat matrix.DeviceMatrix, ix Index) error {
	i1, i2 := ix.row(d.N1), ix.row(d.N2)
	k := ix.Branch[d.Name]

	ctrlCol, ok := ix.Branch[d.CtrlDevice]
	if !ok {
		return simerr.New(simerr.UnknownDevice, "CCVS "+d.Name+": controlling device "+d.CtrlDevice+" has no current unknown")
	}

	stampVoltageIncidence(mat, i1, i2, k)
	mat.AddElement(k, ctrlCol, -d.Value)
	return nil
}

// stampCCCS injects gain * I(ctrlDevice) into n1/n2.
func (d *Device) stampCCCS(mat matrix.DeviceMatrix, ix Index) error {
	n1, n2 := ix.row(d.N1), ix.row(d.N2)

	ctrlCol, ok := ix.Branch[d.CtrlDevice]
	if !ok {
		return simerr.New(simerr.UnknownDevice, "CCCS "+d.Name+": controlling device "+d.CtrlDevice+" has no current unknown")
	}

	if n1 != 0 {
		mat.AddElement(n1, ctrlCol, d.Value)
	}
	if n2 != 0 {
		mat.AddElement(n2, ctrlCol, -d.Value)
	}
	return nil
}
