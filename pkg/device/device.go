// Package device implements the closed family of eleven circuit
// element variants as a single tagged struct, each carrying its own
// parameters, waveform, and history state, and dispatching its
// stamping contract by Kind rather than by interface satisfaction.
package device

import (
	"math"

	"mnacore/internal/consts"
)

type Kind int

const (
	Resistor Kind = iota
	Capacitor
	Inductor
	Diode
	VoltageSource
	CurrentSource
	ACVoltageSource
	VCVS // E: voltage-controlled voltage source
	VCCS // G: voltage-controlled current source
	CCVS // H: current-controlled voltage source
	CCCS // F: current-controlled current source
)

func (k Kind) String() string {
	switch k {
	case Resistor:
		return "R"
	case Capacitor:
		return "C"
	case Inductor:
		return "L"
	case Diode:
		return "D"
	case VoltageSource:
		return "V"
	case CurrentSource:
		return "I"
	case ACVoltageSource:
		return "V(AC)"
	case VCVS:
		return "E"
	case VCCS:
		return "G"
	case CCVS:
		return "H"
	case CCCS:
		return "F"
	default:
		return "?"
	}
}

// AnalysisMode selects which stamping formula a device applies.
type AnalysisMode int

const (
	OperatingPoint AnalysisMode = iota
	Transient
	AC
)

// Status carries the sweep-point context every stamp call needs:
// the time/step for transient, the frequency for AC, and the ambient
// temperature. Gmin is not read by any stamp; the operating-point
// homotopy applies its gmin through matrix.System.LoadGmin.
type Status struct {
	Time     float64
	TimeStep float64
	Gmin     float64
	Mode     AnalysisMode
	Temp     float64
	Omega    float64
}

// Device is the tagged variant covering every element the topology
// manager can hold. Fields irrelevant to a given Kind stay zero.
type Device struct {
	Kind Kind
	Name string

	N1, N2 int // primary terminal node ids
	C1, C2 int // controlling terminal node ids (VCVS, VCCS)

	CtrlDevice string // name of the controlling current-unknown device (CCVS, CCCS)

	Value float64 // R, C, L magnitude; DC value; VCVS/VCCS/CCVS/CCCS gain

	Waveform Waveform // V/I source time-domain drive
	ACMag    float64  // AC small-signal magnitude
	ACPhase  float64  // AC small-signal phase, degrees

	// Diode model parameters, defaulting to the classic ideal-diode set.
	Eta  float64
	Vt   float64
	Is   float64
	Gmin float64

	// Fuller diode model parameters from .model D(...) overrides, kept
	// for netlist parity but not contributing to the MNA stamp: junction
	// capacitance, breakdown, and transit time model a device class
	// beyond this core's ideal-exponential scope. Eg/Xti do feed the
	// temperature-adjusted saturation current below.
	Rs, Cj0, M, Vj, Bv, Eg, Xti, Tt, Fc float64

	// History, mutated only by UpdateState.
	VPrev float64
	IPrev float64

	// BranchIdx is the column/row this device occupies in the
	// augmented MNA space, if NeedsCurrentUnknown is true. Assigned
	// by the assembler each assembly, not persisted across them.
	BranchIdx int
}

const (
	defaultEta  = 1.0
	defaultVt   = 0.026
	defaultIs   = 1e-12
	defaultGmin = 1e-12
)

func NewResistor(name string, n1, n2 int, ohms float64) *Device {
	return &Device{Kind: Resistor, Name: name, N1: n1, N2: n2, Value: ohms}
}

func NewCapacitor(name string, n1, n2 int, farads float64) *Device {
	return &Device{Kind: Capacitor, Name: name, N1: n1, N2: n2, Value: farads}
}

func NewInductor(name string, n1, n2 int, henries float64) *Device {
	return &Device{Kind: Inductor, Name: name, N1: n1, N2: n2, Value: henries}
}

func NewDiode(name string, n1, n2 int) *Device {
	return &Device{
		Kind: Diode, Name: name, N1: n1, N2: n2,
		Eta: defaultEta, Vt: defaultVt, Is: defaultIs, Gmin: defaultGmin,
		Rs: 0, Cj0: 0, M: 0.5, Vj: 1.0, Bv: 100.0, Eg: 1.11, Xti: 3.0, Tt: 0, Fc: 0.5,
		VPrev: 0.7,
	}
}

// SetModelParams applies a .model D(...) override set on top of the
// constructor defaults, leaving any parameter absent from params untouched.
func (d *Device) SetModelParams(params map[string]float64) {
	apply := func(key string, dst *float64) {
		if v, ok := params[key]; ok {
			*dst = v
		}
	}
	apply("is", &d.Is)
	apply("n", &d.Eta)
	apply("rs", &d.Rs)
	apply("cj0", &d.Cj0)
	apply("m", &d.M)
	apply("vj", &d.Vj)
	apply("bv", &d.Bv)
	apply("eg", &d.Eg)
	apply("xti", &d.Xti)
	apply("tt", &d.Tt)
	apply("fc", &d.Fc)
}

const refTemp = consts.KELVIN + 27.0 // the nominal temperature .model parameters are specified at

// ThermalVoltage returns kT/q at tempKelvin using internal/consts'
// physical constants rather than a fixed 0.026 literal; EffectiveIs
// uses it only as a temperature-scaling factor that is exactly 1 at
// refTemp, so every analysis running at the default ambient
// temperature (300.15 K, see Status.Temp) sees EffectiveIs(d.Is,
// refTemp) == d.Is and the default diode stamp is unaffected.
func ThermalVoltage(tempKelvin float64) float64 {
	if tempKelvin <= 0 {
		tempKelvin = refTemp
	}
	return consts.BOLTZMANN * tempKelvin / consts.CHARGE
}

// EffectiveIs scales the diode's saturation current to tempKelvin per
// the standard SPICE law is(T) = is(Tref)*(T/Tref)^(Xti/Eta)*exp(-(Eg/2Vt)*(T/Tref-1)).
func (d *Device) EffectiveIs(tempKelvin float64) float64 {
	if tempKelvin == refTemp || tempKelvin <= 0 {
		return d.Is
	}
	vt := ThermalVoltage(tempKelvin)
	ratio := tempKelvin / refTemp
	egFactor := -d.Eg / (2 * vt) * (ratio - 1.0)
	return d.Is * math.Pow(ratio, d.Xti/d.Eta) * math.Exp(egFactor)
}

func NewVoltageSource(name string, n1, n2 int, wf Waveform) *Device {
	return &Device{Kind: VoltageSource, Name: name, N1: n1, N2: n2, Waveform: wf, Value: wf.DCValue()}
}

func NewCurrentSource(name string, n1, n2 int, wf Waveform) *Device {
	return &Device{Kind: CurrentSource, Name: name, N1: n1, N2: n2, Waveform: wf, Value: wf.DCValue()}
}

func NewACVoltageSource(name string, n1, n2 int, dcValue, acMag, acPhase float64) *Device {
	return &Device{
		Kind: ACVoltageSource, Name: name, N1: n1, N2: n2,
		Waveform: Waveform{Kind: DC, DCOffset: dcValue},
		Value:    dcValue, ACMag: acMag, ACPhase: acPhase,
	}
}

func NewVCVS(name string, n1, n2, c1, c2 int, gain float64) *Device {
	return &Device{Kind: VCVS, Name: name, N1: n1, N2: n2, C1: c1, C2: c2, Value: gain}
}

func NewVCCS(name string, n1, n2, c1, c2 int, gain float64) *Device {
	return &Device{Kind: VCCS, Name: name, N1: n1, N2: n2, C1: c1, C2: c2, Value: gain}
}

func NewCCVS(name string, n1, n2 int, ctrlDevice string, gain float64) *Device {
	return &Device{Kind: CCVS, Name: name, N1: n1, N2: n2, CtrlDevice: ctrlDevice, Value: gain}
}

func NewCCCS(name string, n1, n2 int, ctrlDevice string, gain float64) *Device {
	return &Device{Kind: CCCS, Name: name, N1: n1, N2: n2, CtrlDevice: ctrlDevice, Value: gain}
}

// Nodes returns every terminal node id this device references,
// including the controlling pair for VCVS/VCCS.
func (d *Device) Nodes() []int {
	switch d.Kind {
	case VCVS, VCCS:
		return []int{d.N1, d.N2, d.C1, d.C2}
	default:
		return []int{d.N1, d.N2}
	}
}

// RewriteNode replaces every occurrence of from with to across this
// device's terminals, used by connect_nodes.
func (d *Device) RewriteNode(from, to int) {
	if d.N1 == from {
		d.N1 = to
	}
	if d.N2 == from {
		d.N2 = to
	}
	if d.C1 == from {
		d.C1 = to
	}
	if d.C2 == from {
		d.C2 = to
	}
}

// NeedsCurrentUnknown is true for devices that cannot be expressed as
// a pure admittance and therefore occupy an extra row/column in the
// augmented MNA space.
func (d *Device) NeedsCurrentUnknown() bool {
	switch d.Kind {
	case VoltageSource, ACVoltageSource, Inductor, VCVS, CCVS:
		return true
	default:
		return false
	}
}

// IsNonlinear is true only for the diode.
func (d *Device) IsNonlinear() bool {
	return d.Kind == Diode
}

// Reset zeroes history state, called at the start of every analysis.
func (d *Device) Reset() {
	d.VPrev = 0
	d.IPrev = 0
	if d.Kind == Diode {
		d.VPrev = 0.7
	}
}
