package analysis_test

import (
	"math"
	"testing"

	"mnacore/pkg/analysis"
	"mnacore/pkg/assembler"
	"mnacore/pkg/device"
	"mnacore/pkg/query"
	"mnacore/pkg/topology"
)

func near(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %g, want %g (tol %g)", label, got, want, tol)
	}
}

// TestResistiveDivider exercises the resistive-divider operating-point
// scenario: a 10V source across two equal 1k resistors should split
// evenly at the midpoint.
func TestResistiveDivider(t *testing.T) {
	topo := topology.New()
	topo.AddGround("0")
	vin := topo.GetOrCreateNode("vin")
	mid := topo.GetOrCreateNode("mid")
	gnd, _ := topo.LookupNode("0")

	if err := topo.AddDevice(device.NewVoltageSource("V1", vin, gnd, device.Waveform{Kind: device.DC, DCOffset: 10})); err != nil {
		t.Fatal(err)
	}
	if err := topo.AddDevice(device.NewResistor("R1", vin, mid, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := topo.AddDevice(device.NewResistor("R2", mid, gnd, 1000)); err != nil {
		t.Fatal(err)
	}

	asm := assembler.New(topo, false)
	op := analysis.NewOperatingPoint(topo, asm)
	if err := op.Run(); err != nil {
		t.Fatal(err)
	}

	vals, ok, err := query.Resolve("V(mid)", topo, &op.Result, query.DC)
	if err != nil || !ok {
		t.Fatalf("resolve V(mid): ok=%v err=%v", ok, err)
	}
	near(t, "V(mid)", vals[0], 5.0, 1e-9)
}

// TestRCChargeTransient exercises transient charging of a capacitor
// through a resistor from a step voltage source, checking the
// analytic RC exponential at one time constant.
func TestRCChargeTransient(t *testing.T) {
	topo := topology.New()
	topo.AddGround("0")
	vin := topo.GetOrCreateNode("vin")
	cap := topo.GetOrCreateNode("cap")
	gnd, _ := topo.LookupNode("0")

	r, c := 1000.0, 1e-6
	tau := r * c

	if err := topo.AddDevice(device.NewVoltageSource("V1", vin, gnd, device.Waveform{Kind: device.DC, DCOffset: 1})); err != nil {
		t.Fatal(err)
	}
	if err := topo.AddDevice(device.NewResistor("R1", vin, cap, r)); err != nil {
		t.Fatal(err)
	}
	if err := topo.AddDevice(device.NewCapacitor("C1", cap, gnd, c)); err != nil {
		t.Fatal(err)
	}

	asm := assembler.New(topo, false)
	tr := analysis.NewTransient(topo, asm, 0, 5*tau, tau/200)
	if err := tr.Run(); err != nil {
		t.Fatal(err)
	}

	vals, ok, err := query.Resolve("V(cap)", topo, &tr.Result, query.TransientMode)
	if err != nil || !ok {
		t.Fatalf("resolve V(cap): ok=%v err=%v", ok, err)
	}

	// Find the point closest to t=tau and compare against the analytic
	// charge curve 1-e^-1 ~= 0.632, allowing loose tolerance for the
	// fixed-step Backward Euler discretization error.
	best := 0
	for i, key := range tr.Result.Keys {
		if math.Abs(key-tau) < math.Abs(tr.Result.Keys[best]-tau) {
			best = i
		}
	}
	want := 1 - math.Exp(-1)
	near(t, "V(cap) at t=tau", vals[best], want, 0.02)
}

// TestDiodeClampDCSweep sweeps an input voltage through a resistor
// into a diode to ground, checking that the diode clamps the junction
// voltage to roughly its forward-conduction knee once forward biased.
func TestDiodeClampDCSweep(t *testing.T) {
	topo := topology.New()
	topo.AddGround("0")
	vin := topo.GetOrCreateNode("vin")
	anode := topo.GetOrCreateNode("anode")
	gnd, _ := topo.LookupNode("0")

	if err := topo.AddDevice(device.NewVoltageSource("V1", vin, gnd, device.Waveform{Kind: device.DC, DCOffset: 0})); err != nil {
		t.Fatal(err)
	}
	if err := topo.AddDevice(device.NewResistor("R1", vin, anode, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := topo.AddDevice(device.NewDiode("D1", anode, gnd)); err != nil {
		t.Fatal(err)
	}

	asm := assembler.New(topo, false)
	dc := analysis.NewDCSweep(topo, asm, []string{"V1"}, []float64{0}, []float64{5}, []float64{0.5})
	if err := dc.Run(); err != nil {
		t.Fatal(err)
	}

	vals, ok, err := query.Resolve("V(anode)", topo, &dc.Result, query.DC)
	if err != nil || !ok {
		t.Fatalf("resolve V(anode): ok=%v err=%v", ok, err)
	}

	last := vals[len(vals)-1]
	if last < 0.5 || last > 0.9 {
		t.Errorf("diode-clamped V(anode) at Vin=5 = %g, want in [0.5, 0.9]", last)
	}
	// Monotonic nondecreasing across the sweep: a forward diode never
	// lets the anode voltage drop as the input rises.
	for i := 1; i < len(vals); i++ {
		if vals[i] < vals[i-1]-1e-9 {
			t.Errorf("V(anode) not monotonic at sweep point %d: %g -> %g", i, vals[i-1], vals[i])
		}
	}
}

// TestRLStepTransient checks the inductor current's exponential rise
// through a series resistor when a DC step is applied.
func TestRLStepTransient(t *testing.T) {
	topo := topology.New()
	topo.AddGround("0")
	vin := topo.GetOrCreateNode("vin")
	mid := topo.GetOrCreateNode("mid")
	gnd, _ := topo.LookupNode("0")

	r, l := 10.0, 1e-3
	tau := l / r

	if err := topo.AddDevice(device.NewVoltageSource("V1", vin, gnd, device.Waveform{Kind: device.DC, DCOffset: 1})); err != nil {
		t.Fatal(err)
	}
	if err := topo.AddDevice(device.NewResistor("R1", vin, mid, r)); err != nil {
		t.Fatal(err)
	}
	if err := topo.AddDevice(device.NewInductor("L1", mid, gnd, l)); err != nil {
		t.Fatal(err)
	}

	asm := assembler.New(topo, false)
	tr := analysis.NewTransient(topo, asm, 0, 5*tau, tau/200)
	if err := tr.Run(); err != nil {
		t.Fatal(err)
	}

	vals, ok, err := query.Resolve("I(L1)", topo, &tr.Result, query.TransientMode)
	if err != nil || !ok {
		t.Fatalf("resolve I(L1): ok=%v err=%v", ok, err)
	}

	finalExpected := 1.0 / r // steady-state current = V/R
	near(t, "I(L1) steady state", vals[len(vals)-1], finalExpected, finalExpected*0.05)
}

// TestACLowpassSweep checks that an RC lowpass's magnitude response
// falls to roughly -3dB (1/sqrt(2)) at its corner frequency omega=1/RC.
func TestACLowpassSweep(t *testing.T) {
	topo := topology.New()
	topo.AddGround("0")
	vin := topo.GetOrCreateNode("vin")
	vout := topo.GetOrCreateNode("vout")
	gnd, _ := topo.LookupNode("0")

	r, c := 1000.0, 1e-6
	omegaCorner := 1.0 / (r * c)

	if err := topo.AddDevice(device.NewACVoltageSource("V1", vin, gnd, 0, 1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := topo.AddDevice(device.NewResistor("R1", vin, vout, r)); err != nil {
		t.Fatal(err)
	}
	if err := topo.AddDevice(device.NewCapacitor("C1", vout, gnd, c)); err != nil {
		t.Fatal(err)
	}

	asm := assembler.New(topo, true)
	ac := analysis.NewACSweep(topo, asm, omegaCorner, omegaCorner, 1)
	if err := ac.Run(); err != nil {
		t.Fatal(err)
	}

	mag, _, err := query.ResolveAC("V(vout)", topo, &ac.Result)
	if err != nil {
		t.Fatal(err)
	}
	near(t, "lowpass magnitude at corner", mag[0], 1/math.Sqrt2, 0.01)
}

// TestVCVSGain checks that an ideal VCVS reproduces its configured
// gain between the controlling and output node pairs at DC.
func TestVCVSGain(t *testing.T) {
	topo := topology.New()
	topo.AddGround("0")
	vin := topo.GetOrCreateNode("vin")
	vout := topo.GetOrCreateNode("vout")
	gnd, _ := topo.LookupNode("0")

	gain := 5.0
	if err := topo.AddDevice(device.NewVoltageSource("V1", vin, gnd, device.Waveform{Kind: device.DC, DCOffset: 2})); err != nil {
		t.Fatal(err)
	}
	if err := topo.AddDevice(device.NewResistor("Rload", vout, gnd, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := topo.AddDevice(device.NewVCVS("E1", vout, gnd, vin, gnd, gain)); err != nil {
		t.Fatal(err)
	}

	asm := assembler.New(topo, false)
	op := analysis.NewOperatingPoint(topo, asm)
	if err := op.Run(); err != nil {
		t.Fatal(err)
	}

	vals, ok, err := query.Resolve("V(vout)", topo, &op.Result, query.DC)
	if err != nil || !ok {
		t.Fatalf("resolve V(vout): ok=%v err=%v", ok, err)
	}
	near(t, "V(vout)", vals[0], gain*2, 1e-9)
}

// TestOperatingPointIsRepeatable checks bit-for-bit repeatability:
// running the same operating point twice on the same topology must
// yield identical results, since Reset zeroes device history at the
// start of every run.
func TestOperatingPointIsRepeatable(t *testing.T) {
	topo := topology.New()
	topo.AddGround("0")
	vin := topo.GetOrCreateNode("vin")
	gnd, _ := topo.LookupNode("0")
	if err := topo.AddDevice(device.NewVoltageSource("V1", vin, gnd, device.Waveform{Kind: device.DC, DCOffset: 3.3})); err != nil {
		t.Fatal(err)
	}
	if err := topo.AddDevice(device.NewResistor("R1", vin, gnd, 470)); err != nil {
		t.Fatal(err)
	}

	asm := assembler.New(topo, false)
	op := analysis.NewOperatingPoint(topo, asm)

	if err := op.Run(); err != nil {
		t.Fatal(err)
	}
	first := append([]float64(nil), op.Result.Solutions[0]...)

	if err := op.Run(); err != nil {
		t.Fatal(err)
	}
	second := op.Result.Solutions[0]

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("repeated operating-point run diverged at index %d: %g != %g", i, first[i], second[i])
		}
	}
}
