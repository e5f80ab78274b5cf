package device

import (
	"math"
	"testing"
)

// recorder is a minimal matrix.DeviceMatrix that just records every
// stamp call, for unit-testing a single device's stamp in isolation
// without needing a full matrix.System.
type recorder struct {
	elements map[[2]int]float64
	rhs      map[int]float64
}

func newRecorder() *recorder {
	return &recorder{elements: map[[2]int]float64{}, rhs: map[int]float64{}}
}

func (r *recorder) AddElement(i, j int, value float64) { r.elements[[2]int{i, j}] += value }
func (r *recorder) AddRHS(i int, value float64)        { r.rhs[i] += value }
func (r *recorder) AddComplexElement(i, j int, real, imag float64) {
	r.elements[[2]int{i, j}] += real
}
func (r *recorder) AddComplexRHS(i int, real, imag float64) { r.rhs[i] += real }

func TestStampResistorConductance(t *testing.T) {
	d := NewResistor("R1", 1, 2, 1000)
	rec := newRecorder()
	ix := Index{Node: map[int]int{1: 1, 2: 2}, Branch: map[string]int{}}

	if err := d.Stamp(rec, ix, &Status{Mode: OperatingPoint}); err != nil {
		t.Fatal(err)
	}

	g := 1.0 / 1000.0
	want := map[[2]int]float64{
		{1, 1}: g, {2, 2}: g, {1, 2}: -g, {2, 1}: -g,
	}
	for k, v := range want {
		if rec.elements[k] != v {
			t.Errorf("element%v = %g, want %g", k, rec.elements[k], v)
		}
	}
}

func TestStampResistorSkipsGroundTerminal(t *testing.T) {
	d := NewResistor("R1", 1, 2, 1000)
	rec := newRecorder()
	ix := Index{Node: map[int]int{1: 1, 2: 0}, Branch: map[string]int{}} // terminal 2 is ground

	if err := d.Stamp(rec, ix, &Status{Mode: OperatingPoint}); err != nil {
		t.Fatal(err)
	}
	if _, ok := rec.elements[[2]int{0, 0}]; ok {
		t.Error("must not stamp row/col 0 (ground)")
	}
	g := 1.0 / 1000.0
	if rec.elements[[2]int{1, 1}] != g {
		t.Errorf("diagonal at live terminal = %g, want %g", rec.elements[[2]int{1, 1}], g)
	}
}

func TestCapacitorOpenCircuitAtHZero(t *testing.T) {
	d := NewCapacitor("C1", 1, 2, 1e-6)
	rec := newRecorder()
	ix := Index{Node: map[int]int{1: 1, 2: 2}, Branch: map[string]int{}}

	if err := d.Stamp(rec, ix, &Status{Mode: Transient, TimeStep: 0}); err != nil {
		t.Fatal(err)
	}
	if len(rec.elements) != 0 || len(rec.rhs) != 0 {
		t.Errorf("expected no stamp at h=0, got elements=%v rhs=%v", rec.elements, rec.rhs)
	}
}

func TestCapacitorCompanionModel(t *testing.T) {
	d := NewCapacitor("C1", 1, 2, 1e-6)
	d.VPrev = 0.5
	rec := newRecorder()
	ix := Index{Node: map[int]int{1: 1, 2: 2}, Branch: map[string]int{}}

	h := 1e-5
	if err := d.Stamp(rec, ix, &Status{Mode: Transient, TimeStep: h}); err != nil {
		t.Fatal(err)
	}
	geq := d.Value / h
	ieq := geq * d.VPrev
	if rec.elements[[2]int{1, 1}] != geq {
		t.Errorf("g_eq at (1,1) = %g, want %g", rec.elements[[2]int{1, 1}], geq)
	}
	if rec.rhs[1] != ieq {
		t.Errorf("rhs[1] = %g, want %g", rec.rhs[1], ieq)
	}
	if rec.rhs[2] != -ieq {
		t.Errorf("rhs[2] = %g, want %g", rec.rhs[2], -ieq)
	}
}

func TestInductorShortAtHZero(t *testing.T) {
	d := NewInductor("L1", 1, 2, 1e-3)
	rec := newRecorder()
	ix := Index{Node: map[int]int{1: 1, 2: 2}, Branch: map[string]int{"L1": 3}}
	d.BranchIdx = 3

	if err := d.Stamp(rec, ix, &Status{Mode: Transient, TimeStep: 0}); err != nil {
		t.Fatal(err)
	}
	if _, ok := rec.elements[[2]int{3, 3}]; ok {
		t.Error("expected no diagonal term at h=0 (short circuit)")
	}
	if rec.elements[[2]int{1, 3}] != 1 || rec.elements[[2]int{3, 1}] != 1 {
		t.Error("expected +1 incidence at terminal 1")
	}
}

func TestDiodeLinearization(t *testing.T) {
	d := NewDiode("D1", 1, 2)
	d.VPrev = 0.6
	rec := newRecorder()
	ix := Index{Node: map[int]int{1: 1, 2: 2}, Branch: map[string]int{}}

	if err := d.Stamp(rec, ix, &Status{Mode: OperatingPoint, Temp: 300.15}); err != nil {
		t.Fatal(err)
	}

	nvt := d.Eta * d.Vt
	evd := math.Exp(d.VPrev / nvt)
	gd := (d.Is/nvt)*evd + d.Gmin
	if math.Abs(rec.elements[[2]int{1, 1}]-gd) > 1e-15 {
		t.Errorf("G_d = %g, want %g", rec.elements[[2]int{1, 1}], gd)
	}
}

func TestEffectiveIsIdentityAtRefTemp(t *testing.T) {
	d := NewDiode("D1", 1, 2)
	d.Xti = 3.0
	d.Eg = 1.11
	if got := d.EffectiveIs(300.15); got != d.Is {
		t.Errorf("EffectiveIs at reference temperature = %g, want exactly Is=%g", got, d.Is)
	}
}

func TestVCVSIncidenceAndGain(t *testing.T) {
	d := NewVCVS("E1", 1, 2, 3, 4, 5.0)
	rec := newRecorder()
	ix := Index{Node: map[int]int{1: 1, 2: 2, 3: 3, 4: 4}, Branch: map[string]int{"E1": 5}}

	if err := d.Stamp(rec, ix, &Status{Mode: OperatingPoint}); err != nil {
		t.Fatal(err)
	}
	if rec.elements[[2]int{5, 3}] != -5.0 {
		t.Errorf("gain term at ctrl+ = %g, want -5", rec.elements[[2]int{5, 3}])
	}
	if rec.elements[[2]int{5, 4}] != 5.0 {
		t.Errorf("gain term at ctrl- = %g, want 5", rec.elements[[2]int{5, 4}])
	}
}

func TestWaveformDC(t *testing.T) {
	w := Waveform{Kind: DC, DCOffset: 3.3}
	if w.At(0) != 3.3 || w.At(100) != 3.3 {
		t.Error("DC waveform must be constant")
	}
}

func TestWaveformSin(t *testing.T) {
	w := Waveform{Kind: SIN, DCOffset: 1, Amplitude: 2, Freq: 1000}
	if math.Abs(w.At(0)-1) > 1e-12 {
		t.Errorf("SIN at t=0 = %g, want 1 (offset, sin(0)=0)", w.At(0))
	}
}

func TestWaveformPWLInterpolatesAndClamps(t *testing.T) {
	w := Waveform{Kind: PWL, Times: []float64{0, 1, 2}, Values: []float64{0, 10, 10}}
	if got := w.At(0.5); math.Abs(got-5) > 1e-12 {
		t.Errorf("PWL midpoint = %g, want 5", got)
	}
	if got := w.At(-1); got != 0 {
		t.Errorf("PWL before first point = %g, want clamp to first value 0", got)
	}
	if got := w.At(5); got != 10 {
		t.Errorf("PWL after last point = %g, want clamp to last value 10", got)
	}
}

func TestResetZeroesHistory(t *testing.T) {
	d := NewCapacitor("C1", 1, 2, 1e-6)
	d.VPrev = 1.23
	d.Reset()
	if d.VPrev != 0 {
		t.Errorf("VPrev after Reset = %g, want 0", d.VPrev)
	}

	dd := NewDiode("D1", 1, 2)
	dd.VPrev = 0.1
	dd.Reset()
	if dd.VPrev != 0.7 {
		t.Errorf("diode VPrev after Reset = %g, want 0.7 initial guess", dd.VPrev)
	}
}
