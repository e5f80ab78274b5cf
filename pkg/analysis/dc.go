package analysis

import (
	"math"

	"mnacore/pkg/assembler"
	"mnacore/pkg/device"
	"mnacore/pkg/simerr"
	"mnacore/pkg/topology"
)

// DCSweep sweeps one or two named independent DC sources across a
// range, running an operating-point solve at each point. The
// two-source form is a strict generalization of the single-source
// sweep (len(sourceNames)==1 is the common case).
type DCSweep struct {
	Base
	sourceNames []string
	starts      []float64
	stops       []float64
	steps       []float64

	Result Result
}

func NewDCSweep(topo *topology.Topology, asm *assembler.Assembler, sourceNames []string, starts, stops, steps []float64) *DCSweep {
	return &DCSweep{
		Base:        newBase(topo, asm),
		sourceNames: sourceNames,
		starts:      starts,
		stops:       stops,
		steps:       steps,
	}
}

// sweepPoints generates values from start to stop in step increments,
// inclusive of both endpoints within float tolerance.
func sweepPoints(start, stop, step float64) []float64 {
	if step == 0 {
		return []float64{start}
	}
	n := int(math.Floor((stop-start)/step+1e-9)) + 1
	if n < 1 {
		n = 1
	}
	pts := make([]float64, n)
	for i := 0; i < n; i++ {
		pts[i] = start + float64(i)*step
	}
	return pts
}

func (dc *DCSweep) resolveSources() ([]*device.Device, []float64, error) {
	devs := make([]*device.Device, len(dc.sourceNames))
	orig := make([]float64, len(dc.sourceNames))

	for i, name := range dc.sourceNames {
		d, ok := dc.Topo.Device(name)
		if !ok {
			return nil, nil, simerr.New(simerr.UnknownDevice, "dc sweep: no such device: "+name)
		}
		if (d.Kind != device.VoltageSource && d.Kind != device.CurrentSource) || d.Waveform.Kind != device.DC {
			return nil, nil, simerr.New(simerr.UnknownSource, "dc sweep: cannot sweep non-DC source: "+name)
		}
		devs[i] = d
		orig[i] = d.Value
	}
	return devs, orig, nil
}

func setSourceValue(d *device.Device, val float64) {
	d.Value = val
	d.Waveform = device.Waveform{Kind: device.DC, DCOffset: val}
}

func (dc *DCSweep) Run() error {
	dc.Topo.Reset()

	devs, orig, err := dc.resolveSources()
	if err != nil {
		return err
	}
	defer func() {
		for i, d := range devs {
			setSourceValue(d, orig[i])
		}
	}()

	pointSets := make([][]float64, len(devs))
	for i := range devs {
		pointSets[i] = sweepPoints(dc.starts[i], dc.stops[i], dc.steps[i])
	}

	dc.Result = Result{}

	switch len(devs) {
	case 1:
		return dc.runSingle(devs[0], pointSets[0])
	case 2:
		return dc.runNested(devs[0], devs[1], pointSets[0], pointSets[1])
	default:
		return simerr.New(simerr.UnknownSource, "dc sweep supports at most two nested sources")
	}
}

func (dc *DCSweep) runSingle(src *device.Device, points []float64) error {
	for _, val := range points {
		setSourceValue(src, val)

		solution, err := dc.solveOperatingPoint(&device.Status{Mode: device.OperatingPoint, Temp: 300.15}, dc.Asm.Assemble)
		if err != nil {
			if kind, ok := simerr.Of(err); ok && kind == simerr.SingularMatrix {
				dc.Result.Omitted = append(dc.Result.Omitted, val)
				continue
			}
			// NonConvergence is non-fatal: the last iterate is still recorded.
		}

		updateAll(dc.Topo, solution, dc.Asm.Index())
		dc.Result.Keys = append(dc.Result.Keys, val)
		dc.Result.Solutions = append(dc.Result.Solutions, append([]float64(nil), solution...))
		dc.Result.Index = dc.Asm.Index()
	}
	return nil
}

func (dc *DCSweep) runNested(src1, src2 *device.Device, points1, points2 []float64) error {
	for _, v1 := range points1 {
		setSourceValue(src1, v1)
		for _, v2 := range points2 {
			setSourceValue(src2, v2)

			solution, err := dc.solveOperatingPoint(&device.Status{Mode: device.OperatingPoint, Temp: 300.15}, dc.Asm.Assemble)
			if err != nil {
				if kind, ok := simerr.Of(err); ok && kind == simerr.SingularMatrix {
					dc.Result.Omitted = append(dc.Result.Omitted, v1, v2)
					continue
				}
			}

			updateAll(dc.Topo, solution, dc.Asm.Index())
			// Nested sweeps key on the outer source's value; the inner
			// value is recoverable from point order since both sweeps
			// are regular grids.
			dc.Result.Keys = append(dc.Result.Keys, v1)
			dc.Result.Solutions = append(dc.Result.Solutions, append([]float64(nil), solution...))
			dc.Result.Index = dc.Asm.Index()
		}
	}
	return nil
}
