// Package query resolves the host-facing V(<node>)/I(<device>) result
// variable grammar against a recorded analysis Result.
package query

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"mnacore/pkg/analysis"
	"mnacore/pkg/device"
	"mnacore/pkg/simerr"
	"mnacore/pkg/topology"
)

type varKind int

const (
	voltage varKind = iota
	current
)

func parseVar(v string) (varKind, string, error) {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "V(") && strings.HasSuffix(v, ")") {
		return voltage, v[2 : len(v)-1], nil
	}
	if strings.HasPrefix(v, "I(") && strings.HasSuffix(v, ")") {
		return current, v[2 : len(v)-1], nil
	}
	return 0, "", simerr.New(simerr.InvalidValue, "unrecognized query variable: "+v)
}

// Mode tells the resolver whether the recorded sweep points are a
// time axis (enabling the capacitor backward-difference current) or
// not (DC sweep, where capacitor current is defined to be zero).
type Mode int

const (
	DC Mode = iota
	TransientMode
)

func nodeVoltage(topo *topology.Topology, result *analysis.Result, point int, nodeName string) (float64, error) {
	if nodeName == "0" || nodeName == "gnd" {
		return 0, nil
	}
	id, ok := topo.LookupNode(nodeName)
	if !ok {
		return 0, simerr.New(simerr.UnknownNode, "unknown node: "+nodeName)
	}
	if topo.IsGround(id) {
		return 0, nil
	}
	row := result.Index.Node[id]
	if row == 0 {
		return 0, nil
	}
	return result.Solutions[point][row], nil
}

// Resolve evaluates varName at every recorded point of a real-valued
// (DC or transient) result. The second return is false when the
// combination is unsupported, per §6's "warning and skip" policy.
func Resolve(varName string, topo *topology.Topology, result *analysis.Result, mode Mode) ([]float64, bool, error) {
	kind, name, err := parseVar(varName)
	if err != nil {
		return nil, false, err
	}

	n := len(result.Solutions)
	out := make([]float64, n)

	switch kind {
	case voltage:
		for i := 0; i < n; i++ {
			v, err := nodeVoltage(topo, result, i, name)
			if err != nil {
				return nil, false, err
			}
			out[i] = v
		}
		return out, true, nil

	case current:
		d, ok := topo.Device(name)
		if !ok {
			return nil, false, simerr.New(simerr.UnknownDevice, "unknown device: "+name)
		}

		if d.NeedsCurrentUnknown() {
			row := result.Index.Branch[name]
			for i := 0; i < n; i++ {
				out[i] = result.Solutions[i][row]
			}
			return out, true, nil
		}

		switch d.Kind {
		case device.Resistor:
			for i := 0; i < n; i++ {
				v1, err := nodeVoltage(topo, result, i, nodeNameOf(topo, d.N1))
				if err != nil {
					return nil, false, err
				}
				v2, err := nodeVoltage(topo, result, i, nodeNameOf(topo, d.N2))
				if err != nil {
					return nil, false, err
				}
				out[i] = (v1 - v2) / d.Value
			}
			return out, true, nil

		case device.Capacitor:
			if mode != TransientMode {
				return out, true, nil // capacitor current is defined to be zero in DC mode
			}
			for i := 0; i < n; i++ {
				if i == 0 {
					out[i] = 0
					continue
				}
				vNow, err := nodeVoltage(topo, result, i, nodeNameOf(topo, d.N1))
				if err != nil {
					return nil, false, err
				}
				vNow2, err := nodeVoltage(topo, result, i, nodeNameOf(topo, d.N2))
				if err != nil {
					return nil, false, err
				}
				vPrev, err := nodeVoltage(topo, result, i-1, nodeNameOf(topo, d.N1))
				if err != nil {
					return nil, false, err
				}
				vPrev2, err := nodeVoltage(topo, result, i-1, nodeNameOf(topo, d.N2))
				if err != nil {
					return nil, false, err
				}
				h := result.Keys[i] - result.Keys[i-1]
				if h <= 0 {
					out[i] = 0
					continue
				}
				out[i] = d.Value * ((vNow - vNow2) - (vPrev - vPrev2)) / h
			}
			return out, true, nil

		default:
			return nil, false, nil // unsupported combination: warn and skip
		}
	}

	return nil, false, fmt.Errorf("unreachable")
}

// ResolveAC evaluates varName against a complex-valued AC Result,
// returning magnitude and phase (degrees) at each frequency point.
func ResolveAC(varName string, topo *topology.Topology, result *analysis.Result) (magnitude, phaseDeg []float64, err error) {
	kind, name, err := parseVar(varName)
	if err != nil {
		return nil, nil, err
	}

	n := len(result.Complex)
	mag := make([]float64, n)
	phase := make([]float64, n)

	value := func(point int, id int) complex128 {
		row := result.Index.Node[id]
		if row == 0 {
			return 0
		}
		return result.Complex[point][row]
	}

	switch kind {
	case voltage:
		if name == "0" || name == "gnd" {
			return mag, phase, nil
		}
		id, ok := topo.LookupNode(name)
		if !ok {
			return nil, nil, simerr.New(simerr.UnknownNode, "unknown node: "+name)
		}
		for i := 0; i < n; i++ {
			c := value(i, id)
			mag[i], phase[i] = complexMagPhase(c)
		}
		return mag, phase, nil

	case current:
		d, ok := topo.Device(name)
		if !ok {
			return nil, nil, simerr.New(simerr.UnknownDevice, "unknown device: "+name)
		}
		if !d.NeedsCurrentUnknown() {
			return nil, nil, simerr.New(simerr.UnknownDevice, "device carries no current unknown: "+name)
		}
		row := result.Index.Branch[name]
		for i := 0; i < n; i++ {
			c := result.Complex[i][row]
			mag[i], phase[i] = complexMagPhase(c)
		}
		return mag, phase, nil
	}

	return nil, nil, fmt.Errorf("unreachable")
}

// complexMagPhase splits a complex phasor into magnitude and phase in
// degrees.
func complexMagPhase(c complex128) (float64, float64) {
	return cmplx.Abs(c), cmplx.Phase(c) * 180.0 / math.Pi
}

func nodeNameOf(topo *topology.Topology, id int) string {
	if id == 0 {
		return "0"
	}
	name, ok := topo.NodeName(id)
	if !ok {
		return "0"
	}
	return name
}
