// Package netlist parses the free-form, whitespace-separated netlist
// line grammar into a Netlist description, and builds that description
// against a topology.Topology: line-continuation folding, comment
// stripping, a switch over dot directives, and a closed eleven-variant
// device grammar (no BJT/MOSFET/mutual-inductor lines).
package netlist

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"mnacore/pkg/device"
	"mnacore/pkg/simerr"
	"mnacore/pkg/topology"
	"mnacore/pkg/values"
)

type AnalysisKind int

const (
	AnalysisOP AnalysisKind = iota
	AnalysisTRAN
	AnalysisAC
	AnalysisDC
)

// ModelParams holds a named .model directive's parameter overrides,
// keyed by lowercase parameter name (e.g. "is", "n", "xti").
type ModelParams struct {
	Type   string
	Params map[string]float64
}

// Element is one parsed netlist device line, held as raw tokens so
// Build can resolve node names against a topology.Topology and
// validate model references after the whole file is read.
type Element struct {
	Type   string
	Name   string
	Nodes  []string
	Value  float64
	Params map[string]string
}

type tranParams struct {
	TStop, TStart, MaxStep float64
}

type acParams struct {
	OmegaStart, OmegaStop float64
	NumPoints             int
}

type dcParams struct {
	Source1               string
	Start1, Stop1, Step1  float64
	Source2               string
	Start2, Stop2, Step2  float64
}

// Netlist is the fully parsed, not-yet-built netlist file: elements in
// source order, named models, and the single requested analysis.
type Netlist struct {
	Title    string
	Elements []Element
	Models   map[string]ModelParams
	Analysis AnalysisKind

	Tran tranParams
	AC   acParams
	DC   dcParams
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Parse reads a netlist file's contents: the first line is a
// title/comment, "*"/";" lines and trailing "*" comments are
// stripped, and "+" continues the previous line.
func Parse(input string) (*Netlist, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	nl := &Netlist{Models: make(map[string]ModelParams)}

	if scanner.Scan() {
		nl.Title = strings.TrimSpace(strings.TrimLeft(scanner.Text(), "*;"))
	}

	var pending string
	flush := func() error {
		if pending == "" {
			return nil
		}
		err := parseLine(nl, pending)
		pending = ""
		return err
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if strings.HasPrefix(line, "*") || strings.HasPrefix(line, ";") {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if idx := strings.IndexAny(line, "*;"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
			if line == "" {
				continue
			}
		}
		if strings.HasPrefix(line, "+") {
			pending += " " + strings.TrimSpace(line[1:])
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		pending = line
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return nl, nil
}

func parseLine(nl *Netlist, line string) error {
	line = whitespaceRe.ReplaceAllString(line, " ")
	if strings.HasPrefix(line, ".") {
		return parseDirective(nl, line)
	}
	elem, err := parseElement(line)
	if err != nil {
		return err
	}
	nl.Elements = append(nl.Elements, *elem)
	return nil
}

func parseDirective(nl *Netlist, line string) error {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case ".model":
		return parseModel(nl, fields[1:])
	case ".op":
		nl.Analysis = AnalysisOP
	case ".tran":
		return parseTran(nl, fields[1:])
	case ".ac":
		return parseAC(nl, fields[1:])
	case ".dc":
		return parseDC(nl, fields[1:])
	default:
		return simerr.New(simerr.InvalidValue, "unsupported directive: "+fields[0])
	}
	return nil
}

// parseTran reads ".tran tstop [tstart] [maxstep]", matching the
// run_transient(t_stop, t_start, max_step) parameter order.
func parseTran(nl *Netlist, fields []string) error {
	nl.Analysis = AnalysisTRAN
	if len(fields) < 1 {
		return simerr.New(simerr.InvalidValue, ".tran requires at least tstop")
	}
	var err error
	if nl.Tran.TStop, err = values.Parse(fields[0]); err != nil {
		return err
	}
	if len(fields) > 1 {
		if nl.Tran.TStart, err = values.Parse(fields[1]); err != nil {
			return err
		}
	}
	if len(fields) > 2 {
		if nl.Tran.MaxStep, err = values.Parse(fields[2]); err != nil {
			return err
		}
	}
	return nil
}

// parseAC reads ".ac omega_start omega_stop n_points", a linear sweep
// (no DEC/OCT step shapes).
func parseAC(nl *Netlist, fields []string) error {
	nl.Analysis = AnalysisAC
	if len(fields) < 3 {
		return simerr.New(simerr.InvalidValue, ".ac requires omega_start omega_stop n_points")
	}
	var err error
	if nl.AC.OmegaStart, err = values.Parse(fields[0]); err != nil {
		return err
	}
	if nl.AC.OmegaStop, err = values.Parse(fields[1]); err != nil {
		return err
	}
	n, err := strconv.Atoi(fields[2])
	if err != nil {
		return simerr.Wrap(simerr.InvalidValue, "invalid n_points", err)
	}
	nl.AC.NumPoints = n
	return nil
}

// parseDC reads ".dc src1 start1 stop1 step1 [src2 start2 stop2 step2]".
func parseDC(nl *Netlist, fields []string) error {
	nl.Analysis = AnalysisDC
	if len(fields) < 4 {
		return simerr.New(simerr.InvalidValue, ".dc requires source start stop step")
	}
	var err error
	nl.DC.Source1 = fields[0]
	if nl.DC.Start1, err = values.Parse(fields[1]); err != nil {
		return err
	}
	if nl.DC.Stop1, err = values.Parse(fields[2]); err != nil {
		return err
	}
	if nl.DC.Step1, err = values.Parse(fields[3]); err != nil {
		return err
	}
	if len(fields) >= 8 {
		nl.DC.Source2 = fields[4]
		if nl.DC.Start2, err = values.Parse(fields[5]); err != nil {
			return err
		}
		if nl.DC.Stop2, err = values.Parse(fields[6]); err != nil {
			return err
		}
		if nl.DC.Step2, err = values.Parse(fields[7]); err != nil {
			return err
		}
	}
	return nil
}

var defaultDiodeParams = map[string]float64{
	"is": 1e-12, "n": 1.0, "rs": 0, "cj0": 0, "m": 0.5,
	"vj": 1.0, "bv": 100.0, "eg": 1.11, "xti": 3.0, "tt": 0, "fc": 0.5,
}

// parseModel reads ".model name D(param=value ...)", tolerating the
// parenthesis either attached to the type token or spaced apart.
func parseModel(nl *Netlist, fields []string) error {
	if len(fields) < 2 {
		return simerr.New(simerr.InvalidValue, ".model requires a name and type")
	}
	name := fields[0]
	rest := strings.Join(fields[1:], " ")

	open := strings.Index(rest, "(")
	modelType := rest
	paramStr := ""
	if open >= 0 {
		modelType = rest[:open]
		paramStr = rest[open+1:]
		paramStr = strings.TrimSuffix(strings.TrimSpace(paramStr), ")")
	}
	modelType = strings.ToUpper(strings.TrimSpace(modelType))

	if modelType != "D" {
		return simerr.New(simerr.InvalidValue, "unsupported model type: "+modelType)
	}

	params := make(map[string]float64, len(defaultDiodeParams))
	for k, v := range defaultDiodeParams {
		params[k] = v
	}
	for _, pair := range strings.Fields(paramStr) {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		v, err := values.Parse(kv[1])
		if err != nil {
			return simerr.Wrap(simerr.InvalidValue, "invalid .model parameter "+pair, err)
		}
		params[strings.ToLower(kv[0])] = v
	}

	nl.Models[name] = ModelParams{Type: modelType, Params: params}
	return nil
}

// parseElement dispatches on the first character of token 1, the
// device-type selector.
func parseElement(line string) (*Element, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, simerr.New(simerr.InvalidValue, "malformed element line: "+line)
	}
	typeTag := strings.ToUpper(string(fields[0][0]))

	switch typeTag {
	case "R", "C", "L":
		if len(fields) < 4 {
			return nil, simerr.New(simerr.InvalidValue, typeTag+" line requires name n1 n2 value: "+line)
		}
		val, err := values.Parse(fields[3])
		if err != nil {
			return nil, err
		}
		return &Element{Type: typeTag, Name: fields[0], Nodes: fields[1:3], Value: val}, nil

	case "D":
		elem := &Element{Type: "D", Name: fields[0], Nodes: fields[1:3], Params: map[string]string{}}
		if len(fields) > 3 {
			elem.Params["model"] = fields[3]
		}
		return elem, nil

	case "E", "G":
		if len(fields) < 6 {
			return nil, simerr.New(simerr.InvalidValue, typeTag+" line requires name n1 n2 c1 c2 gain: "+line)
		}
		val, err := values.Parse(fields[5])
		if err != nil {
			return nil, err
		}
		return &Element{Type: typeTag, Name: fields[0], Nodes: fields[1:5], Value: val}, nil

	case "H", "F":
		if len(fields) < 5 {
			return nil, simerr.New(simerr.InvalidValue, typeTag+" line requires name n1 n2 ctrl_device gain: "+line)
		}
		val, err := values.Parse(fields[4])
		if err != nil {
			return nil, err
		}
		return &Element{
			Type: typeTag, Name: fields[0], Nodes: fields[1:3], Value: val,
			Params: map[string]string{"ctrl": fields[3]},
		}, nil

	case "V", "I":
		return parseSource(typeTag, fields)

	default:
		return nil, simerr.New(simerr.InvalidValue, "unrecognized device type: "+typeTag)
	}
}

// parseSource reads a V/I line's waveform: a bare numeric token is
// the DC value; SIN(...)/PULSE(...)/PWL(...) select the supplemented
// waveforms; AC mag [phase] selects the small-signal drive (voltage
// sources only).
func parseSource(typeTag string, fields []string) (*Element, error) {
	if len(fields) < 3 {
		return nil, simerr.New(simerr.InvalidValue, typeTag+" line requires name n1 n2 ...: ")
	}
	elem := &Element{Type: typeTag, Name: fields[0], Nodes: fields[1:3], Params: map[string]string{}}

	rest := strings.Join(fields[3:], " ")
	rest = strings.ReplaceAll(rest, "(", " ( ")
	rest = strings.ReplaceAll(rest, ")", " ) ")
	words := strings.Fields(rest)
	if len(words) == 0 {
		elem.Params["type"] = "dc"
		elem.Value = 0
		return elem, nil
	}

	switch strings.ToUpper(words[0]) {
	case "SIN":
		elem.Params["type"] = "sin"
		elem.Params["args"] = strings.Trim(strings.Join(words[1:], " "), "() ")
	case "PULSE":
		elem.Params["type"] = "pulse"
		elem.Params["args"] = strings.Trim(strings.Join(words[1:], " "), "() ")
	case "PWL":
		elem.Params["type"] = "pwl"
		elem.Params["args"] = strings.Trim(strings.Join(words[1:], " "), "() ")
	case "AC":
		if typeTag != "V" {
			return nil, simerr.New(simerr.InvalidValue, "AC source drive is only supported on V lines")
		}
		elem.Params["type"] = "ac"
		if len(words) < 2 {
			return nil, simerr.New(simerr.InvalidValue, "AC line missing magnitude")
		}
		mag, err := values.Parse(words[1])
		if err != nil {
			return nil, err
		}
		elem.Value = mag
		elem.Params["phase"] = "0"
		if len(words) > 2 {
			elem.Params["phase"] = words[2]
		}
		if len(words) > 4 && strings.ToUpper(words[3]) == "DC" {
			dcVal, err := values.Parse(words[4])
			if err != nil {
				return nil, err
			}
			elem.Params["dc"] = fmt.Sprintf("%g", dcVal)
		}
	case "DC":
		if len(words) < 2 {
			return nil, simerr.New(simerr.InvalidValue, "DC line missing value")
		}
		v, err := values.Parse(words[1])
		if err != nil {
			return nil, err
		}
		elem.Params["type"] = "dc"
		elem.Value = v
	default:
		v, err := values.Parse(words[0])
		if err != nil {
			return nil, err
		}
		elem.Params["type"] = "dc"
		elem.Value = v
	}

	return elem, nil
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := values.Parse(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func waveformFromParams(p map[string]string, dcValue float64) (device.Waveform, error) {
	switch p["type"] {
	case "sin":
		nums, err := parseFloats(p["args"])
		if err != nil {
			return device.Waveform{}, err
		}
		if len(nums) < 3 {
			return device.Waveform{}, simerr.New(simerr.InvalidValue, "SIN requires offset amplitude freq")
		}
		wf := device.Waveform{Kind: device.SIN, DCOffset: nums[0], Amplitude: nums[1], Freq: nums[2]}
		if len(nums) > 3 {
			wf.PhaseDeg = nums[3]
		}
		return wf, nil

	case "pulse":
		nums, err := parseFloats(p["args"])
		if err != nil {
			return device.Waveform{}, err
		}
		if len(nums) < 7 {
			return device.Waveform{}, simerr.New(simerr.InvalidValue, "PULSE requires v1 v2 delay rise fall width period")
		}
		return device.Waveform{
			Kind: device.PULSE,
			V1: nums[0], V2: nums[1], Delay: nums[2], Rise: nums[3], Fall: nums[4],
			PulseWidth: nums[5], Period: nums[6],
		}, nil

	case "pwl":
		nums, err := parseFloats(p["args"])
		if err != nil {
			return device.Waveform{}, err
		}
		if len(nums) < 4 || len(nums)%2 != 0 {
			return device.Waveform{}, simerr.New(simerr.InvalidValue, "PWL requires pairs of time value")
		}
		n := len(nums) / 2
		times := make([]float64, n)
		vals := make([]float64, n)
		for i := 0; i < n; i++ {
			times[i] = nums[2*i]
			vals[i] = nums[2*i+1]
		}
		return device.Waveform{Kind: device.PWL, Times: times, Values: vals}, nil

	default:
		return device.Waveform{Kind: device.DC, DCOffset: dcValue}, nil
	}
}

// Build resolves every element's node names against topo and installs
// the corresponding device, returning the first topology error
// encountered (duplicate name, degenerate terminals, unknown model).
// The controlling device of an H/F line is not checked here, since it
// may be declared later in the file; an unresolved controller is
// reported when the device is stamped.
func Build(nl *Netlist, topo *topology.Topology) error {
	topo.AddGround("0")
	topo.AddGround("gnd")

	for _, e := range nl.Elements {
		if err := buildOne(nl, topo, e); err != nil {
			return fmt.Errorf("element %s: %w", e.Name, err)
		}
	}
	return nil
}

func buildOne(nl *Netlist, topo *topology.Topology, e Element) error {
	node := func(i int) int { return topo.GetOrCreateNode(e.Nodes[i]) }

	switch e.Type {
	case "R":
		return topo.AddDevice(device.NewResistor(e.Name, node(0), node(1), e.Value))
	case "C":
		return topo.AddDevice(device.NewCapacitor(e.Name, node(0), node(1), e.Value))
	case "L":
		return topo.AddDevice(device.NewInductor(e.Name, node(0), node(1), e.Value))

	case "D":
		d := device.NewDiode(e.Name, node(0), node(1))
		if modelName, ok := e.Params["model"]; ok {
			model, found := nl.Models[modelName]
			if !found {
				return simerr.New(simerr.UnknownDevice, "diode "+e.Name+": unknown model "+modelName)
			}
			d.SetModelParams(model.Params)
		}
		return topo.AddDevice(d)

	case "E":
		return topo.AddDevice(device.NewVCVS(e.Name, node(0), node(1), node(2), node(3), e.Value))
	case "G":
		return topo.AddDevice(device.NewVCCS(e.Name, node(0), node(1), node(2), node(3), e.Value))
	case "H":
		return topo.AddDevice(device.NewCCVS(e.Name, node(0), node(1), e.Params["ctrl"], e.Value))
	case "F":
		return topo.AddDevice(device.NewCCCS(e.Name, node(0), node(1), e.Params["ctrl"], e.Value))

	case "V":
		if e.Params["type"] == "ac" {
			dcVal := 0.0
			if s, ok := e.Params["dc"]; ok {
				v, err := values.Parse(s)
				if err != nil {
					return err
				}
				dcVal = v
			}
			phase, err := values.Parse(e.Params["phase"])
			if err != nil {
				return err
			}
			return topo.AddDevice(device.NewACVoltageSource(e.Name, node(0), node(1), dcVal, e.Value, phase))
		}
		wf, err := waveformFromParams(e.Params, e.Value)
		if err != nil {
			return err
		}
		return topo.AddDevice(device.NewVoltageSource(e.Name, node(0), node(1), wf))

	case "I":
		wf, err := waveformFromParams(e.Params, e.Value)
		if err != nil {
			return err
		}
		return topo.AddDevice(device.NewCurrentSource(e.Name, node(0), node(1), wf))

	default:
		return simerr.New(simerr.InvalidValue, "unrecognized device type: "+e.Type)
	}
}
