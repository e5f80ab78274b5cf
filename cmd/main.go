package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"mnacore/pkg/analysis"
	"mnacore/pkg/assembler"
	"mnacore/pkg/netlist"
	"mnacore/pkg/query"
	"mnacore/pkg/topology"
	"mnacore/pkg/util"
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatal("Usage: mnacore <netlist_file>")
	}

	content, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("Error reading netlist file: %v", err)
	}

	nl, err := netlist.Parse(string(content))
	if err != nil {
		log.Fatalf("Error parsing netlist: %v", err)
	}

	topo := topology.New()
	if err := netlist.Build(nl, topo); err != nil {
		log.Fatalf("Error building circuit: %v", err)
	}
	topo.ProcessLabelMerges()

	switch nl.Analysis {
	case netlist.AnalysisOP:
		runOP(topo)
	case netlist.AnalysisTRAN:
		runTransient(topo, nl)
	case netlist.AnalysisAC:
		runAC(topo, nl)
	case netlist.AnalysisDC:
		runDC(topo, nl)
	default:
		log.Fatal("Unsupported analysis type")
	}
}

// reportVars collects one V(node) query per live non-ground node and
// one I(device) query per device, sorted; the callers skip the
// combinations the query package reports as unsupported.
func reportVars(topo *topology.Topology) []string {
	var vars []string
	for _, d := range topo.Devices() {
		vars = append(vars, "I("+d.Name+")")
	}
	for _, id := range topo.LiveNodeIDs() {
		if topo.IsGround(id) {
			continue
		}
		name, ok := topo.NodeName(id)
		if !ok {
			continue
		}
		vars = append(vars, "V("+name+")")
	}
	sort.Strings(vars)
	return vars
}

func runOP(topo *topology.Topology) {
	asm := assembler.New(topo, false)
	op := analysis.NewOperatingPoint(topo, asm)
	if err := op.Run(); err != nil {
		log.Fatalf("Operating point failed: %v", err)
	}

	fmt.Println("Operating point:")
	for _, v := range reportVars(topo) {
		vals, ok, err := query.Resolve(v, topo, &op.Result, query.DC)
		if err != nil || !ok {
			continue
		}
		fmt.Printf("  %s = %s\n", v, util.FormatEngineering(vals[0], unitFor(v)))
	}
}

func runDC(topo *topology.Topology, nl *netlist.Netlist) {
	sources := []string{nl.DC.Source1}
	starts := []float64{nl.DC.Start1}
	stops := []float64{nl.DC.Stop1}
	steps := []float64{nl.DC.Step1}
	if nl.DC.Source2 != "" {
		sources = append(sources, nl.DC.Source2)
		starts = append(starts, nl.DC.Start2)
		stops = append(stops, nl.DC.Stop2)
		steps = append(steps, nl.DC.Step2)
	}

	asm := assembler.New(topo, false)
	dc := analysis.NewDCSweep(topo, asm, sources, starts, stops, steps)
	if err := dc.Run(); err != nil {
		log.Fatalf("DC sweep failed: %v", err)
	}

	fmt.Printf("DC sweep over %s: %d points (%d omitted)\n", nl.DC.Source1, len(dc.Result.Keys), len(dc.Result.Omitted))
	vars := reportVars(topo)
	for i, key := range dc.Result.Keys {
		fmt.Printf("  %s=%s  ", nl.DC.Source1, util.FormatEngineering(key, "V"))
		for _, v := range vars {
			vals, ok, err := query.Resolve(v, topo, &dc.Result, query.DC)
			if err != nil || !ok {
				continue
			}
			fmt.Printf("%s=%s  ", v, util.FormatEngineering(vals[i], unitFor(v)))
		}
		fmt.Println()
	}
}

func runTransient(topo *topology.Topology, nl *netlist.Netlist) {
	asm := assembler.New(topo, false)
	tr := analysis.NewTransient(topo, asm, nl.Tran.TStart, nl.Tran.TStop, nl.Tran.MaxStep)
	if err := tr.Run(); err != nil {
		log.Fatalf("Transient analysis failed: %v", err)
	}

	fmt.Printf("Transient analysis: %d time points\n", len(tr.Result.Keys))
	vars := reportVars(topo)
	for i, t := range tr.Result.Keys {
		fmt.Printf("  t=%s  ", util.FormatEngineering(t, "s"))
		for _, v := range vars {
			vals, ok, err := query.Resolve(v, topo, &tr.Result, query.TransientMode)
			if err != nil || !ok {
				continue
			}
			fmt.Printf("%s=%s  ", v, util.FormatEngineering(vals[i], unitFor(v)))
		}
		fmt.Println()
	}
}

func runAC(topo *topology.Topology, nl *netlist.Netlist) {
	asm := assembler.New(topo, true)
	ac := analysis.NewACSweep(topo, asm, nl.AC.OmegaStart, nl.AC.OmegaStop, nl.AC.NumPoints)
	if err := ac.Run(); err != nil {
		log.Fatalf("AC sweep failed: %v", err)
	}

	fmt.Printf("AC sweep: %d frequency points (%d omitted)\n", len(ac.Result.Keys), len(ac.Result.Omitted))
	vars := reportVars(topo)
	for i, omega := range ac.Result.Keys {
		fmt.Printf("  %s  ", util.FormatFrequency(omega))
		for _, v := range vars {
			mag, phase, err := query.ResolveAC(v, topo, &ac.Result)
			if err != nil {
				continue
			}
			fmt.Printf("%s  ", util.FormatMagnitudePhase(v, mag[i], phase[i]))
		}
		fmt.Println()
	}
}

func unitFor(v string) string {
	if len(v) > 0 && v[0] == 'I' {
		return "A"
	}
	return "V"
}
