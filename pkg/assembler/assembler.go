// Package assembler builds the augmented MNA matrix and right-hand
// side for one sweep point by combining the topology manager's dense
// node index with a deterministic column assignment for every
// current-unknown device, then invoking each device's stamp.
package assembler

import (
	"fmt"

	"mnacore/pkg/device"
	"mnacore/pkg/matrix"
	"mnacore/pkg/simerr"
	"mnacore/pkg/topology"
)

// Assembler owns the reusable matrix system. It rebuilds the node and
// branch index maps on every assembly and reallocates the matrix only
// when the topology's unknown count changes.
type Assembler struct {
	topo      *topology.Topology
	sys       *matrix.System
	isComplex bool

	nodeIndex   map[int]int // node id -> dense row, 1-based, 0 = ground
	branchIndex map[string]int
	numNodes    int
	size        int
}

func New(topo *topology.Topology, isComplex bool) *Assembler {
	return &Assembler{topo: topo, isComplex: isComplex}
}

// buildIndex recomputes the dense node index (1-based, ground mapped
// to the Go zero value by simply being absent from the map) and
// assigns a column to each current-unknown device in device-iteration
// order, then (re)allocates the matrix if the unknown count changed.
func (a *Assembler) buildIndex() error {
	dense := a.topo.DenseIndex() // node id -> [0, N)
	a.numNodes = len(dense)

	nodeIdx := make(map[int]int, len(dense))
	for id, i := range dense {
		nodeIdx[id] = i + 1 // convert to 1-based matrix row
	}

	branchIdx := make(map[string]int)
	col := a.numNodes + 1
	for _, d := range a.topo.Devices() {
		if d.NeedsCurrentUnknown() {
			branchIdx[d.Name] = col
			d.BranchIdx = col
			col++
		}
	}

	size := col - 1
	if size != a.size || a.sys == nil {
		if a.sys != nil {
			a.sys.Destroy()
		}
		sys, err := matrix.New(size, a.isComplex)
		if err != nil {
			return err
		}
		a.sys = sys
		a.size = size
	} else {
		a.sys.Clear()
	}

	a.nodeIndex = nodeIdx
	a.branchIndex = branchIdx
	return nil
}

func (a *Assembler) index() device.Index {
	return device.Index{Node: a.nodeIndex, Branch: a.branchIndex}
}

// Assemble rebuilds the index, clears the matrix, and stamps every
// device for the DC/transient system at the given status.
func (a *Assembler) Assemble(status *device.Status) error {
	if !a.topo.HasGround() {
		return simerr.New(simerr.NoGround, "no ground node defined")
	}

	if err := a.buildIndex(); err != nil {
		return err
	}

	ix := a.index()
	for _, d := range a.topo.Devices() {
		if err := d.Stamp(a.sys, ix, status); err != nil {
			return fmt.Errorf("stamping device %s: %w", d.Name, err)
		}
	}
	return nil
}

// AssembleAC rebuilds the index and stamps every device for the
// complex-valued AC system at the given angular frequency.
func (a *Assembler) AssembleAC(status *device.Status) error {
	if !a.topo.HasGround() {
		return simerr.New(simerr.NoGround, "no ground node defined")
	}

	if err := a.buildIndex(); err != nil {
		return err
	}

	ix := a.index()
	for _, d := range a.topo.Devices() {
		if err := d.StampAC(a.sys, ix, status); err != nil {
			return fmt.Errorf("stamping device %s (AC): %w", d.Name, err)
		}
	}
	return nil
}

func (a *Assembler) System() *matrix.System {
	return a.sys
}

func (a *Assembler) NodeIndex() map[int]int {
	return a.nodeIndex
}

func (a *Assembler) BranchIndex() map[string]int {
	return a.branchIndex
}

func (a *Assembler) Index() device.Index {
	return a.index()
}
