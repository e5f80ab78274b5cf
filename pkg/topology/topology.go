// Package topology owns the device collection, the node-name <-> id
// bimap, the ground set, and label-based node merging. It produces the
// dense MNA index the assembler needs and is the sole owner of every
// device; every other package borrows by name or by index.
package topology

import (
	"sort"

	"mnacore/pkg/device"
	"mnacore/pkg/simerr"
)

type Topology struct {
	nodeNameToID map[string]int
	nodeIDToName map[int]string
	nextNodeID   int

	ground map[int]bool

	labels map[string]map[int]bool

	devices    []*device.Device
	deviceByID map[string]int // name -> index into devices

	hasNonlinear bool
}

func New() *Topology {
	t := &Topology{
		nodeNameToID: make(map[string]int),
		nodeIDToName: make(map[int]string),
		nextNodeID:   1,
		ground:       make(map[int]bool),
		labels:       make(map[string]map[int]bool),
		deviceByID:   make(map[string]int),
	}
	return t
}

// GetOrCreateNode allocates a dense node id on first reference to name.
func (t *Topology) GetOrCreateNode(name string) int {
	if id, ok := t.nodeNameToID[name]; ok {
		return id
	}
	id := t.nextNodeID
	t.nextNodeID++
	t.nodeNameToID[name] = id
	t.nodeIDToName[id] = name
	return id
}

// LookupNode returns the id for name and whether it exists.
func (t *Topology) LookupNode(name string) (int, bool) {
	id, ok := t.nodeNameToID[name]
	return id, ok
}

func (t *Topology) NodeName(id int) (string, bool) {
	name, ok := t.nodeIDToName[id]
	return name, ok
}

// RenameNode changes the user-visible name for an existing node id
// without altering any solution, since ids (not names) drive stamping.
func (t *Topology) RenameNode(oldName, newName string) error {
	id, ok := t.nodeNameToID[oldName]
	if !ok {
		return simerr.New(simerr.UnknownNode, "rename: unknown node "+oldName)
	}
	if _, taken := t.nodeNameToID[newName]; taken {
		return simerr.New(simerr.DuplicateName, "rename: node name already in use: "+newName)
	}
	delete(t.nodeNameToID, oldName)
	t.nodeNameToID[newName] = id
	t.nodeIDToName[id] = newName
	return nil
}

// AddDevice inserts d into the collection, rejecting duplicate names
// and degenerate (equal-terminal) devices, and raises has_nonlinear
// when d is a diode.
func (t *Topology) AddDevice(d *device.Device) error {
	if _, exists := t.deviceByID[d.Name]; exists {
		return simerr.New(simerr.DuplicateName, "device already exists: "+d.Name)
	}
	if d.N1 == d.N2 {
		return simerr.New(simerr.DegenerateDevice, "device "+d.Name+": terminals must be distinct")
	}

	t.deviceByID[d.Name] = len(t.devices)
	t.devices = append(t.devices, d)

	if d.IsNonlinear() {
		t.hasNonlinear = true
	}
	return nil
}

// DeleteDevice removes the named device and drops its history.
func (t *Topology) DeleteDevice(name string) error {
	idx, ok := t.deviceByID[name]
	if !ok {
		return simerr.New(simerr.UnknownDevice, "no such device: "+name)
	}

	t.devices = append(t.devices[:idx], t.devices[idx+1:]...)
	delete(t.deviceByID, name)
	for n, i := range t.deviceByID {
		if i > idx {
			t.deviceByID[n] = i - 1
		}
	}

	t.hasNonlinear = false
	for _, d := range t.devices {
		if d.IsNonlinear() {
			t.hasNonlinear = true
			break
		}
	}
	return nil
}

func (t *Topology) Device(name string) (*device.Device, bool) {
	idx, ok := t.deviceByID[name]
	if !ok {
		return nil, false
	}
	return t.devices[idx], true
}

func (t *Topology) Devices() []*device.Device {
	return t.devices
}

func (t *Topology) HasNonlinear() bool {
	return t.hasNonlinear
}

func (t *Topology) AddGround(nodeName string) {
	id := t.GetOrCreateNode(nodeName)
	t.ground[id] = true
}

func (t *Topology) RemoveGround(nodeName string) error {
	id, ok := t.nodeNameToID[nodeName]
	if !ok {
		return simerr.New(simerr.UnknownNode, "remove_ground: unknown node "+nodeName)
	}
	delete(t.ground, id)
	return nil
}

func (t *Topology) IsGround(id int) bool {
	return t.ground[id]
}

func (t *Topology) HasGround() bool {
	return len(t.ground) > 0
}

// ConnectNodes merges max(a,b) into min(a,b), rewriting every device
// terminal, label set, and the ground set to the destination id. The
// operation is idempotent (merging an already-merged pair is a no-op)
// and its effect on downstream solutions is order-independent.
func (t *Topology) ConnectNodes(a, b int) {
	if a == b {
		return
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}

	for _, d := range t.devices {
		d.RewriteNode(hi, lo)
	}

	if t.ground[hi] {
		t.ground[lo] = true
		delete(t.ground, hi)
	}

	for _, set := range t.labels {
		if set[hi] {
			delete(set, hi)
			set[lo] = true
		}
	}

	if name, ok := t.nodeIDToName[hi]; ok {
		delete(t.nodeIDToName, hi)
		// The merged-away id's name now aliases the surviving id so
		// lookups by either original name still resolve.
		t.nodeNameToID[name] = lo
	}
}

// Label associates node with name, building an equipotential set that
// ProcessLabelMerges later unifies via ConnectNodes.
func (t *Topology) Label(name string, node int) {
	set, ok := t.labels[name]
	if !ok {
		set = make(map[int]bool)
		t.labels[name] = set
	}
	set[node] = true
}

// ProcessLabelMerges merges every node sharing a label into the
// minimum id in that label's set, equivalent to wiring them together.
func (t *Topology) ProcessLabelMerges() {
	for _, set := range t.labels {
		if len(set) < 2 {
			continue
		}
		ids := make([]int, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		min := ids[0]
		for _, id := range ids[1:] {
			t.ConnectNodes(min, id)
		}
	}
}

// DenseIndex enumerates live, non-ground node ids in ascending order
// into [0, N), the MNA row index for node voltages. Recomputed fresh
// on every assembly: merged-away ids never reappear and gaps are not
// reissued.
func (t *Topology) DenseIndex() map[int]int {
	ids := make([]int, 0, len(t.nodeIDToName))
	seen := make(map[int]bool)
	for _, id := range t.nodeNameToID {
		if seen[id] || t.ground[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Ints(ids)

	idx := make(map[int]int, len(ids))
	for i, id := range ids {
		idx[id] = i
	}
	return idx
}

// LiveNodeIDs returns every node id still reachable by name, in
// ascending order, including ground ids (callers that need only the
// MNA unknowns should use DenseIndex instead).
func (t *Topology) LiveNodeIDs() []int {
	seen := make(map[int]bool)
	ids := make([]int, 0, len(t.nodeNameToID))
	for _, id := range t.nodeNameToID {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Reset zeroes every device's history state, called at the start of
// each analysis.
func (t *Topology) Reset() {
	for _, d := range t.devices {
		d.Reset()
	}
}
