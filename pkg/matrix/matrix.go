// Package matrix wraps github.com/edp1096/sparse behind a small
// dense-indexed stamping interface shared by every device variant,
// supporting both the real-valued DC/transient system and the
// complex-valued AC system.
package matrix

import (
	"fmt"

	"github.com/edp1096/sparse"

	"mnacore/pkg/simerr"
)

// DeviceMatrix is the narrow interface every device stamps through.
// Indices are 1-based; the current-unknown rows/columns follow the
// node rows.
type DeviceMatrix interface {
	AddElement(i, j int, value float64)
	AddRHS(i int, value float64)
	AddComplexElement(i, j int, real, imag float64)
	AddComplexRHS(i int, real, imag float64)
}

// System holds the augmented (N+M)x(N+M) MNA matrix and RHS for one
// assembly, reused across sweep points and resized only when the
// dense unknown count changes.
type System struct {
	Size      int
	complex   bool
	mat       *sparse.Matrix
	rhs       []float64
	rhsImag   []float64
	solution  []float64
	solImag   []float64
	config    *sparse.Configuration
}

// New creates a system sized for size unknowns. isComplex selects the
// AC-sweep configuration (separate real/imaginary RHS columns).
func New(size int, isComplex bool) (*System, error) {
	if size <= 0 {
		return nil, simerr.New(simerr.SingularMatrix, "empty system: no unknowns")
	}

	config := &sparse.Configuration{
		Real:           true,
		Complex:        isComplex,
		Expandable:     true,
		ModifiedNodal:  true,
		TiesMultiplier: 5,
		PrinterWidth:   140,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, simerr.Wrap(simerr.SingularMatrix, "creating sparse matrix", err)
	}

	vecSize := size + 1
	if isComplex {
		vecSize *= 2
	}

	return &System{
		Size:     size,
		complex:  isComplex,
		mat:      mat,
		rhs:      make([]float64, vecSize),
		rhsImag:  make([]float64, size+1),
		solution: make([]float64, vecSize),
		solImag:  make([]float64, size+1),
		config:   config,
	}, nil
}

func (m *System) AddElement(i, j int, value float64) {
	if i <= 0 || j <= 0 || i > m.Size || j > m.Size {
		return
	}
	m.mat.GetElement(int64(i), int64(j)).Real += value
}

func (m *System) AddComplexElement(i, j int, real, imag float64) {
	if i <= 0 || j <= 0 || i > m.Size || j > m.Size {
		return
	}
	el := m.mat.GetElement(int64(i), int64(j))
	el.Real += real
	el.Imag += imag
}

func (m *System) AddRHS(i int, value float64) {
	if i <= 0 || i > m.Size {
		return
	}
	m.rhs[i] += value
}

func (m *System) AddComplexRHS(i int, real, imag float64) {
	if i <= 0 || i > m.Size {
		return
	}
	m.rhs[2*i] += real
	m.rhs[2*i+1] += imag
}

// LoadGmin adds a diagonal minimum conductance, used by the
// operating-point homotopy fallback when plain Newton-Raphson fails
// to converge.
func (m *System) LoadGmin(gmin float64) {
	if gmin == 0 {
		return
	}
	for i := 1; i <= m.Size; i++ {
		if diag := m.mat.Diags[i]; diag != nil {
			diag.Real += gmin
		}
	}
}

func (m *System) Clear() {
	m.mat.Clear()
	for i := range m.rhs {
		m.rhs[i] = 0
	}
	for i := range m.rhsImag {
		m.rhsImag[i] = 0
	}
}

// Solve factors and solves the system, returning SingularMatrix on a
// non-invertible pivot.
func (m *System) Solve() error {
	if err := m.mat.Factor(); err != nil {
		return simerr.Wrap(simerr.SingularMatrix, "matrix factorization failed", err)
	}

	var err error
	if m.complex {
		m.solution, m.solImag, err = m.mat.SolveComplex(m.rhs, m.rhsImag)
	} else {
		m.solution, err = m.mat.Solve(m.rhs)
	}
	if err != nil {
		return simerr.Wrap(simerr.SingularMatrix, "matrix solve failed", err)
	}
	return nil
}

func (m *System) Solution() []float64 {
	return m.solution
}

// GetComplexSolution returns the real/imaginary parts of unknown i
// for a complex system, where solution holds interleaved real blocks.
func (m *System) GetComplexSolution(i int) (float64, float64) {
	if !m.complex || i <= 0 || i > m.Size {
		return 0, 0
	}
	return m.solution[i], m.solution[i+m.Size]
}

func (m *System) Destroy() {
	if m.mat != nil {
		m.mat.Destroy()
	}
}

func (m *System) String() string {
	return fmt.Sprintf("matrix.System{size=%d, complex=%v}", m.Size, m.complex)
}
