// Package mat implements sparse complex matrices for building Hamiltonians, and their exact diagonalization.
package mat

import (
	"cmp"
	"fmt"
	"math/cmplx"
	"slices"

	"gonum.org/v1/gonum/mat"
)

var (
	PauliX = [][]complex128{
		{0, 1},
		{1, 0},
	}
	PauliZ = [][]complex128{
		{1, 0},
		{0, -1},
	}
)

// Matrix is a matrix that can be built up by sums of Kronecker products.
type Matrix interface {
	Zeros(int, int)
	Scalar(complex128)
	Rows() int
	Cols() int

	Add(complex128, Matrix)
	Kron(*COO)
	COO() *COO
}

type vRowCol struct {
	v   complex128
	row int
	col int
}

// COO is a sparse matrix in coordinate format, with entries sorted in row major order.
type COO struct {
	rows int
	cols int
	Data []vRowCol

	m map[[2]int]complex128
}

func M(dense [][]complex128) *COO {
	m := &COO{rows: len(dense), cols: len(dense[0]), Data: make([]vRowCol, 0), m: make(map[[2]int]complex128)}
	for i, row := range dense {
		for j, v := range row {
			if v == 0 {
				continue
			}
			m.Data = append(m.Data, vRowCol{v: v, row: i, col: j})
		}
	}
	return m
}

func COOZeros(rows, cols int) *COO {
	m := M([][]complex128{{0}})
	m.Zeros(rows, cols)
	return m
}

func COOIdentity(rows int) *COO {
	m := COOZeros(rows, rows)
	for i := range rows {
		m.Data = append(m.Data, vRowCol{v: 1, row: i, col: i})
	}
	return m
}

func (m *COO) Rows() int { return m.rows }
func (m *COO) Cols() int { return m.cols }

// NumNonZero returns the number of stored entries.
func (m *COO) NumNonZero() int { return len(m.Data) }

func (m *COO) Zeros(rows, cols int) {
	m.rows, m.cols = rows, cols
	m.Data = m.Data[:0]
}

func (m *COO) Scalar(v complex128) {
	m.rows, m.cols = 1, 1
	m.Data = m.Data[:0]
	m.Data = append(m.Data, vRowCol{v: v, row: 0, col: 0})
}

// AddAt adds v to the entry at row i and column j.
// Entries may be added in any order, but the matrix must be sorted by calling Compact before any other method.
func (m *COO) AddAt(i, j int, v complex128) {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(fmt.Sprintf("%d %d %d %d", i, j, m.rows, m.cols))
	}
	m.Data = append(m.Data, vRowCol{v: v, row: i, col: j})
}

// Compact sorts the entries, merges duplicates, and drops zeros.
func (m *COO) Compact() {
	slices.SortStableFunc(m.Data, rowMajor)
	merged := m.Data[:0]
	for _, v := range m.Data {
		if n := len(merged); n > 0 && merged[n-1].row == v.row && merged[n-1].col == v.col {
			merged[n-1].v += v.v
			continue
		}
		merged = append(merged, v)
	}
	m.Data = slices.DeleteFunc(merged, func(v vRowCol) bool {
		return v.v == 0
	})
}

// At returns the entry at row i and column j.
func (m *COO) At(i, j int) complex128 {
	k, ok := slices.BinarySearchFunc(m.Data, vRowCol{row: i, col: j}, rowMajor)
	if !ok {
		return 0
	}
	return m.Data[k].v
}

func (a *COO) Equal(b *COO) bool {
	if a.rows != b.rows {
		return false
	}
	if a.cols != b.cols {
		return false
	}
	return slices.Equal(a.Data, b.Data)
}

// EqualApprox reports whether a and b have the same shape and entries that differ by at most tol.
func (a *COO) EqualApprox(b *COO, tol float64) bool {
	if a.rows != b.rows || a.cols != b.cols {
		return false
	}
	bm := b.index()
	defer clear(bm)
	for _, av := range a.Data {
		bv := bm[[2]int{av.row, av.col}]
		delete(bm, [2]int{av.row, av.col})
		if cmplx.Abs(av.v-bv) > tol {
			return false
		}
	}
	for _, bv := range bm {
		if cmplx.Abs(bv) > tol {
			return false
		}
	}
	return true
}

// Add sets a to a + c*b, where b is either a scalar, a column vector, or a matrix of the same shape as a.
func (a *COO) Add(c complex128, bMatrix Matrix) {
	b := bMatrix.COO()
	bm := b.index()

	for i, av := range a.Data {
		byx := broadcast(a, b, av)
		bv := bm[byx]
		delete(bm, byx)

		a.Data[i].v = av.v + c*bv
	}

	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
	for yx, bv := range bm {
		if c*bv == 0 {
			continue
		}
		a.Data = append(a.Data, vRowCol{v: c * bv, row: yx[0], col: yx[1]})
	}
	slices.SortFunc(a.Data, rowMajor)
	clear(bm)
}

func (a *COO) Kron(b *COO) {
	rows := a.rows * b.rows
	cols := a.cols * b.cols
	a.rows, a.cols = rows, cols

	prevElemNum := len(a.Data)
	for i := prevElemNum - 1; i >= 0; i-- {
		av := a.Data[i]
		a.Data[i].v = 0
		for _, bv := range b.Data {
			ky := av.row*b.rows + bv.row
			kx := av.col*b.cols + bv.col
			a.Data = append(a.Data, vRowCol{v: av.v * bv.v, row: ky, col: kx})
		}
	}

	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
	slices.SortFunc(a.Data, rowMajor)
}

func (m *COO) COO() *COO {
	return m
}

// index returns the entries of m keyed by their coordinates.
// The returned map is owned by m, and must be cleared by the caller.
func (m *COO) index() map[[2]int]complex128 {
	if m.m == nil {
		m.m = make(map[[2]int]complex128)
	}
	clear(m.m)
	for _, v := range m.Data {
		m.m[[2]int{v.row, v.col}] = v.v
	}
	return m.m
}

func broadcast(a, b *COO, av vRowCol) [2]int {
	var byx [2]int
	switch {
	case b.rows == 1 && b.cols == 1:
	case b.rows == a.rows && b.cols == 1:
		byx[0] = av.row
	case b.rows == a.rows && b.cols == a.cols:
		byx[0], byx[1] = av.row, av.col
	default:
		panic(fmt.Sprintf("wrong dimensions %d %d %d %d", a.rows, a.cols, b.rows, b.cols))
	}
	return byx
}

type ValVec struct {
	Val complex128
	Vec []complex128
}

// Eigen returns the eigenvalues and eigenvectors of a real symmetric matrix, sorted by increasing eigenvalue.
func (m *COO) Eigen() []ValVec {
	if m.rows != m.cols {
		panic(fmt.Sprintf("%d %d", m.rows, m.cols))
	}
	sym := mat.NewSymDense(m.rows, nil)
	for _, v := range m.Data {
		if imag(v.v) != 0 {
			panic(fmt.Sprintf("not real %v", v))
		}
		if v.row > v.col {
			continue
		}
		sym.SetSym(v.row, v.col, real(v.v))
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		panic("eig.Factorize failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	vvs := make([]ValVec, 0, len(vals))
	for i, v := range vals {
		vec := make([]complex128, 0, m.rows)
		for j := range m.rows {
			vec = append(vec, complex(vecs.At(j, i), 0))
		}
		vvs = append(vvs, ValVec{Val: complex(v, 0), Vec: vec})
	}
	slices.SortStableFunc(vvs, func(a, b ValVec) int { return cmp.Compare(real(a.Val), real(b.Val)) })

	return vvs
}

func rowMajor(a, b vRowCol) int {
	if c := cmp.Compare(a.row, b.row); c != 0 {
		return c
	}
	return cmp.Compare(a.col, b.col)
}

