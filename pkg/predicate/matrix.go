package predicate

import (
	"fmt"
	"strings"
)

// Location is the position of a point relative to a geometry.
type Location int

const (
	Interior Location = iota
	Boundary
	Exterior
)

// String returns the conventional single-letter name.
func (l Location) String() string {
	switch l {
	case Interior:
		return "I"
	case Boundary:
		return "B"
	default:
		return "E"
	}
}

// Dimension values stored in an IntersectionMatrix.
const (
	DimFalse = -1 // empty intersection
	DimPoint = 0
	DimLine  = 1
	DimArea  = 2
)

// IntersectionMatrix is the DE-9IM matrix of two geometries A and B.
// Entry [i][j] is the dimension of the intersection of location i of A
// with location j of B, DimFalse when empty.
type IntersectionMatrix [3][3]int

func newMatrix() IntersectionMatrix {
	var im IntersectionMatrix
	for i := range im {
		for j := range im[i] {
			im[i][j] = DimFalse
		}
	}
	return im
}

// raise sets entry [a][b] to d when d is larger than the current value.
func (im *IntersectionMatrix) raise(a, b Location, d int) {
	if d > im[a][b] {
		im[a][b] = d
	}
}

// Get returns the dimension of the intersection of location a of A and
// location b of B.
func (im IntersectionMatrix) Get(a, b Location) int {
	return im[a][b]
}

// String returns the 9-character form, row by row: "212101212".
func (im IntersectionMatrix) String() string {
	var b strings.Builder
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if im[i][j] == DimFalse {
				b.WriteByte('F')
			} else {
				b.WriteByte(byte('0' + im[i][j]))
			}
		}
	}
	return b.String()
}

// Transpose returns the matrix of (B, A).
func (im IntersectionMatrix) Transpose() IntersectionMatrix {
	var t IntersectionMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t[j][i] = im[i][j]
		}
	}
	return t
}

// Matches reports whether the matrix satisfies a 9-character pattern of
// T, F, *, 0, 1 and 2. It panics on a malformed pattern.
func (im IntersectionMatrix) Matches(pattern string) bool {
	if len(pattern) != 9 {
		panic(fmt.Sprintf("predicate: invalid DE-9IM pattern %q", pattern))
	}
	for k := 0; k < 9; k++ {
		d := im[k/3][k%3]
		switch pattern[k] {
		case '*':
		case 'T', 't':
			if d == DimFalse {
				return false
			}
		case 'F', 'f':
			if d != DimFalse {
				return false
			}
		case '0', '1', '2':
			if d != int(pattern[k]-'0') {
				return false
			}
		default:
			panic(fmt.Sprintf("predicate: invalid DE-9IM pattern %q", pattern))
		}
	}
	return true
}
