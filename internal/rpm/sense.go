package rpm

import (
	"errors"
	"fmt"
	"strings"
)

// Sense is the comparison part of an RPM dependency flag word.
type Sense uint32

// Sense bits as stored in rpm headers.
const (
	SenseAny     Sense = 0
	SenseLess    Sense = 1 << 1
	SenseGreater Sense = 1 << 2
	SenseEqual   Sense = 1 << 3

	// SenseMask keeps the comparison bits of a raw dependency flag word.
	SenseMask Sense = 0x0F

	senseCompare = SenseLess | SenseGreater | SenseEqual
)

// ErrInvalidOperator is returned when a textual comparison operator is not recognised.
var ErrInvalidOperator = errors.New("invalid version comparison operator")

// SenseFromFlags extracts the comparison bits of a raw dependency flag word.
func SenseFromFlags(flags uint32) Sense {
	return Sense(flags) & SenseMask
}

// ParseSense converts "<", "<=", "=", "==", ">=", ">" or "" into sense bits.
func ParseSense(op string) (Sense, error) {
	switch strings.TrimSpace(op) {
	case "":
		return SenseAny, nil
	case "<":
		return SenseLess, nil
	case "<=", "=<":
		return SenseLess | SenseEqual, nil
	case "=", "==":
		return SenseEqual, nil
	case ">=", "=>":
		return SenseGreater | SenseEqual, nil
	case ">":
		return SenseGreater, nil
	default:
		return SenseAny, fmt.Errorf("%w: %q", ErrInvalidOperator, op)
	}
}

// HasComparison reports whether any of the less/greater/equal bits is set.
func (s Sense) HasComparison() bool {
	return s&senseCompare != 0
}

// String returns the operator form of the sense bits.
func (s Sense) String() string {
	var b strings.Builder

	if s&SenseLess != 0 {
		b.WriteByte('<')
	}

	if s&SenseGreater != 0 {
		b.WriteByte('>')
	}

	if s&SenseEqual != 0 {
		b.WriteByte('=')
	}

	return b.String()
}
