package message

import "fmt"

// InsufficientCapacityError is raised when an add_* call would write past
// the message's configured maximum size. It is fatal to the single
// operation that raised it; the connection it belongs to is not affected.
type InsufficientCapacityError struct {
	TypeName      string
	RequiredBits  uint
	AvailableBits uint
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("message: insufficient capacity writing %s: need %d bits, have %d",
		e.TypeName, e.RequiredBits, e.AvailableBits)
}

func newInsufficientCapacity(typeName string, required, available uint) error {
	return &InsufficientCapacityError{TypeName: typeName, RequiredBits: required, AvailableBits: available}
}

// UnknownHeaderKindError marks an inbound datagram whose 4-bit header is
// outside the closed set of header kinds; the datagram is discarded.
type UnknownHeaderKindError struct {
	Kind uint8
}

func (e *UnknownHeaderKindError) Error() string {
	return fmt.Sprintf("message: unknown header kind %d", e.Kind)
}
