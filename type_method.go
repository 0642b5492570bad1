package costbasis

import "fmt"

// AllocationMethod defines how lots are selected when allocating a disposal.
type AllocationMethod int

const (
	// FIFO (First-In, First-Out) consumes the oldest lots first.
	FIFO AllocationMethod = iota + 1
	// LIFO (Last-In, First-Out) consumes the newest lots first.
	LIFO
	// HIFO (Highest-In, First-Out) consumes the lots with the highest
	// acquisition price first.
	HIFO
	// AverageCost records a single disposal at the amount-weighted average
	// unit price across all available lots.
	AverageCost
	// SpecificID consumes exactly the lots named by the caller, in the order
	// given.
	SpecificID
)

func (m AllocationMethod) String() string {
	switch m {
	case FIFO:
		return "fifo"
	case LIFO:
		return "lifo"
	case HIFO:
		return "hifo"
	case AverageCost:
		return "average"
	case SpecificID:
		return "specific"
	default:
		return "unknown"
	}
}

// ParseAllocationMethod parses a string into an AllocationMethod.
func ParseAllocationMethod(s string) (AllocationMethod, error) {
	switch s {
	case "fifo":
		return FIFO, nil
	case "lifo":
		return LIFO, nil
	case "hifo":
		return HIFO, nil
	case "average", "average-cost":
		return AverageCost, nil
	case "specific", "specific-id":
		return SpecificID, nil
	default:
		return 0, fmt.Errorf("unknown allocation method: %q", s)
	}
}

func (m AllocationMethod) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *AllocationMethod) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid allocation method: %s", s)
	}
	v, err := ParseAllocationMethod(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*m = v
	return nil
}
