package costbasis

import "fmt"

// AcquisitionMethod is the closed set of ways a lot can enter the ledger.
type AcquisitionMethod int

const (
	Purchase AcquisitionMethod = iota + 1
	Swap
	Airdrop
	Mining
	Fork
	Gift
	TransferIn
	UnknownAcquisition
)

func (m AcquisitionMethod) String() string {
	switch m {
	case Purchase:
		return "purchase"
	case Swap:
		return "swap"
	case Airdrop:
		return "airdrop"
	case Mining:
		return "mining"
	case Fork:
		return "fork"
	case Gift:
		return "gift"
	case TransferIn:
		return "transfer_in"
	case UnknownAcquisition:
		return "unknown"
	default:
		return "invalid"
	}
}

// acquisitionMethods maps upstream transaction-type strings to variants.
// The table is data, not branching logic: a transaction type missing here is
// an error, never a silent default.
var acquisitionMethods = map[string]AcquisitionMethod{
	"purchase":    Purchase,
	"buy":         Purchase,
	"swap":        Swap,
	"trade":       Swap,
	"airdrop":     Airdrop,
	"mining":      Mining,
	"mined":       Mining,
	"fork":        Fork,
	"gift":        Gift,
	"transfer_in": TransferIn,
	"transfer-in": TransferIn,
	"deposit":     TransferIn,
	"unknown":     UnknownAcquisition,
}

// ParseAcquisitionMethod maps an upstream transaction-type string to its
// variant. Unrecognized strings fail loudly so that new upstream types are
// surfaced instead of being coerced to Unknown.
func ParseAcquisitionMethod(s string) (AcquisitionMethod, error) {
	m, ok := acquisitionMethods[s]
	if !ok {
		return 0, fmt.Errorf("unknown acquisition method: %q", s)
	}
	return m, nil
}

func (m AcquisitionMethod) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *AcquisitionMethod) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid acquisition method: %s", s)
	}
	v, err := ParseAcquisitionMethod(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*m = v
	return nil
}
