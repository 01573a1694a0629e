package passcode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/finsync/gatekeeper/internal/util"
)

// PIN length policy. Verification itself is hash-based and does not consult
// these bounds; they apply at entry time.
const (
	DefaultPINLength = 4
	MinPINLength     = 4
	MaxPINLength     = 8
)

// ErrInvalidPIN indicates the candidate PIN fails the composition policy.
var ErrInvalidPIN = errors.New("invalid pin")

// NormalizePIN trims surrounding whitespace and applies NFKD normalization so
// full-width digits from mobile keyboards compare equal to their ASCII forms.
func NormalizePIN(pin string) string {
	return util.Normalize(strings.TrimSpace(pin))
}

// ValidatePIN checks the composition policy: digits only, MinPINLength to
// MaxPINLength characters. Callers should pass the result of NormalizePIN.
func ValidatePIN(pin string) error {
	if len(pin) < MinPINLength || len(pin) > MaxPINLength {
		return fmt.Errorf("%w: must be %d-%d digits", ErrInvalidPIN, MinPINLength, MaxPINLength)
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: must contain only digits", ErrInvalidPIN)
		}
	}
	return nil
}
