package fingerprint

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"reelpipe/internal/services"
)

// Fingerprint is a 64-bit perceptual hash.
type Fingerprint uint64

// Parse decodes the 16 hex character form stored on items.
func Parse(value string) (Fingerprint, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if len(value) != 16 {
		return 0, fmt.Errorf("%w: fingerprint %q must be 16 hex characters", services.ErrInvariant, value)
	}
	v, err := strconv.ParseUint(value, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: fingerprint %q: %w", services.ErrInvariant, value, err)
	}
	return Fingerprint(v), nil
}

// String renders the fingerprint as 16 lowercase hex characters.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b Fingerprint) int {
	return bits.OnesCount64(uint64(a ^ b))
}
