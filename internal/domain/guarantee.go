package domain

import (
	"fmt"
	"strings"
)

// DeliveryGuarantee selects how duplicates and gaps are handled across
// retries and restarts.
type DeliveryGuarantee int

const (
	// AtLeastOnce appends to the table's default stream without offsets.
	// Rows replayed after a restart may be written twice.
	AtLeastOnce DeliveryGuarantee = iota

	// ExactlyOnce appends to a dedicated stream with explicit offsets so the
	// service rejects rows that were already written.
	ExactlyOnce
)

// String returns the configuration name of the guarantee.
func (g DeliveryGuarantee) String() string {
	switch g {
	case AtLeastOnce:
		return "at-least-once"
	case ExactlyOnce:
		return "exactly-once"
	default:
		return "unknown"
	}
}

// ParseDeliveryGuarantee converts a configuration value to a DeliveryGuarantee.
// Underscores and case are ignored, so "AT_LEAST_ONCE" is accepted.
func ParseDeliveryGuarantee(s string) (DeliveryGuarantee, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "", "at-least-once":
		return AtLeastOnce, nil
	case "exactly-once":
		return ExactlyOnce, nil
	default:
		return AtLeastOnce, fmt.Errorf("%w: unknown delivery guarantee %q", ErrInvalidConfig, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (g DeliveryGuarantee) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *DeliveryGuarantee) UnmarshalText(b []byte) error {
	v, err := ParseDeliveryGuarantee(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}
