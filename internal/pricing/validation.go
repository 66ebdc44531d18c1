package pricing

import (
	"fmt"

	"github.com/odyssey-erp/papertrail/internal/shared"
)

// ErrNegative marks a quantity or rate below zero.
var ErrNegative = fmt.Errorf("%w: must not be negative", shared.ErrInvalidInput)

// LineError identifies the offending line and field.
type LineError struct {
	Index int
	Field string
	Err   error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s: %v", e.Index+1, e.Field, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// ValidateLines rejects negative quantities and rates. It runs ahead of the calculator,
// which on its own treats negatives as zero.
func ValidateLines(lines []Line) error {
	for i, line := range lines {
		fields := []struct {
			name  string
			value bool
		}{
			{"quantity", line.Quantity.IsNegative()},
			{"plastic_quantity", line.PlasticQuantity.IsNegative()},
			{"material_rate", line.MaterialRate.IsNegative()},
			{"plastic_rate", line.PlasticRate.IsNegative()},
		}
		for _, f := range fields {
			if f.value {
				return &LineError{Index: i, Field: f.name, Err: ErrNegative}
			}
		}
	}
	return nil
}
