package chronos

import (
	"fmt"
	"math"
	"strings"
)

// DuplicatePolicy decides what happens when a sample arrives for a
// timestamp that already holds a value.
type DuplicatePolicy uint8

const (
	// DuplicatePolicyBlock rejects the new sample and keeps the old one.
	DuplicatePolicyBlock DuplicatePolicy = iota
	// DuplicatePolicyFirst keeps the old value.
	DuplicatePolicyFirst
	// DuplicatePolicyLast keeps the new value.
	DuplicatePolicyLast
	// DuplicatePolicyMin keeps the lower value.
	DuplicatePolicyMin
	// DuplicatePolicyMax keeps the higher value.
	DuplicatePolicyMax
	// DuplicatePolicySum stores the sum of both values.
	DuplicatePolicySum
)

// String returns the policy name.
func (p DuplicatePolicy) String() string {
	switch p {
	case DuplicatePolicyBlock:
		return "block"
	case DuplicatePolicyFirst:
		return "first"
	case DuplicatePolicyLast:
		return "last"
	case DuplicatePolicyMin:
		return "min"
	case DuplicatePolicyMax:
		return "max"
	case DuplicatePolicySum:
		return "sum"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// ParseDuplicatePolicy parses a policy name, case-insensitively.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(s) {
	case "block":
		return DuplicatePolicyBlock, nil
	case "first":
		return DuplicatePolicyFirst, nil
	case "last":
		return DuplicatePolicyLast, nil
	case "min":
		return DuplicatePolicyMin, nil
	case "max":
		return DuplicatePolicyMax, nil
	case "sum":
		return DuplicatePolicySum, nil
	default:
		return 0, fmt.Errorf("invalid duplicate policy %q", s)
	}
}

func duplicatePolicyFromByte(b uint8) (DuplicatePolicy, error) {
	if b > uint8(DuplicatePolicySum) {
		return 0, fmt.Errorf("invalid duplicate policy byte %d", b)
	}
	return DuplicatePolicy(b), nil
}

// ValueOnDuplicate resolves the stored value for a duplicated
// timestamp. A NaN on either side always loses to the valid value, for
// every policy except Block.
func (p DuplicatePolicy) ValueOnDuplicate(ts int64, oldValue, newValue float64) (float64, error) {
	if p != DuplicatePolicyBlock && (math.IsNaN(oldValue) || math.IsNaN(newValue)) {
		if math.IsNaN(newValue) {
			return oldValue, nil
		}
		return newValue, nil
	}

	switch p {
	case DuplicatePolicyBlock:
		return 0, fmt.Errorf("%w for timestamp %d", ErrDuplicateSample, ts)
	case DuplicatePolicyFirst:
		return oldValue, nil
	case DuplicatePolicyLast:
		return newValue, nil
	case DuplicatePolicyMin:
		return math.Min(oldValue, newValue), nil
	case DuplicatePolicyMax:
		return math.Max(oldValue, newValue), nil
	case DuplicatePolicySum:
		return oldValue + newValue, nil
	default:
		return 0, fmt.Errorf("invalid duplicate policy %d", uint8(p))
	}
}
