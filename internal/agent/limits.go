package agent

import (
	"errors"
	"fmt"
	"time"
)

// Default run limits.
const (
	DefaultMaxSteps    = 20
	DefaultStallWindow = 3
)

// RunLimits bounds a single run. The zero value of each optional field
// disables that limit.
type RunLimits struct {
	// MaxSteps is the number of Think calls allowed. Must be >= 1.
	MaxSteps int

	// MaxDuration bounds wall-clock time for the run. 0 means none.
	MaxDuration time.Duration

	// StallWindow is the number of consecutive identical cycles that ends
	// the run with "no progress". 0 disables detection; 1 is invalid since
	// every cycle would count as a stall.
	StallWindow int

	// MaxMessages caps memory length through oldest-first eviction. 0
	// means no truncation.
	MaxMessages int
}

func DefaultLimits() RunLimits {
	return RunLimits{
		MaxSteps:    DefaultMaxSteps,
		StallWindow: DefaultStallWindow,
	}
}

func (l RunLimits) Validate() error {
	var errs []error
	if l.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("max_steps must be >= 1, got %d", l.MaxSteps))
	}
	if l.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("max_duration must not be negative, got %s", l.MaxDuration))
	}
	if l.StallWindow < 0 || l.StallWindow == 1 {
		errs = append(errs, fmt.Errorf("stall_window must be 0 (disabled) or >= 2, got %d", l.StallWindow))
	}
	if l.MaxMessages < 0 {
		errs = append(errs, fmt.Errorf("max_messages must not be negative, got %d", l.MaxMessages))
	}
	return errors.Join(errs...)
}
