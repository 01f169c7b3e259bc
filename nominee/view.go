package nominee

import (
	"fmt"

	"github.com/sentrywallet/sentry/lib/store"
)

// Status is the state of the nominee view.
type Status int

// View states. Loading leads to Ready, a submission goes through Validating, SavingOffchain and SavingOnchain to
// Success; Error may follow any of them and the form is usable again.
const (
	Idle Status = iota
	Loading
	Ready
	Validating
	SavingOffchain
	SavingOnchain
	Success
	Error
)

var statusNames = [...]string{"Idle", "Loading", "Ready", "Validating", "SavingOffchain", "SavingOnchain", "Success",
	"Error"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}

	return statusNames[s]
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	for i, n := range statusNames {
		if n == string(b) {
			*s = Status(i)

			return nil
		}
	}

	return fmt.Errorf("unknown status %q", b)
}

// Saving reports whether a save sequence is running; the form must not be submitted meanwhile.
func (s Status) Saving() bool {
	return s == Validating || s == SavingOffchain || s == SavingOnchain
}

// View is the combined nominee state of an account. It is rebuilt from the stores on every mount and never persisted.
// Tentative holds the share submitted on-chain until its confirmation; Partial is set when the email was saved but the
// on-chain update failed.
type View struct {
	Account   string               `json:"account"`
	OffChain  *store.NomineeRecord `json:"offChain,omitempty"`
	OnChain   *Share               `json:"onChain,omitempty"`
	Tentative *Share               `json:"tentative,omitempty"`
	Input     Input                `json:"input"`
	Status    Status               `json:"status"`
	Message   string               `json:"message,omitempty"`
	Partial   bool                 `json:"partial,omitempty"`
}

func (v View) clone() View {
	c := v

	if v.OffChain != nil {
		rec := *v.OffChain
		c.OffChain = &rec
	}

	if v.OnChain != nil {
		s := *v.OnChain
		c.OnChain = &s
	}

	if v.Tentative != nil {
		s := *v.Tentative
		c.Tentative = &s
	}

	return c
}
