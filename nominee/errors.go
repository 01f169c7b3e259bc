package nominee

import (
	"errors"
	"fmt"
)

// ErrInFlight is returned when a load or a save is requested while another one has not finished.
var ErrInFlight = errors.New("a nominee load or save is already in progress")

// ValidationError is a local, pre-write rejection of the form input. No store was touched.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// LoadError is returned by Mount when any of the records could not be read.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return "cannot load nominee: " + e.Err.Error() }

func (e *LoadError) Unwrap() error { return e.Err }

// OffchainWriteError is returned when the profile store rejected the email or was unreachable. The registry was not
// called.
type OffchainWriteError struct {
	Err error
}

func (e *OffchainWriteError) Error() string { return "off-chain write failed: " + e.Err.Error() }

func (e *OffchainWriteError) Unwrap() error { return e.Err }

// OnchainSubmitError is returned when the registry rejected the transaction before it could be confirmed. The
// off-chain email stays saved.
type OnchainSubmitError struct {
	Err error
}

func (e *OnchainSubmitError) Error() string { return "on-chain submit failed: " + e.Err.Error() }

func (e *OnchainSubmitError) Unwrap() error { return e.Err }

// OnchainRevertError is returned when waiting for the confirmation of the registry transaction failed. The off-chain
// email stays saved.
type OnchainRevertError struct {
	Hash   string
	Reason string
	Err    error
}

func (e *OnchainRevertError) Error() string {
	return fmt.Sprintf("on-chain transaction %s failed: %s", e.Hash, e.Reason)
}

func (e *OnchainRevertError) Unwrap() error { return e.Err }

// User-facing messages that do not depend on the failure reason.
const (
	MsgSaved   = "Nominee saved successfully!"
	MsgLoad    = "Could not fetch nominee information."
	MsgBusy    = "A save is already in progress."
	MsgGeneric = "Failed to save nominee. Please try again."
)

// Message maps an error of the save or load sequence to the text shown to the user.
func Message(err error) string {
	var (
		ve *ValidationError
		le *LoadError
		oe *OffchainWriteError
		se *OnchainSubmitError
		re *OnchainRevertError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return ve.Msg
	case errors.As(err, &le):
		return MsgLoad
	case errors.As(err, &oe):
		return "Could not save nominee email: " + oe.Err.Error()
	case errors.As(err, &se):
		return "Nominee email saved, but the on-chain transaction was rejected: " + se.Err.Error()
	case errors.As(err, &re):
		if re.Reason == "" {
			return "Nominee email saved, but the on-chain transaction reverted."
		}

		return "Nominee email saved, but the on-chain transaction reverted: " + re.Reason
	case errors.Is(err, ErrInFlight):
		return MsgBusy
	}

	return MsgGeneric
}
