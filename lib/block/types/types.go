// Package types common blockchain types.
package types

import (
	"errors"
	"fmt"
)

// Pending is the handle of a transaction submitted to the network and not yet confirmed.
type Pending struct {
	Hash  string `json:"hash"`
	From  string `json:"from"`
	To    string `json:"to"`
	Nonce uint64 `json:"nonce"`
}

// RevertError is returned when a submitted transaction was mined but failed.
type RevertError struct {
	Hash   string
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction %s reverted", e.Hash)
	}

	return fmt.Sprintf("transaction %s reverted: %s", e.Hash, e.Reason)
}

// Is makes errors.Is(err, ErrReverted) hold for any RevertError.
func (e *RevertError) Is(target error) bool {
	return target == ErrReverted
}

// Error codes.
var (
	ErrReverted      = errors.New("transaction reverted")
	ErrBadAddress    = errors.New("invalid address")
	ErrBadKey        = errors.New("invalid private key")
	ErrBadShare      = errors.New("share must be between 1 and 100")
	ErrNoRegistry    = errors.New("registry contract address not configured")
	ErrNoNode        = errors.New("blockchain node url not configured")
	ErrWrongAmt      = errors.New("amount must be a positive number of ether")
	ErrBadShareValue = errors.New("registry returned a share out of range")
)
