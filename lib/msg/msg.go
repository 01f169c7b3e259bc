// Package msg defines the interface for different message brokers.
package msg

import (
	"sync"
	"time"
)

// Kinds of nominee events.
const (
	SAVED   = "saved"   // both the off-chain and on-chain records were written
	PARTIAL = "partial" // the off-chain record was written but the on-chain update failed
)

// NomineeEvent defines the message the wallet service publishes after a nominee save sequence ends with writes.
type NomineeEvent struct {
	ID          string    `json:"id"`
	Account     string    `json:"account"`
	Kind        string    `json:"kind"`
	Email       string    `json:"email"`
	Beneficiary string    `json:"beneficiary,omitempty"`
	Share       uint8     `json:"share,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	TS          time.Time `json:"ts"`
}

// MsgBroker is implemented by every message broker product.
type MsgBroker interface {
	Setup(interface{}) error
	Close() error

	SendEvent(account string, e NomineeEvent) error
	// GetEvents consumes events. Each event is acknowledged once the mutex has been unlocked by the consumer.
	GetEvents(mut *sync.Mutex) (<-chan NomineeEvent, <-chan error, error)
}
