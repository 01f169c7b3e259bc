// Package demo implements the blockchain interfaces in memory. Every account starts with the same balance, the
// registry is always available and transactions are confirmed as soon as they are submitted.
package demo

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/sentrywallet/sentry/lib/block/types"
)

// StartBalance is the balance in wei of an account never seen before (1250.5 ether).
var StartBalance, _ = new(big.Int).SetString("1250500000000000000000", 10) //nolint:gochecknoglobals // demo value

// ErrFunds is returned when sending more than the account balance.
var ErrFunds = errors.New("insufficient funds for transfer")

// Demo is the in-memory chain.
type Demo struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	shares   map[common.Address]uint8
	reverted map[string]string // tx hash -> revert reason
	nonces   map[common.Address]uint64
	revert   *string // reason for reverting the next registry call
}

// New returns an empty demo chain.
func New() *Demo {
	return &Demo{
		balances: make(map[common.Address]*big.Int),
		shares:   make(map[common.Address]uint8),
		reverted: make(map[string]string),
		nonces:   make(map[common.Address]uint64),
	}
}

// Close does nothing.
func (d *Demo) Close() {}

// HasRegistry is always true for the demo chain.
func (d *Demo) HasRegistry() bool { return true }

// RevertNext makes the next SetNominee transaction fail on confirmation with the given reason.
func (d *Demo) RevertNext(reason string) {
	d.mu.Lock()
	d.revert = &reason
	d.mu.Unlock()
}

// balance must be called with the lock held.
func (d *Demo) balance(a common.Address) *big.Int {
	b, ok := d.balances[a]
	if !ok {
		b = new(big.Int).Set(StartBalance)
		d.balances[a] = b
	}

	return b
}

// Balance returns the balance of address.
func (d *Demo) Balance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, types.ErrBadAddress
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return new(big.Int).Set(d.balance(common.HexToAddress(address))), nil
}

// Send moves amount from the account owning key to address.
func (d *Demo) Send(ctx context.Context, key []byte, to string, amount *big.Int) (types.Pending, error) {
	if !common.IsHexAddress(to) {
		return types.Pending{}, types.ErrBadAddress
	}

	if amount == nil || amount.Sign() <= 0 {
		return types.Pending{}, types.ErrWrongAmt
	}

	from, err := owner(key)
	if err != nil {
		return types.Pending{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	fb := d.balance(from)
	if fb.Cmp(amount) < 0 {
		return types.Pending{}, ErrFunds
	}

	dest := common.HexToAddress(to)
	fb.Sub(fb, amount)
	tb := d.balance(dest)
	tb.Add(tb, amount)

	return d.pending(from, dest), nil
}

// Share returns the share set by owner, 0 if unset.
func (d *Demo) Share(ctx context.Context, owner string) (uint8, error) {
	if !common.IsHexAddress(owner) {
		return 0, types.ErrBadAddress
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.shares[common.HexToAddress(owner)], nil
}

// SetNominee records the share of the account owning key unless a revert was requested with RevertNext.
func (d *Demo) SetNominee(ctx context.Context, key []byte, beneficiary string, share uint8) (types.Pending, error) {
	if !common.IsHexAddress(beneficiary) {
		return types.Pending{}, types.ErrBadAddress
	}

	if share == 0 || share > 100 {
		return types.Pending{}, types.ErrBadShare
	}

	from, err := owner(key)
	if err != nil {
		return types.Pending{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.pending(from, common.HexToAddress(beneficiary))

	if d.revert != nil {
		d.reverted[p.Hash] = *d.revert
		d.revert = nil

		return p, nil
	}

	d.shares[from] = share

	return p, nil
}

// Wait returns at once: nil, or a *types.RevertError for a reverted transaction.
func (d *Demo) Wait(ctx context.Context, p types.Pending) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if reason, ok := d.reverted[p.Hash]; ok {
		return &types.RevertError{Hash: p.Hash, Reason: reason}
	}

	return nil
}

// pending must be called with the lock held.
func (d *Demo) pending(from, to common.Address) types.Pending {
	nonce := d.nonces[from]
	d.nonces[from] = nonce + 1

	hash := crypto.Keccak256Hash(from.Bytes(), to.Bytes(), new(big.Int).SetUint64(nonce).Bytes())

	return types.Pending{Hash: hash.Hex(), From: from.Hex(), To: to.Hex(), Nonce: nonce}
}

func owner(key []byte) (common.Address, error) {
	prv, err := crypto.ToECDSA(key)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", types.ErrBadKey, err) //nolint:errorlint // not inspected
	}

	return crypto.PubkeyToAddress(prv.PublicKey), nil
}
