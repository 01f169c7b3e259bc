// Package ethereum implements the blockchain interfaces for ethereum-compatible networks (ie. BlockDAG) reached via a
// JSON-RPC node.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/sentrywallet/sentry/lib/block/types"
)

// DefaultPoll is the receipt polling interval used when none is configured.
const DefaultPoll = 2 * time.Second

// backend contains the node methods used. It is satisfied by *ethclient.Client.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg geth.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error)
	CallContract(ctx context.Context, msg geth.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Ethereum implements a connection to an ethereum-type chain and its inheritance registry.
type Ethereum struct {
	c        backend
	chainID  *big.Int
	signer   gethtypes.Signer
	registry *common.Address // nil when no registry is configured
	poll     time.Duration
}

// Init returns a connection to an ethereum node, using secret if necessary for Basic authentication. registry is the
// address of the inheritance contract and may be empty. poll is the interval between receipt checks.
func Init(ctx context.Context, node, secret, registry string, poll time.Duration) (*Ethereum, error) {
	var opts []rpc.ClientOption
	if secret != "" {
		opts = append(opts, rpc.WithHeader("Authorization", "Basic "+secret))
	}

	rc, err := rpc.DialOptions(ctx, node, opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to ethereum blockchain in %s: %w", node, err)
	}

	e, err := newWithBackend(ctx, ethclient.NewClient(rc), registry, poll)
	if err != nil {
		rc.Close()

		return nil, err
	}

	return e, nil
}

func newWithBackend(ctx context.Context, c backend, registry string, poll time.Duration) (*Ethereum, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot get chain id: %w", err)
	}

	if poll <= 0 {
		poll = DefaultPoll
	}

	e := &Ethereum{
		c:       c,
		chainID: chainID,
		signer:  gethtypes.LatestSignerForChainID(chainID),
		poll:    poll,
	}

	if registry != "" {
		if !common.IsHexAddress(registry) {
			return nil, fmt.Errorf("registry %s: %w", registry, types.ErrBadAddress)
		}

		addr := common.HexToAddress(registry)
		e.registry = &addr
	}

	return e, nil
}

// Close ends a connection
func (e *Ethereum) Close() {
	e.c.Close()
}

// HasRegistry reports whether an inheritance contract address was configured.
func (e *Ethereum) HasRegistry() bool {
	return e.registry != nil
}

// Balance returns the native balance in wei of address.
func (e *Ethereum) Balance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, types.ErrBadAddress
	}

	return e.c.BalanceAt(ctx, common.HexToAddress(address), nil)
}

// Send transfers amount wei from the account owning key to the given address.
func (e *Ethereum) Send(ctx context.Context, key []byte, to string, amount *big.Int) (types.Pending, error) {
	if !common.IsHexAddress(to) {
		return types.Pending{}, types.ErrBadAddress
	}

	if amount == nil || amount.Sign() <= 0 {
		return types.Pending{}, types.ErrWrongAmt
	}

	return e.transact(ctx, key, common.HexToAddress(to), amount, nil)
}

// Wait polls the node for the receipt of the pending transaction until it is mined or ctx is done. If the transaction
// failed, the call is replayed at its block to recover the revert reason.
func (e *Ethereum) Wait(ctx context.Context, p types.Pending) error {
	hash := common.HexToHash(p.Hash)

	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	for {
		r, err := e.c.TransactionReceipt(ctx, hash)

		switch {
		case err == nil:
			if r.Status == gethtypes.ReceiptStatusFailed {
				return &types.RevertError{Hash: p.Hash, Reason: e.revertReason(ctx, hash, r.BlockNumber)}
			}

			return nil
		case !errors.Is(err, geth.NotFound):
			return fmt.Errorf("cannot get receipt of %s: %w", p.Hash, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// transact signs and submits a legacy transaction from the account owning key.
func (e *Ethereum) transact(ctx context.Context, key []byte, to common.Address, value *big.Int,
	data []byte) (types.Pending, error) {
	prv, err := crypto.ToECDSA(key)
	if err != nil {
		return types.Pending{}, fmt.Errorf("%w: %v", types.ErrBadKey, err) //nolint:errorlint // key errors are not inspected
	}

	from := crypto.PubkeyToAddress(prv.PublicKey)

	if value == nil {
		value = new(big.Int)
	}

	nonce, err := e.c.PendingNonceAt(ctx, from)
	if err != nil {
		return types.Pending{}, fmt.Errorf("cannot get nonce of %s: %w", from.Hex(), err)
	}

	price, err := e.c.SuggestGasPrice(ctx)
	if err != nil {
		return types.Pending{}, fmt.Errorf("cannot get gas price: %w", err)
	}

	gas, err := e.c.EstimateGas(ctx, geth.CallMsg{From: from, To: &to, Value: value, Data: data})
	if err != nil {
		return types.Pending{}, fmt.Errorf("cannot estimate gas: %w", err)
	}

	tx, err := e.sign(prv, &gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: price,
		Data:     data,
	})
	if err != nil {
		return types.Pending{}, err
	}

	if err = e.c.SendTransaction(ctx, tx); err != nil {
		return types.Pending{}, err
	}

	return types.Pending{Hash: tx.Hash().Hex(), From: from.Hex(), To: to.Hex(), Nonce: nonce}, nil
}

func (e *Ethereum) sign(prv *ecdsa.PrivateKey, ltx *gethtypes.LegacyTx) (*gethtypes.Transaction, error) {
	tx, err := gethtypes.SignTx(gethtypes.NewTx(ltx), e.signer, prv)
	if err != nil {
		return nil, fmt.Errorf("cannot sign transaction: %w", err)
	}

	return tx, nil
}
