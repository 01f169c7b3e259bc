// Package block defines the interface required for blockchain or network connections.
package block

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/sentrywallet/sentry/lib/block/demo"
	"github.com/sentrywallet/sentry/lib/block/ethereum"
	"github.com/sentrywallet/sentry/lib/block/types"
	"github.com/sentrywallet/sentry/lib/config"
)

// Chain contains the account methods of a network: native balance and transfers. Keys are raw secp256k1 private keys.
type Chain interface {
	Close()
	Balance(ctx context.Context, address string) (*big.Int, error)
	Send(ctx context.Context, key []byte, to string, amount *big.Int) (types.Pending, error)
	Wait(ctx context.Context, p types.Pending) error
}

// Registry is the on-chain inheritance registry: a mapping from an account address to the share assigned to its
// nominee, and a setter that is confirmed with Wait.
type Registry interface {
	// Share returns the share assigned by owner, 0 if unset.
	Share(ctx context.Context, owner string) (uint8, error)
	// SetNominee submits the transaction setting beneficiary and share for the account owning key.
	SetNominee(ctx context.Context, key []byte, beneficiary string, share uint8) (types.Pending, error)
	// Wait blocks until the transaction is mined. A mined but failed transaction returns a *types.RevertError.
	Wait(ctx context.Context, p types.Pending) error
}

// Client is a connection to a network providing both the account methods and the registry.
type Client interface {
	Chain
	Registry
	// HasRegistry reports whether a registry contract is configured.
	HasRegistry() bool
}

// Demo is the name of the in-memory demo network.
const Demo = "demo"

// Init connects to the blockchain read from the config. The "demo" network is served in memory, any other name is
// expected to be an ethereum-compatible JSON-RPC node.
func Init(ctx context.Context, bc config.BlockConfig) (Client, error) {
	if bc.Name == Demo {
		return demo.New(), nil
	}

	if bc.Node == "" {
		return nil, fmt.Errorf("[%s] %w", bc.Name, types.ErrNoNode)
	}

	poll := time.Duration(bc.PollInterval) * time.Second

	c, err := ethereum.Init(ctx, bc.Node, bc.Secret, bc.Registry, poll)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", bc.Name, err)
	}

	return c, nil
}
