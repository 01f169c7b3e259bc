package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/sentrywallet/sentry/lib/block/types"
)

// inheritanceABI is the part of the SentryInheritance contract used by the wallet.
//
//	nominees(address)           view, share assigned by the owner (0 if unset)
//	setNominee(address,uint256) sets beneficiary and share for msg.sender
const inheritanceABI = `[
	{"type":"function","name":"nominees","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"setNominee","stateMutability":"nonpayable",
	 "inputs":[{"name":"nominee","type":"address"},{"name":"share","type":"uint256"}],
	 "outputs":[]}
]`

const maxShare = 100

var registryABI = mustABI(inheritanceABI) //nolint:gochecknoglobals // parsed once

func mustABI(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}

	return a
}

// Share calls nominees(owner) on the registry.
func (e *Ethereum) Share(ctx context.Context, owner string) (uint8, error) {
	if e.registry == nil {
		return 0, types.ErrNoRegistry
	}

	if !common.IsHexAddress(owner) {
		return 0, types.ErrBadAddress
	}

	data, err := registryABI.Pack("nominees", common.HexToAddress(owner))
	if err != nil {
		return 0, err
	}

	out, err := e.c.CallContract(ctx, geth.CallMsg{To: e.registry, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("nominees call failed: %w", err)
	}

	vals, err := registryABI.Unpack("nominees", out)
	if err != nil {
		return 0, fmt.Errorf("cannot decode nominees result: %w", err)
	}

	share, ok := vals[0].(*big.Int)
	if !ok || !share.IsUint64() || share.Uint64() > maxShare {
		return 0, types.ErrBadShareValue
	}

	return uint8(share.Uint64()), nil
}

// SetNominee submits setNominee(beneficiary, share) signed with key. The returned handle is confirmed with Wait.
func (e *Ethereum) SetNominee(ctx context.Context, key []byte, beneficiary string,
	share uint8) (types.Pending, error) {
	if e.registry == nil {
		return types.Pending{}, types.ErrNoRegistry
	}

	if !common.IsHexAddress(beneficiary) {
		return types.Pending{}, types.ErrBadAddress
	}

	if share == 0 || share > maxShare {
		return types.Pending{}, types.ErrBadShare
	}

	data, err := registryABI.Pack("setNominee", common.HexToAddress(beneficiary), new(big.Int).SetUint64(uint64(share)))
	if err != nil {
		return types.Pending{}, err
	}

	return e.transact(ctx, key, *e.registry, nil, data)
}

// revertReason replays the failed transaction at its block and extracts the revert reason from the node error.
func (e *Ethereum) revertReason(ctx context.Context, hash common.Hash, blockNumber *big.Int) string {
	tx, _, err := e.c.TransactionByHash(ctx, hash)
	if err != nil {
		return ""
	}

	from, err := gethtypes.Sender(e.signer, tx)
	if err != nil {
		return ""
	}

	_, err = e.c.CallContract(ctx, geth.CallMsg{
		From:  from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}, blockNumber)
	if err == nil {
		return ""
	}

	return reasonOf(err)
}

// reasonOf decodes an Error(string) revert payload carried by a node error, falling back to the error message.
func reasonOf(err error) string {
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if b, errDec := hexutil.Decode(s); errDec == nil {
				if reason, errUnp := abi.UnpackRevert(b); errUnp == nil {
					return reason
				}
			}
		}
	}

	return strings.TrimPrefix(err.Error(), "execution reverted: ")
}
