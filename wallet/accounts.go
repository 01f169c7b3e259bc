package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tarancss/hd"

	"github.com/sentrywallet/sentry/nominee"
)

const (
	maxAccountLen = 128
	hardened      = 0x80000000
)

// ErrBadAccount is returned for empty or overlong account ids.
var ErrBadAccount = errors.New("invalid account id")

// walletIndex maps an account id to the HD wallet number holding its keys. The hardened range is left to the HD
// derivation.
func walletIndex(id string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))

	return h.Sum32() &^ hardened
}

// account returns the custodial address and key of the account: first external address of its HD wallet.
func (w *Wallet) account(id string) (nominee.Account, error) {
	if id == "" || len(id) > maxAccountLen {
		return nominee.Account{}, ErrBadAccount
	}

	addr, key, _, err := w.hd.Address(walletIndex(id), hd.External, 0)
	if err != nil {
		return nominee.Account{}, fmt.Errorf("cannot derive keys for account %s: %w", id, err)
	}

	return nominee.Account{
		ID:      id,
		Address: common.HexToAddress("0x" + hex.EncodeToString(addr)).Hex(),
		Key:     key,
	}, nil
}
