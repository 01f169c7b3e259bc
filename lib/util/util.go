// Package util contains helper functions used around the code.
package util

import (
	"errors"
	"math/big"
	"strings"
)

// weiPerEther is 10^18.
var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil) //nolint:gochecknoglobals,gomnd // constant

// ErrBadAmount is returned for amounts that are not a decimal number of ether with at most 18 decimals.
var ErrBadAmount = errors.New("invalid ether amount")

// ParseEther converts a decimal amount of ether (ie. "0.25") to wei.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "eE/") { // SetString accepts exponents and fractions
		return nil, ErrBadAmount
	}

	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, ErrBadAmount
	}

	r.Mul(r, new(big.Rat).SetInt(weiPerEther))
	if !r.IsInt() {
		return nil, ErrBadAmount
	}

	return new(big.Int).Set(r.Num()), nil
}

// FormatEther returns wei as a decimal amount of ether rounded to the given number of decimals.
func FormatEther(wei *big.Int, decimals int) string {
	if wei == nil {
		wei = new(big.Int)
	}

	return new(big.Rat).SetFrac(wei, weiPerEther).FloatString(decimals)
}
