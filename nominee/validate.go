package nominee

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	minShare = 1
	maxShare = 100
)

// addressRe accepts 0x and 40 hex digits in any case: checksums are not verified.
var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// User-facing validation messages.
const (
	MsgRequired   = "All fields are required."
	MsgBadAddress = "Invalid nominee address."
	MsgBadShare   = "Share percentage must be a number between 1 and 100."
)

// ValidAddress reports whether s is a chain address in fixed-length hex form. The 0x prefix is required: 40 hex digits
// without it are rejected, unlike ethers' isAddress. Mixed case is accepted without checking the EIP-55 checksum.
func ValidAddress(s string) bool {
	return addressRe.MatchString(s)
}

// ParseShare parses a base-10 integer share and reports whether it lies within [1,100].
func ParseShare(s string) (uint8, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < minShare || n > maxShare {
		return 0, false
	}

	return uint8(n), true
}

// Validate checks the form input in a fixed order: required fields, address format, then share bounds. Only the
// first failing check is reported.
func Validate(in Input) error {
	switch {
	case in.Email == "":
		return &ValidationError{Field: "email", Msg: MsgRequired}
	case in.Address == "":
		return &ValidationError{Field: "address", Msg: MsgRequired}
	case in.Share == "":
		return &ValidationError{Field: "share", Msg: MsgRequired}
	}

	if !ValidAddress(in.Address) {
		return &ValidationError{Field: "address", Msg: MsgBadAddress}
	}

	if _, ok := ParseShare(in.Share); !ok {
		return &ValidationError{Field: "share", Msg: MsgBadShare}
	}

	return nil
}
