package validator

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidAccount = errors.New("invalid account address")
	ErrInvalidTokenID = errors.New("invalid token id")
)

var (
	accountRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{1,64}$`)
	// CIS-2 token ids are at most 255 bytes, written as lowercase or uppercase hex.
	tokenIDRegex = regexp.MustCompile(`^([0-9a-fA-F]{2}){0,255}$`)
)

// ValidateAccount accepts base58 account addresses. Contract owners ("<i,s>") are not
// accounts and fail.
func ValidateAccount(account string) error {
	if !accountRegex.MatchString(account) {
		return ErrInvalidAccount
	}
	return nil
}

func ValidateTokenID(tokenID string) error {
	if !tokenIDRegex.MatchString(tokenID) {
		return ErrInvalidTokenID
	}
	return nil
}
