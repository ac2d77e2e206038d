package utils

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AddressLength is the size of a Sui address or object ID.
const AddressLength = 32

var ErrAddressTooLong = errors.New("address longer than 32 bytes")

// HexToAddress parses a Sui address (with or without 0x prefix). Short forms
// such as 0x2 are left-padded with zeros, matching how Sui normalises
// addresses.
func HexToAddress(hexStr string) ([AddressLength]byte, error) {
	hexStr = strings.TrimPrefix(hexStr, "0x")
	if len(hexStr) > 2*AddressLength {
		return [AddressLength]byte{}, fmt.Errorf("%w: %d hex characters", ErrAddressTooLong, len(hexStr))
	}
	hexStr = strings.Repeat("0", 2*AddressLength-len(hexStr)) + hexStr
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return [AddressLength]byte{}, err
	}
	var result [AddressLength]byte
	copy(result[:], b)
	return result, nil
}

// NormalizeAddress returns the canonical 0x-prefixed 64 character lowercase
// form of a Sui address.
func NormalizeAddress(hexStr string) (string, error) {
	addr, err := HexToAddress(strings.ToLower(hexStr))
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(addr[:]), nil
}
