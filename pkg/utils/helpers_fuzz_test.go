package utils

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

// FuzzHexToAddress checks that HexToAddress never panics and that accepted
// input round-trips through NormalizeAddress.
// Run with: go test -fuzz=FuzzHexToAddress -fuzztime=30s ./pkg/utils/
func FuzzHexToAddress(f *testing.F) {
	f.Add("")
	f.Add("0x")
	f.Add("0x0")
	f.Add("0x2")
	f.Add("0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef")
	f.Add("0xGGGG")
	f.Add("0x" + string(make([]byte, 1000)))

	f.Fuzz(func(t *testing.T, input string) {
		addr, err := HexToAddress(input)
		if err != nil {
			return
		}
		normalized, err := NormalizeAddress(input)
		require.NoError(t, err)
		require.Equal(t, "0x"+hex.EncodeToString(addr[:]), normalized)
	})
}
