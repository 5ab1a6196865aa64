package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// KV Store key prefix bytes
const (
	prefixOracle = iota + 1
)

// KV Store key prefixes
var (
	KeyOracle = []byte{prefixOracle}
)

// GetOracleKey returns the key for storing an oracle record
func GetOracleKey(addr common.Address) []byte {
	return append(append([]byte{}, KeyOracle...), addr.Bytes()...)
}

// ParseOracleKey parses an oracle key and returns the address
func ParseOracleKey(key []byte) (common.Address, error) {
	if len(key) != 1+common.AddressLength || key[0] != prefixOracle {
		return common.Address{}, fmt.Errorf("invalid oracle key: %x", key)
	}
	return common.BytesToAddress(key[1:]), nil
}

// prefixEnd returns the smallest key greater than every key starting with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
