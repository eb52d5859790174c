package netmode

import (
	"fmt"
	"strconv"
)

const (
	// MainNet contains magic code used in the Bitcoin main network.
	MainNet Magic = 0xd9b4bef9
	// TestNet contains magic code used in the Bitcoin test network (testnet3).
	TestNet Magic = 0x0709110b
)

// Magic describes the network the ledger node operates on.
type Magic uint32

// String implements the stringer interface.
func (n Magic) String() string {
	switch n {
	case TestNet:
		return "testnet"
	case MainNet:
		return "mainnet"
	default:
		return "net 0x" + strconv.FormatUint(uint64(n), 16)
	}
}

// FromString returns the network for the given name.
func FromString(s string) (Magic, error) {
	switch s {
	case "mainnet":
		return MainNet, nil
	case "testnet":
		return TestNet, nil
	default:
		return 0, fmt.Errorf("unknown network %q", s)
	}
}
