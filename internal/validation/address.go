package validation

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IsValidEthAddress reports whether addr is "0x" followed by exactly 40 hex
// digits. Mixed case is accepted without checking the EIP-55 checksum.
func IsValidEthAddress(addr string) bool {
	return len(addr) == 2+2*common.AddressLength &&
		strings.HasPrefix(addr, "0x") &&
		common.IsHexAddress(addr)
}

// SanitizeAddress trims and lowercases an address, adding the 0x prefix
// to a bare 40-character hex string.
func SanitizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if len(addr) == 2*common.AddressLength && !strings.HasPrefix(addr, "0x") {
		return "0x" + addr
	}
	return addr
}

// ChecksumAddress returns the EIP-55 form of a valid address, or the input
// unchanged when it is not one.
func ChecksumAddress(addr string) string {
	if IsValidEthAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return addr
}
