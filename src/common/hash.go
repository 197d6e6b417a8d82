package common

import (
	"encoding/hex"
	"fmt"
	"hash/fnv"
)

// Hash32 returns the 32-bit FNV-1a hash of data. It is used to spread member
// addresses over merkle buckets deterministically across nodes.
func Hash32(data []byte) uint32 {
	h := fnv.New32a()
	h.Write(data)
	return h.Sum32()
}

// EncodeToString returns the UPPERCASE string representation of hexBytes with
// the 0X prefix
func EncodeToString(hexBytes []byte) string {
	return fmt.Sprintf("0X%X", hexBytes)
}

// DecodeFromString converts a hex string with 0X prefix to a byte slice
func DecodeFromString(hexString string) ([]byte, error) {
	return hex.DecodeString(hexString[2:])
}
