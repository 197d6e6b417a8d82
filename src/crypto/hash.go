package crypto

import "crypto/sha256"

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	return hasher.Sum(nil)
}

// SimpleHashFromTwoHashes returns the SHA256 hash of the concatenation of left
// and right data. It is the combining step of the membership merkle tree.
func SimpleHashFromTwoHashes(left []byte, right []byte) []byte {
	hasher := sha256.New()
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}
