package state

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var nonceKey = ethcrypto.Keccak256([]byte("state/nonce"))

// Key derives a fixed-width storage key from a namespace and the supplied
// components. Components are length-prefixed so that distinct tuples never
// collide.
func Key(namespace string, parts ...[]byte) []byte {
	buf := make([]byte, 0, len(namespace)+1+32*len(parts))
	buf = append(buf, namespace...)
	buf = append(buf, '/')
	for _, part := range parts {
		buf = append(buf, byte(len(part)>>8), byte(len(part)))
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}
