package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// HRP is the human-readable prefix used when rendering accounts in bech32.
const HRP = "yei"

var (
	ErrInvalidAddress = errors.New("crypto: invalid address")
	ErrZeroAddress    = errors.New("crypto: zero address")
)

// ParseAddress accepts either a 0x-prefixed hex account or its bech32 form
// and rejects the zero address.
func ParseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return common.Address{}, ErrInvalidAddress
	}
	var addr common.Address
	if strings.HasPrefix(strings.ToLower(trimmed), HRP+"1") {
		decoded, err := DecodeBech32(trimmed)
		if err != nil {
			return common.Address{}, err
		}
		addr = decoded
	} else {
		if !common.IsHexAddress(trimmed) {
			return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, trimmed)
		}
		addr = common.HexToAddress(trimmed)
	}
	if addr == (common.Address{}) {
		return common.Address{}, ErrZeroAddress
	}
	return addr, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(raw string) common.Address {
	addr, err := ParseAddress(raw)
	if err != nil {
		panic(err)
	}
	return addr
}

// Bech32 renders the account with the protocol prefix.
func Bech32(addr common.Address) string {
	conv, err := bech32.ConvertBits(addr.Bytes(), 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(HRP, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// DecodeBech32 parses an account rendered by Bech32.
func DecodeBech32(addrStr string) (common.Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != HRP {
		return common.Address{}, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidAddress, prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return common.Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != common.AddressLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, common.AddressLength, len(conv))
	}
	return common.BytesToAddress(conv), nil
}

// ModuleAddress derives the deterministic holder account of a protocol
// module, e.g. the lending pool or a vault. No private key exists for it.
func ModuleAddress(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("yei/module/" + label))[12:])
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// Address returns the account controlled by the key.
func (k *PrivateKey) Address() common.Address {
	return crypto.PubkeyToAddress(k.PrivateKey.PublicKey)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
