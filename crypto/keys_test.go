package crypto

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseAddressForms(t *testing.T) {
	hex := "0x00000000000000000000000000000000000000A1"
	addr, err := ParseAddress("  " + hex + "  ")
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if addr != common.HexToAddress(hex) {
		t.Fatalf("unexpected address %s", addr.Hex())
	}

	encoded := Bech32(addr)
	if !strings.HasPrefix(encoded, HRP+"1") {
		t.Fatalf("unexpected bech32 prefix: %s", encoded)
	}
	roundTrip, err := ParseAddress(encoded)
	if err != nil {
		t.Fatalf("parse bech32: %v", err)
	}
	if roundTrip != addr {
		t.Fatalf("bech32 round trip mismatch: %s != %s", roundTrip.Hex(), addr.Hex())
	}
}

func TestParseAddressRejects(t *testing.T) {
	cases := []struct {
		input string
		want  error
	}{
		{input: "", want: ErrInvalidAddress},
		{input: "0x1234", want: ErrInvalidAddress},
		{input: "not-an-addr", want: ErrInvalidAddress},
		{input: "0x0000000000000000000000000000000000000000", want: ErrZeroAddress},
	}
	for _, tc := range cases {
		if _, err := ParseAddress(tc.input); !errors.Is(err, tc.want) {
			t.Fatalf("ParseAddress(%q): expected %v, got %v", tc.input, tc.want, err)
		}
	}
}

func TestModuleAddressDeterministic(t *testing.T) {
	if ModuleAddress("lending-pool") != ModuleAddress("lending-pool") {
		t.Fatalf("module address must be deterministic")
	}
	if ModuleAddress("lending-pool") == ModuleAddress("vault") {
		t.Fatalf("distinct labels must yield distinct addresses")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "alice.json")
	if err := SaveToKeystore(path, key, "secret", LightScrypt); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "secret")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if loaded.Address() != key.Address() {
		t.Fatalf("address mismatch after reload")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}
