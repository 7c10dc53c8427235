package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestBroadcasterFansOutToSinksAndSubscribers(t *testing.T) {
	recorder := &Recorder{}
	b := NewBroadcaster(1, recorder, nil)

	ch, cancel := b.Subscribe()
	defer cancel()

	alice := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	b.Emit(Deposited(alice, "ybase", big.NewInt(100), common.Hash{}))
	b.Emit(Borrowed(alice, "ybase", big.NewInt(50), common.Hash{}))

	if got := recorder.Types(); len(got) != 2 || got[0] != TypeLendingDeposited || got[1] != TypeLendingBorrowed {
		t.Fatalf("unexpected sink events: %v", got)
	}
	first := <-ch
	if first.EventType() != TypeLendingDeposited {
		t.Fatalf("expected deposit first, got %s", first.EventType())
	}
	if b.Dropped() != 1 {
		t.Fatalf("expected one dropped delivery, got %d", b.Dropped())
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after cancel")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("expected no subscribers after cancel")
	}
	// Cancel is idempotent.
	cancel()
}

func TestLendingActionAttributes(t *testing.T) {
	alice := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	hash := common.HexToHash("0x01")
	ev := ToTypes(RewardsClaimed(alice, "yrwd", big.NewInt(10), hash))
	if ev.Type != TypeLendingRewardsClaimed {
		t.Fatalf("unexpected type %q", ev.Type)
	}
	if ev.Attributes["account"] != alice.Hex() {
		t.Fatalf("unexpected account attribute %q", ev.Attributes["account"])
	}
	if ev.Attributes["amount"] != "10" || ev.Attributes["asset"] != "YRWD" {
		t.Fatalf("unexpected attributes %v", ev.Attributes)
	}
	if ev.Attributes["txHash"] != hash.Hex() {
		t.Fatalf("expected tx hash attribute, got %q", ev.Attributes["txHash"])
	}
}
