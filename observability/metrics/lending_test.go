package metrics

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLendingOperationCounters(t *testing.T) {
	m := Lending()
	before := testutil.ToFloat64(m.operations.WithLabelValues("borrow", "ok"))
	m.ObserveOperation("borrow", "", time.Now())
	if got := testutil.ToFloat64(m.operations.WithLabelValues("borrow", "ok")); got != before+1 {
		t.Fatalf("expected ok result to be counted, got %v", got)
	}
	m.ObserveOperation("", "InsufficientCollateral", time.Now())
	if got := testutil.ToFloat64(m.operations.WithLabelValues("unknown", "InsufficientCollateral")); got < 1 {
		t.Fatalf("expected unknown action bucket, got %v", got)
	}

	m.SetMarketTotal("deposited", big.NewInt(1200))
	if got := testutil.ToFloat64(m.marketTotals.WithLabelValues("deposited")); got != 1200 {
		t.Fatalf("unexpected market total %v", got)
	}
	m.SetVaultAssets(nil)
	if got := testutil.ToFloat64(m.vaultAssets); got != 0 {
		t.Fatalf("nil amount should publish zero, got %v", got)
	}

	var nilMetrics *LendingMetrics
	nilMetrics.ObserveOperation("deposit", "", time.Now())
	nilMetrics.IncFlashLoan()
	nilMetrics.IncIndexerFailure()
}
