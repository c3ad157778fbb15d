package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetActiveSubscriptions(t *testing.T) {
	SetActiveSubscriptions(42)
	if got := testutil.ToFloat64(activeSubscriptions); got != 42 {
		t.Fatalf("gauge = %v, want 42", got)
	}

	SetActiveSubscriptions(-3)
	if got := testutil.ToFloat64(activeSubscriptions); got != 0 {
		t.Fatalf("gauge = %v, want 0 for negative count", got)
	}
}
