package observability

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/app/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-checkout/app/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFallsBackToNop(t *testing.T) {
	tel := New(nil, nil, nil, nil)

	assert.NotNil(t, tel.Tracer())
	assert.NotNil(t, tel.Logger())
	assert.NotPanics(t, func() {
		tel.Metrics().Counter(observability.MUsecaseRequests).Add(1)
		tel.Metrics().Histogram(observability.MUsecaseDuration).Observe(0.1)
	})
}

func TestRegisterDefaultsWiresEveryKey(t *testing.T) {
	reg := prometheus.NewRegistry()
	counters, histograms := RegisterDefaults(prometrics.NewWithRegisterer(reg, "", ""))
	tel := New(nil, nil, counters, histograms)

	tel.Metrics().Counter(observability.MStockCompensations).Add(1, observability.L("outcome", "success"))
	tel.Metrics().Counter(observability.MCartWriteConflicts).Add(1,
		observability.L("use_case", "cart.add_item"),
		observability.L("resolution", "retried"),
	)

	n, err := testutil.GatherAndCount(reg, "stock_compensations_total", "cart_write_conflicts_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// unknown keys degrade to nop instead of panicking
	assert.NotPanics(t, func() {
		tel.Metrics().Counter("does_not_exist").Add(1)
	})
}
