package prometrics

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/app/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterRegisteredOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg, "minishop", "")

	first := r.Counter("usecase_requests_total", "help", "use_case", "outcome")
	second := r.Counter("usecase_requests_total", "help", "use_case", "outcome")

	first.Add(1, observability.L("use_case", "cart.add_item"), observability.L("outcome", "success"))
	second.Bind(observability.L("use_case", "cart.add_item"), observability.L("outcome", "success")).Add(2)

	n, err := testutil.GatherAndCount(reg, "minishop_usecase_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	v := r.(*registry).counters["usecase_requests_total"].WithLabelValues("cart.add_item", "success")
	assert.Equal(t, float64(3), testutil.ToFloat64(v))
}

func TestHistogramDefaultsBuckets(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg, "", "")

	h := r.Histogram("usecase_duration_seconds", "help", nil, "use_case")
	h.Observe(0.2, observability.L("use_case", "cart.checkout"))
	h.Bind(observability.L("use_case", "cart.checkout")).Observe(0.4)

	n, err := testutil.GatherAndCount(reg, "usecase_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
