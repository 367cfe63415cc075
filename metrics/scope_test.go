package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestIncAndScopePrefix(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPromScope(reg, "fetch")

	s.Inc("success", 1)
	s.Inc("success", 2)

	child := s.NewScope("retry")
	child.Inc("attempt", 1)

	families, err := reg.Gather()
	require.NoError(t, err)

	found := map[string]float64{}
	for _, fam := range families {
		for _, m := range fam.Metric {
			if m.Counter != nil {
				found[fam.GetName()] = m.Counter.GetValue()
			}
		}
	}
	require.Equal(t, float64(3), found["fetch_success"])
	require.Equal(t, float64(1), found["fetch_retry_attempt"])
}

func TestGaugeAndTiming(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPromScope(reg, "cache")

	s.Gauge("age_seconds", 42)
	s.GaugeDelta("age_seconds", -2)
	s.TimingDuration("lookup", 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	var gaugeVal float64
	for _, fam := range families {
		if fam.GetName() == "cache_age_seconds" {
			gaugeVal = fam.Metric[0].Gauge.GetValue()
		}
	}
	require.Equal(t, float64(40), gaugeVal)
}

func TestNoopScopeIsSafe(t *testing.T) {
	s := NewNoopScope()
	s.Inc("anything", 1)
	s.Gauge("anything", 1)
	s.GaugeDelta("anything", 1)
	s.Timing("anything", 1)
	s.TimingDuration("anything", 0)
	s.MustRegister()
	_ = s.NewScope("child")
}
