package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, fetchAttemptsTotal)
	require.NotNil(t, roundsTotal)
	require.NotNil(t, geocodeTotal)
	require.NotNil(t, Handler())
}

func TestObserveHelpers(t *testing.T) {
	Init()
	before := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("draw", "retry"))
	ObserveFetchAttempt("draw", "retry")
	require.Equal(t, before+1, testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("draw", "retry")))

	SetNextRound(1101)
	require.Equal(t, float64(1101), testutil.ToFloat64(nextRound))

	beforeRetired := testutil.ToFloat64(moderationRetiredTotal)
	ObserveRetired(2)
	require.Equal(t, beforeRetired+2, testutil.ToFloat64(moderationRetiredTotal))

	ObserveRound("committed")
	ObserveFetchFailure("prize", "exhausted")
	ObserveCheckpoint()
	ObserveDegraded("stores")
	ObserveGeocode("kakao", "hit")
	ObserveRateLimitDelay("kakao", 20*time.Millisecond)
	require.Positive(t, testutil.CollectAndCount(rateLimitDelaysSeconds))
}
