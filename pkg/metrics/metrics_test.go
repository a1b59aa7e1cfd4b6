package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTick(t *testing.T) {
	m := New()

	m.ObserveTick(10*time.Millisecond, nil)
	m.ObserveTick(20*time.Millisecond, nil)
	m.ObserveTick(5*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TickFailures))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TickDuration))
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.QueenDeaths.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.QueenDeaths))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.QueenDeaths))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	m.CombsProduced.WithLabelValues("Honey Comb").Add(3)
	m.Breeds.WithLabelValues("common").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `apiary_combs_produced_total{item="Honey Comb"} 3`), body)
	assert.Contains(t, body, `apiary_breeds_total{type="common"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
