package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ItemsSynced("full", 3)
		m.ItemsFailed("full", 1)
		m.Revisions(10)
		m.SyncRun("full", nil)
		m.Search(time.Millisecond, []string{"hybrid"}, nil)
		m.SearchLegFailed("vector")
		m.Tokens("search", 5)
		m.Chunks("document", 2)
		m.PreparationFinished("ready")
	})
}

func TestCounters(t *testing.T) {
	m := New()

	m.ItemsSynced("full", 3)
	m.ItemsSynced("full", 0)
	m.ItemsFailed("incremental", 2)
	m.Revisions(7)
	m.SyncRun("full", nil)
	m.SyncRun("full", errors.New("boom"))
	m.Search(10*time.Millisecond, []string{"hybrid", "vector", "hybrid"}, nil)
	m.Tokens("ingest", 42)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.WorkItemsSynced.WithLabelValues("full")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WorkItemsFailed.WithLabelValues("incremental")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.RevisionsStored))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncRuns.WithLabelValues("full", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SearchResults.WithLabelValues("hybrid")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.EmbeddingTokens.WithLabelValues("ingest")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Revisions(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "azurebridge_revisions_stored_total 1")
}
