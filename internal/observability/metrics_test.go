package observability

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-lab/internal/domain"
)

func TestMetrics_Recorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.CandidateGenerated(true)
	m.CandidateGenerated(true)
	m.CandidateGenerated(false)
	m.CandidateValidated("failed", []string{domain.GateCost, domain.GateRegime}, 0.2)
	m.CandidateValidated("survivor", nil, 0.4)
	m.EdgeApproved(domain.TierHigh)
	m.StorageError("validate")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CandidatesGenerated.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandidatesGenerated.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandidatesValidated.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateFailures.WithLabelValues(domain.GateRegime)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EdgesApproved.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StorageErrors.WithLabelValues("validate")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ValidationDuration))
}

func TestHandlerFor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("", reg)
	m.EdgeApproved(domain.TierMedium)

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `edge_lab_manifest_approvals_total{tier="MEDIUM"} 1`))
}
