package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesCounters(t *testing.T) {
	before := testutil.ToFloat64(FeaturesTotal)
	FeaturesTotal.Add(3)
	RequestsTotal.WithLabelValues("200").Inc()
	assert.Equal(t, before+3, testutil.ToFloat64(FeaturesTotal))

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "zonal_features_total")
	assert.Contains(t, string(body), `zonal_requests_total{code="200"}`)
}
