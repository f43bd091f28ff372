package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCollectors(t *testing.T) {
	TasksProcessed.WithLabelValues("decompose", "ok").Inc()
	Fallbacks.WithLabelValues("decomposition").Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `dialectica_tasks_processed_total{kind="decompose",outcome="ok"}`))
	assert.True(t, strings.Contains(string(body), `dialectica_fallbacks_total{decision="decomposition"}`))
}
