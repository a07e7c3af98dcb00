package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/filexfer/engine"
)

func TestTransfers_FileEvents(t *testing.T) {
	m := New()

	m.FileStarted(engine.TransferJob{})
	m.FileStarted(engine.TransferJob{})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.filesInProgress))

	m.FileFinished(engine.TransferOutcome{
		Mode:              engine.ModeCopy,
		TransferSucceeded: true,
		Checksum:          engine.ChecksumMatched,
		Bytes:             100,
		Duration:          time.Second,
	})
	m.FileFinished(engine.TransferOutcome{
		Mode:              engine.ModeCopy,
		TransferSucceeded: true,
		Checksum:          engine.ChecksumMismatched,
		Bytes:             50,
	})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.filesInProgress))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.filesTotal.WithLabelValues("copy", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.filesTotal.WithLabelValues("copy", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checksumTotal.WithLabelValues("mismatched")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.bytesTotal.WithLabelValues("copy")))
}

func TestTransfers_BatchAndProbe(t *testing.T) {
	m := New()

	m.BatchFinished(&engine.BatchResult{Mode: engine.ModeFTP})
	m.RecordProbe("network_error")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchesTotal.WithLabelValues("ftp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.probesTotal.WithLabelValues("network_error")))
}

func TestTransfers_Handler(t *testing.T) {
	m := New()
	m.BatchFinished(&engine.BatchResult{Mode: engine.ModeCopy})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `filexfer_batches_total{mode="copy"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestTransfers_IsObserver(t *testing.T) {
	var _ engine.Observer = New()
}
