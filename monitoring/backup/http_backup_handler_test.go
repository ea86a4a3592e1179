package backup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/zkiotchain/zkiot/testing/assert"
	"github.com/zkiotchain/zkiot/testing/require"
)

type recordingExporter struct {
	outputDir string
	override  bool
	err       error
}

func (r *recordingExporter) Backup(_ context.Context, outputDir string, permissionOverride bool) error {
	r.outputDir = outputDir
	r.override = permissionOverride
	return r.err
}

func TestHandler_TriggersBackup(t *testing.T) {
	exporter := &recordingExporter{}
	handler := Handler(exporter, "/var/backups/zkiot")

	req := httptest.NewRequest(http.MethodGet, "/db/backup?permissionOverride", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, "/var/backups/zkiot", exporter.outputDir)
	assert.Equal(t, true, exporter.override)
}

func TestHandler_ReportsFailure(t *testing.T) {
	exporter := &recordingExporter{err: errors.New("disk full")}
	handler := Handler(exporter, "")

	req := httptest.NewRequest(http.MethodGet, "/db/backup", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, exporter.override)
}
