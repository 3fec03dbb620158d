package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionHandlerReportsBuildMetadata(t *testing.T) {
	SetVersionInfo("1.2.3", "abcd123", "2026-10-16T12:00:00Z")
	SetAppName("throttlegate-test")
	t.Cleanup(func() { SetAppName(DefaultAppName) })

	rec := httptest.NewRecorder()
	VersionHandler(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp VersionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "throttlegate-test", resp.App.Name)
	assert.Equal(t, "1.2.3", resp.App.Version)
	assert.Equal(t, "abcd123", resp.App.Commit)
	assert.True(t, strings.HasPrefix(resp.App.GoVersion, "go"))
	assert.NotEmpty(t, resp.Dependencies.Gofulmen)
	assert.NotEmpty(t, resp.Dependencies.Crucible)
	assert.Contains(t, resp.Runtime.Platform, "/")
}

func TestSetVersionInfoKeepsExistingValuesForBlanks(t *testing.T) {
	SetVersionInfo("2.0.0", "feed", "today")
	SetVersionInfo("", "", "")

	v := CurrentVersion()
	assert.Equal(t, "2.0.0", v.App.Version)
	assert.Equal(t, "feed", v.App.Commit)
	assert.Equal(t, "today", v.App.BuildDate)
}
