package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expectd/expectd/pkg/mock"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", "listen: \":8080\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "/mockserver", cfg.ControlPathPrefix)
	assert.Equal(t, 5000, cfg.MaxExpectations)
	assert.Equal(t, 10*time.Second, cfg.SweepInterval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFull(t *testing.T) {
	path := writeFile(t, "config.yaml", `
listen: ":1090"
controlPathPrefix: /admin
maxExpectations: 10
maxRecordedRequests: 20
sweepInterval: 5s
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/admin", cfg.ControlPathPrefix)
	assert.Equal(t, 10, cfg.MaxExpectations)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("EXPECTD_LISTEN", ":7070")
	t.Setenv("EXPECTD_MAX_EXPECTATIONS", "25")
	t.Setenv("EXPECTD_SWEEP_INTERVAL", "3s")
	t.Setenv("EXPECTD_LOG_FORMAT", "json")

	cfg, err := Load(writeFile(t, "config.yaml", "listen: \":8080\"\nmaxExpectations: 10\n"))
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, 25, cfg.MaxExpectations)
	assert.Equal(t, 3*time.Second, cfg.SweepInterval)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestEnvOverridesRejectBadValues(t *testing.T) {
	t.Setenv("EXPECTD_MAX_EXPECTATIONS", "lots")
	_, err := Load(writeFile(t, "config.yaml", "listen: \":8080\"\n"))
	assert.Error(t, err)

	cfg := Default()
	t.Setenv("EXPECTD_MAX_EXPECTATIONS", "")
	t.Setenv("EXPECTD_SWEEP_INTERVAL", "soon")
	assert.Error(t, cfg.ApplyEnv())
}

func TestLoadRejectsBadConfig(t *testing.T) {
	_, err := Load(writeFile(t, "config.yaml", "controlPathPrefix: noslash\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "config.yaml", "log: {format: xml}\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "config.yaml", "initializers: [/does/not/exist.yaml]\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadExpectationsYAML(t *testing.T) {
	path := writeFile(t, "init.yaml", `
- httpRequest:
    method: GET
    path: /api/ping
  action:
    type: response
    response:
      statusCode: 200
      body: pong
- id: fixed-id
  httpRequest:
    path: /api/version
  action:
    type: response
    response:
      statusCode: 200
`)

	exps, err := LoadExpectations(path)
	require.NoError(t, err)
	require.Len(t, exps, 2)
	assert.NotEmpty(t, exps[0].ID, "missing ids are generated")
	assert.Equal(t, "fixed-id", exps[1].ID)
	assert.Equal(t, mock.SourceFile, exps[0].Source)
	assert.True(t, exps[0].Times.IsUnlimited())
	assert.Equal(t, "GET", exps[0].Request.Method)
}

func TestLoadExpectationsJSON(t *testing.T) {
	path := writeFile(t, "init.json", `[
  {"httpRequest": {"path": "/x"}, "action": {"type": "response", "response": {"statusCode": 204}}}
]`)

	exps, err := LoadExpectations(path)
	require.NoError(t, err)
	require.Len(t, exps, 1)
	assert.Equal(t, 204, exps[0].Action.Response.StatusCode)
}

func TestLoadExpectationsInvalid(t *testing.T) {
	_, err := LoadExpectations(writeFile(t, "bad.yaml", "- httpRequest:\n    keyMatchStyle: NOPE\n"))
	assert.Error(t, err)

	_, err = LoadExpectations(writeFile(t, "bad.json", "{not json"))
	assert.Error(t, err)
}
