package cmd

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func yandereStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") != "1" {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprint(w, `[{"id": 5, "tags": "cloud", "author": "someone", "created_at": 1700000000}]`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeTestConfig(t *testing.T, yandereURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
database:
  dsn: %s
storage:
  bucket_url: "mem://"
sync:
  delay: 0s
retry:
  max_attempts: 1
logging:
  level: warn
communities:
  yandere:
    base_url: %s
`, filepath.Join(dir, "bottle.db"), yandereURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_FeedLifecycle(t *testing.T) {
	yandere := yandereStub(t)
	cfgPath := writeTestConfig(t, yandere.URL)

	out, err := run(t, "--config", cfgPath, "doctor")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Database connection successful.")
	assert.Contains(t, out, "Media bucket accessible.")

	out, err = run(t, "--config", cfgPath, "history")
	require.NoError(t, err, out)
	assert.Contains(t, out, "No job runs found.")

	out, err = run(t, "--config", cfgPath, "feed", "add",
		"--community", "yandere", "--name", "clouds", "--params", `{"kind":"tags","tags":"cloud"}`)
	require.NoError(t, err, out)
	assert.Contains(t, out, "feed 1@yandere (clouds)")

	out, err = run(t, "--config", cfgPath, "feed", "list")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1@yandere")
	assert.Contains(t, out, "clouds")

	out, err = run(t, "--config", cfgPath, "sync", "yandere", "1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "feed 1@yandere: 1 new posts")

	out, err = run(t, "--config", cfgPath, "feed", "works", "1@yandere")
	require.NoError(t, err, out)
	assert.Contains(t, out, "cloud")

	out, err = run(t, "--config", cfgPath, "history", "--kind", "feed_sync")
	require.NoError(t, err, out)
	assert.Contains(t, out, "feed_sync")
	assert.Contains(t, out, "1@yandere")
}

func TestCLI_Errors(t *testing.T) {
	cfgPath := writeTestConfig(t, "http://127.0.0.1:1")

	_, err := run(t, "--config", cfgPath, "sync", "9@yandere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = run(t, "--config", cfgPath, "download", "gallery", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid gallery id")

	_, err = run(t, "--config", cfgPath, "download", "gallery", "77")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "doctor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")

	t.Cleanup(func() { queueOnly = false })
	_, err = run(t, "--config", cfgPath, "download", "images", "--queue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--queue needs redis.address")
}
