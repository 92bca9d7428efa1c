package pprof

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusEndpoint(t *testing.T) {
	h := NewHandler(Config{HTTPAddr: "127.0.0.1:0"}, func() any {
		return map[string]any{"status": "Connected", "objects": 3}
	})
	require.NoError(t, h.Start())
	defer h.Stop()

	resp, err := http.Get("http://" + h.Addr().String() + StatusPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "Connected", doc["status"])
	assert.EqualValues(t, 3, doc["objects"])

	resp, err = http.Get("http://" + h.Addr().String() + "/debug/pprof/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProfileFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		CPUProfile:       filepath.Join(dir, "cpu.prof"),
		HeapProfile:      filepath.Join(dir, "nested", "heap.prof"),
		GoroutineProfile: filepath.Join(dir, "goroutine.prof"),
	}
	assert.True(t, cfg.Enabled())

	h := NewHandler(cfg, nil)
	require.NoError(t, h.Start())
	require.NoError(t, h.Stop())
	assert.NoError(t, h.Stop())

	for _, path := range []string{cfg.CPUProfile, cfg.HeapProfile, cfg.GoroutineProfile} {
		info, err := os.Stat(path)
		require.NoError(t, err, path)
		assert.Greater(t, info.Size(), int64(0), path)
	}
}

func TestDisabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	h := NewHandler(Config{}, nil)
	require.NoError(t, h.Start())
	assert.Nil(t, h.Addr())
	assert.NoError(t, h.Stop())
}
