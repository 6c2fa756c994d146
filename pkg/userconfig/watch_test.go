package userconfig

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnSave(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: http://a\n"), 0o600))

	var (
		mu    sync.Mutex
		seen  []string
		other = filepath.Join(filepath.Dir(path), "other.yaml")
	)
	require.NoError(t, Watch(t.Context(), path, func(c *Config) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, c.GetSettings().Theme)
	}))

	require.NoError(t, os.WriteFile(other, []byte("x: 1\n"), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Set("theme", "light"))
	require.NoError(t, cfg.SaveTo(path))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "light", seen[len(seen)-1])
}

func TestWatch_MissingDirectory(t *testing.T) {
	t.Parallel()

	err := Watch(t.Context(), filepath.Join(t.TempDir(), "missing", "config.yaml"), func(*Config) {})
	require.Error(t, err)
}
