package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalkeeper/internal/config"
	"goalkeeper/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.SchemeCounter, cfg.IDs.Scheme)
	assert.Equal(t, "g-", cfg.IDs.Prefix)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, uuid.Nil, cfg.Namespace())
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte("ids:\n  scheme: uuid\n  namespace: 6ba7b812-9dad-11d1-80b4-00c04fd430c8\nlog:\n  format: json\n"))
	require.NoError(t, err)
	assert.Equal(t, config.SchemeUUID, cfg.IDs.Scheme)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, uuid.MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8"), cfg.Namespace())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"scheme":          "ids:\n  scheme: random\n",
		"namespace":       "ids:\n  scheme: uuid\n  namespace: nope\n",
		"prefix":          "ids:\n  prefix: \"\"\n",
		"base path":       "server:\n  base_path: v0\n",
		"level":           "log:\n  level: loud\n",
		"format":          "log:\n  format: xml\n",
		"yaml":            "ids: [",
		"hook url":        "webhooks:\n  - kinds: [added]\n",
		"hook kind":       "webhooks:\n  - url: http://x\n    kinds: [renamed]\n",
		"hook no journal": "journal:\n  enabled: false\nwebhooks:\n  - url: http://x\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestWebhookKindsAreChangeKinds(t *testing.T) {
	for _, kind := range []domain.ChangeKind{domain.ChangeAdded, domain.ChangeRemoved, domain.ChangeToggled} {
		_, err := config.FromYAML([]byte("webhooks:\n  - url: http://x\n    kinds: [" + string(kind) + "]\n"))
		assert.NoError(t, err, "kind %s", kind)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, err = config.Load(dir)
	assert.ErrorContains(t, err, "not found")

	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte("ids:\n  prefix: goal-\n"), 0o644))
	cfg, err = config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "goal-", cfg.IDs.Prefix)
}

func TestWebhookActive(t *testing.T) {
	off := false
	cfg, err := config.FromYAML([]byte("webhooks:\n  - url: http://example.test/hook\n    kinds: [added, removed]\n"))
	require.NoError(t, err)
	require.Len(t, cfg.Webhooks, 1)
	assert.True(t, cfg.Webhooks[0].Active())
	cfg.Webhooks[0].Enabled = &off
	assert.False(t, cfg.Webhooks[0].Active())
}
