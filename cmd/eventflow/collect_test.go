package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/eventflow/config"
	"github.com/BaSui01/eventflow/types"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBuildGroup_FromArgs(t *testing.T) {
	group, err := buildGroup("oss", "", []string{"golang/go", "https://github.com/uber-go/zap"})
	require.NoError(t, err)

	assert.Equal(t, "oss", group.Name)
	require.Len(t, group.Artifacts, 2)
	assert.Equal(t, "golang/go", group.Artifacts[0].Name)
	assert.Equal(t, "uber-go/zap", group.Artifacts[1].Name)
	assert.Equal(t, types.NamespaceGithub, group.Artifacts[0].Namespace)
}

func TestBuildGroup_FromFile(t *testing.T) {
	path := writeTempFile(t, "repos.txt", `
# tracked repositories
golang/go

prometheus/client_golang
git@github.com:grafana/grafana.git
`)

	group, err := buildGroup("default", path, []string{"uber-go/zap"})
	require.NoError(t, err)

	require.Len(t, group.Artifacts, 4)
	// Positional arguments come first, then the file entries in order.
	assert.Equal(t, "uber-go/zap", group.Artifacts[0].Name)
	assert.Equal(t, "golang/go", group.Artifacts[1].Name)
	assert.Equal(t, "prometheus/client_golang", group.Artifacts[2].Name)
	assert.Equal(t, "grafana/grafana", group.Artifacts[3].Name)
}

func TestBuildGroup_InvalidLocator(t *testing.T) {
	_, err := buildGroup("default", "", []string{"not-a-repo"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidArtifact, types.GetErrorCode(err))
}

func TestBuildGroup_MissingFile(t *testing.T) {
	_, err := buildGroup("default", filepath.Join(t.TempDir(), "absent.txt"), nil)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestReadArtifactList_SkipsCommentsAndBlanks(t *testing.T) {
	path := writeTempFile(t, "repos.txt", "golang/go\n\n# comment\n  uber-go/zap  \n")

	got, err := readArtifactList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"golang/go", "uber-go/zap"}, got)
}

func TestParseRange(t *testing.T) {
	t.Run("bare dates", func(t *testing.T) {
		r, err := parseRange("2024-01-01", "2024-02-01")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), r.Start)
		assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), r.End)
	})

	t.Run("rfc3339 timestamps", func(t *testing.T) {
		r, err := parseRange("2024-01-01T06:30:00Z", "2024-01-02T18:00:00Z")
		require.NoError(t, err)
		assert.Equal(t, 6, r.Start.Hour())
	})

	t.Run("to defaults to now", func(t *testing.T) {
		r, err := parseRange("2024-01-01", "")
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().UTC(), r.End, time.Minute)
	})

	t.Run("missing from", func(t *testing.T) {
		_, err := parseRange("", "2024-02-01")
		require.Error(t, err)
	})

	t.Run("inverted bounds", func(t *testing.T) {
		_, err := parseRange("2024-02-01", "2024-01-01")
		require.Error(t, err)
		assert.Equal(t, types.ErrMalformedTimestamp, types.GetErrorCode(err))
	})
}

func TestNormalizeISO(t *testing.T) {
	assert.Equal(t, "2024-01-01T00:00:00Z", normalizeISO("2024-01-01"))
	assert.Equal(t, "2024-01-01T12:00:00Z", normalizeISO("2024-01-01T12:00:00Z"))
}

func TestBuildTokenSource_Static(t *testing.T) {
	tokens, err := buildTokenSource(config.GitHubConfig{Token: "ghp_test"}, zap.NewNop())
	require.NoError(t, err)

	tok, err := tokens.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ghp_test", tok)
}

func TestBuildTokenSource_NoCredentials(t *testing.T) {
	_, err := buildTokenSource(config.GitHubConfig{}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no GitHub credentials")
}

func TestBuildTokenSource_AppKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	keyPath := writeTempFile(t, "app.pem", string(pemBytes))

	tokens, err := buildTokenSource(config.GitHubConfig{
		AppID:          "12345",
		InstallationID: 67890,
		PrivateKeyPath: keyPath,
	}, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, tokens)
}

func TestBuildTokenSource_AppKeyMissingFile(t *testing.T) {
	_, err := buildTokenSource(config.GitHubConfig{
		AppID:          "12345",
		PrivateKeyPath: filepath.Join(t.TempDir(), "absent.pem"),
	}, zap.NewNop())
	require.Error(t, err)
}

func TestBuildRangeStore(t *testing.T) {
	cfg := config.DefaultConfig()
	rs, closeFn := buildRangeStore(cfg, zap.NewNop())
	defer closeFn()
	assert.NotNil(t, rs)
}

func TestInitLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		logger := initLogger(config.LogConfig{Level: "debug", Format: "json"})
		require.NotNil(t, logger)
		assert.True(t, logger.Core().Enabled(zap.DebugLevel))
	})

	t.Run("console", func(t *testing.T) {
		logger := initLogger(config.LogConfig{Level: "warn", Format: "console"})
		require.NotNil(t, logger)
		assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	})

	t.Run("unknown level defaults to info", func(t *testing.T) {
		logger := initLogger(config.LogConfig{Level: "verbose", Format: "json"})
		require.NotNil(t, logger)
		assert.True(t, logger.Core().Enabled(zap.InfoLevel))
		assert.False(t, logger.Core().Enabled(zap.DebugLevel))
	})
}
