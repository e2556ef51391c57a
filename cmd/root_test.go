package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lakshima2000/paddyHealth-backend/config"
)

func TestRootCommandTree(t *testing.T) {
	root := RootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestMigrateCreatesSchema(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "paddy.db")
	cfgPath := filepath.Join(dir, "config.json")
	raw, err := json.Marshal(map[string]any{
		"jwt_secret":   "cmd-secret",
		"database_url": "sqlite:///" + dbPath,
		"log_level":    "error",
		"log_path":     filepath.Join(dir, "logs", "app.log"),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgPath, raw, 0o600))

	root := RootCommand()
	root.SetArgs([]string{"migrate", "--config", cfgPath})
	require.NoError(t, root.Execute())

	assert.FileExists(t, dbPath)
}

func TestNewPublisherRejectsUnknownBackend(t *testing.T) {
	_, _, err := newPublisher(t.Context(), config.AppConfig{PushBackend: "kafka"}, nil)
	assert.ErrorContains(t, err, "unknown push_backend")
}
