package cmd

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lotto-store-crawler/internal/app"
	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"crawl", "stores", "moderate", "enrich", "serve"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		require.Equal(t, name, sub.Name())
	}
	rebuild, _, err := root.Find([]string{"stores", "rebuild"})
	require.NoError(t, err)
	require.Equal(t, "rebuild", rebuild.Name())
}

func TestResolveAppWithoutApp(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
}

func TestModerateCommandEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage:\n  data_dir: "+dir+"\nlogging:\n  development: false\n  level: error\n"), 0o600))

	bad := lotto.NewStoreRecord("Bad", "X")
	bad.Dislikes = 50
	data, err := json.Marshal([]lotto.StoreRecord{bad, lotto.NewStoreRecord("Good", "Y")})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stores.json"), data, 0o600))

	root := newRootCmd()
	root.SetArgs([]string{"--config", cfgPath, "moderate"})
	require.NoError(t, execute(context.Background(), root))

	raw, err := os.ReadFile(filepath.Join(dir, "retired_stores.json"))
	require.NoError(t, err)
	var retired []lotto.StoreRecord
	require.NoError(t, json.Unmarshal(raw, &retired))
	require.Len(t, retired, 1)
	require.Equal(t, "Bad", retired[0].Name)
}

func TestEnrichCommandFailsWithoutProviders(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage:\n  data_dir: "+dir+"\nlogging:\n  level: error\n"), 0o600))

	root := newRootCmd()
	root.SetArgs([]string{"--config", cfgPath, "enrich"})
	root.SetErr(io.Discard)
	require.Error(t, execute(context.Background(), root))
}

func TestExecuteClosesAppWhenCommandFails(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage:\n  data_dir: "+dir+"\nlogging:\n  level: error\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stores.json"), []byte("{not json"), 0o600))

	var closed int
	original := closeApp
	closeApp = func(a *app.App) error {
		closed++
		return original(a)
	}
	t.Cleanup(func() { closeApp = original })

	for _, args := range [][]string{{"moderate"}, {"enrich"}} {
		root := newRootCmd()
		root.SetArgs(append([]string{"--config", cfgPath}, args...))
		root.SetErr(io.Discard)
		require.Error(t, execute(context.Background(), root), args[0])
	}
	require.Equal(t, 2, closed)
}
