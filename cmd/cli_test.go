package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs the root command with args against a fresh offline
// SQLite cache in dir and returns what it wrote to stdout and stderr.
func executeCommand(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("WHEELMATE_STORE_DRIVER", "sqlite")
	t.Setenv("WHEELMATE_STORE_DATABASE_URL", filepath.Join(dir, "cache.db"))
	t.Setenv("WHEELMATE_SEARCH_OFFLINE_MODE", "true")
	t.Setenv("WHEELMATE_SEARCH_SEED", "42")
	t.Setenv("WHEELMATE_LOG_LEVEL", "error")

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// resetFlags restores every scalar flag to its default between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if !strings.HasSuffix(f.Value.Type(), "Slice") {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"search", "verify", "rate", "photo", "show", "cache", "migrate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "wheelmate", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("output"))
}

func TestSearchCommand_Flags(t *testing.T) {
	for _, name := range []string{"radius", "offline", "features", "smooth-surface", "max-slope", "require-slope", "min-door-width", "min-rating", "type"} {
		assert.NotNil(t, searchCmd.Flags().Lookup(name), "search should have --%s", name)
	}
	assert.Equal(t, "8", searchCmd.Flags().Lookup("max-slope").DefValue)
	assert.Equal(t, "80", searchCmd.Flags().Lookup("min-door-width").DefValue)
}

func TestCLI_OfflineSearchServesDemoData(t *testing.T) {
	dir := t.TempDir()

	out, _, err := executeCommand(t, dir, "search", "48.8566,2.3522", "--radius", "2", "--output", "json")
	require.NoError(t, err)

	var got struct {
		Source  string `json:"source"`
		Warning string `json:"warning"`
		Places  []struct {
			Name string `json:"name"`
		} `json:"places"`
		Summary struct {
			Total int `json:"total"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "synthetic", got.Source)
	assert.NotEmpty(t, got.Warning)
	assert.Len(t, got.Places, 12)
	assert.Equal(t, 12, got.Summary.Total)
}

func TestCLI_SearchRejectsUnknownFeature(t *testing.T) {
	_, _, err := executeCommand(t, t.TempDir(), "search", "48.8566,2.3522", "--features", "ramp,teleporter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleporter")
}

func TestCLI_RateVerifyShowAndStats(t *testing.T) {
	dir := t.TempDir()

	out, _, err := executeCommand(t, dir, "search", "48.8566,2.3522", "--radius", "1", "--output", "json")
	require.NoError(t, err)
	var res struct {
		Places []struct {
			Name string `json:"name"`
		} `json:"places"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.Places)
	name := res.Places[0].Name

	_, stderr, err := executeCommand(t, dir, "rate", name, "fully")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Fully Accessible")

	_, _, err = executeCommand(t, dir, "verify", name, "--user", "alice")
	require.NoError(t, err)

	photo := filepath.Join(dir, "entrance.jpg")
	require.NoError(t, os.WriteFile(photo, []byte{0xff, 0xd8, 0xff}, 0o600))
	_, _, err = executeCommand(t, dir, "photo", name, photo)
	require.NoError(t, err)

	out, _, err = executeCommand(t, dir, "show", name)
	require.NoError(t, err)
	assert.Contains(t, out, "Fully Accessible")
	assert.Contains(t, out, "1 (1 confirmed)")
	assert.Contains(t, out, "3 bytes")

	out, _, err = executeCommand(t, dir, "cache", "stats", "--output", "json")
	require.NoError(t, err)
	var stats struct {
		Places        int `json:"places"`
		WithPhoto     int `json:"with_photo"`
		Verifications int `json:"verifications"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 12, stats.Places)
	assert.Equal(t, 1, stats.WithPhoto)
	assert.Equal(t, 1, stats.Verifications)
}

func TestCLI_RateUnknownPlace(t *testing.T) {
	_, _, err := executeCommand(t, t.TempDir(), "rate", "Nowhere", "fully")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, _, err = executeCommand(t, t.TempDir(), "rate", "Nowhere", "excellent")
	require.Error(t, err)
}

func TestCLI_Migrate(t *testing.T) {
	out, _, err := executeCommand(t, t.TempDir(), "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "version 2")
}
