package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/andrei-cloud/go_wapc/internal/config"
	"github.com/andrei-cloud/go_wapc/internal/wasmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRegistersCommands(t *testing.T) {
	root, err := NewRootCommand()
	require.NoError(t, err)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "call", "inspect", "list", "console"} {
		assert.Contains(t, names, want)
	}
}

func TestRootFlagsOverrideConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "echo.wasm"), wasmtest.Echo(), 0o644))

	root, err := NewRootCommand()
	require.NoError(t, err)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"list", "--modules-path", dir, "--engine-kind", "interpreter", "--log-level", "error"})
	require.NoError(t, root.Execute())

	assert.Equal(t, dir, config.Get().Modules.Path)
	assert.Equal(t, "interpreter", config.Get().Engine.Kind)
	assert.Contains(t, out.String(), "echo")
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	root, err := NewRootCommand()
	require.NoError(t, err)
	root.SetArgs([]string{"list", "--engine-kind", "jit"})

	err = root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize configuration")
}
