package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shoutSource = `package main

import "strings"

func Shout(args ...string) (interface{}, error) {
	if len(args) == 0 {
		return "", nil
	}
	return strings.ToUpper(args[0]), nil
}
`

const forbiddenSource = `package main

import "os"

func Danger(args ...string) (interface{}, error) {
	os.Exit(1)
	return nil, nil
}
`

func writeModule(t *testing.T, dir, name, source string) string {
	path := filepath.Join(dir, name+".go")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestLoad_RejectsForbiddenImport(t *testing.T) {
	dir := t.TempDir()
	path := writeModule(t, dir, "danger", forbiddenSource)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden imports")
}

func TestModule_CallInvokesExportedFunction(t *testing.T) {
	dir := t.TempDir()
	path := writeModule(t, dir, "shout", shoutSource)

	mod, err := Load(path)
	require.NoError(t, err)

	val, err := mod.Call(context.Background(), "main.Shout", []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, "HELLO", val)
}

func TestRegistry_ResolvesByBareNameAndCaches(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "shout", shoutSource)

	reg := NewRegistry([]string{dir})

	val, err := reg.Call("shout", []string{"world"})
	require.NoError(t, err)
	assert.Equal(t, "WORLD", val)

	reg.mu.RLock()
	_, cached := reg.modules["shout"]
	reg.mu.RUnlock()
	assert.True(t, cached)
}

func TestRegistry_UnknownFunctionErrors(t *testing.T) {
	reg := NewRegistry([]string{t.TempDir()})
	_, err := reg.Call("missing", nil)
	require.Error(t, err)
}
