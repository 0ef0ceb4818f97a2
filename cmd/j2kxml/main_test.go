package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j2kxml/j2kxml/testutil"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRunSuccess(t *testing.T) {
	in := writeTemp(t, "min.jp2", testutil.MinimalJP2())
	out := filepath.Join(t.TempDir(), "out.xml")
	assert.Equal(t, exitOK, run([]string{"-o", out, in}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<jp2File")
}

func TestRunStructuralError(t *testing.T) {
	data := testutil.MinimalJP2()
	in := writeTemp(t, "trunc.jp2", data[:len(data)-2])
	assert.Equal(t, exitStructural, run([]string{in}))
}

func TestRunUnreadableFile(t *testing.T) {
	assert.Equal(t, exitUnreadable, run([]string{filepath.Join(t.TempDir(), "missing.jp2")}))
}

func TestRunProfile(t *testing.T) {
	profile := writeTemp(t, "profile.yaml", []byte("indent: \"    \"\nopaque_encoding: base64\n"))
	in := writeTemp(t, "min.jp2", testutil.MinimalJP2())
	out := filepath.Join(t.TempDir(), "out.xml")
	assert.Equal(t, exitOK, run([]string{"-profile", profile, "-o", out, in}))
}

func TestRunBadProfile(t *testing.T) {
	profile := writeTemp(t, "profile.yaml", []byte("opaque_encoding: rot13\n"))
	in := writeTemp(t, "min.jp2", testutil.MinimalJP2())
	assert.Equal(t, exitUnreadable, run([]string{"-profile", profile, in}))
}
