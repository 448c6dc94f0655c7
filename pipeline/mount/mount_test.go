package mount

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `yaml:"name" validate:"required"`
	Count int    `yaml:"count" validate:"gte=0"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSection(t *testing.T) {
	path := writeConfig(t, "other: {x: 1}\nmine:\n  name: demo\n  count: 3\n")

	var s sample
	require.NoError(t, LoadSection(path, "mine", &s))
	assert.Equal(t, sample{Name: "demo", Count: 3}, s)
}

func TestLoadSection_Errors(t *testing.T) {
	path := writeConfig(t, "mine:\n  count: -1\n")

	var s sample
	err := LoadSection(path, "absent", &s)
	assert.True(t, errors.Is(err, ErrSectionMissing))

	err = LoadSection(path, "mine", &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mine")

	err = LoadSection(filepath.Join(t.TempDir(), "nope.yml"), "mine", &s)
	assert.Error(t, err)

	bad := writeConfig(t, "mine: [unclosed\n")
	assert.Error(t, LoadSection(bad, "mine", &s))
}

func TestWriteFileAndCopy(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "out")

	n, err := WriteFile(filepath.Join(out, "a.json"), []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	src := writeConfig(t, "mine: {name: x}\n")
	require.NoError(t, CopyInto(src, out))
	data, err := os.ReadFile(filepath.Join(out, ConfigFile))
	require.NoError(t, err)
	assert.Equal(t, "mine: {name: x}\n", string(data))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestMounts(t *testing.T) {
	m := Default()
	assert.Equal(t, "/mnt/input/config.yml", m.ConfigPath())
	assert.Equal(t, "/mnt/output", m.Output)
}
