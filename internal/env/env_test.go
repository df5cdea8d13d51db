package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergePrecedence(t *testing.T) {
	t.Setenv("DRONE_ENV_TEST_BASE", "os")
	t.Setenv("DRONE_ENV_TEST_OVER", "os")

	e := New()
	e.Set("DRONE_ENV_TEST_OVER", "var")
	out := e.Merge([]string{"DRONE_ENV_TEST_EXTRA=extra"})
	get := Lookup(out)

	assert.Equal(t, "os", get("DRONE_ENV_TEST_BASE"))
	assert.Equal(t, "var", get("DRONE_ENV_TEST_OVER"))
	assert.Equal(t, "extra", get("DRONE_ENV_TEST_EXTRA"))
	assert.Equal(t, "", get("DRONE_ENV_TEST_MISSING"))
}

func TestMergeExpandsReferences(t *testing.T) {
	e := New()
	e.Set("ROOT", "/srv")
	e.Set("BIN", "${ROOT}/bin")
	get := Lookup(e.Merge(nil))
	assert.Equal(t, "/srv/bin", get("BIN"))
}

func TestMergeIsSorted(t *testing.T) {
	e := New()
	e.env = Var{"B": "2", "A": "1"}
	e.Set("C", "3")
	assert.Equal(t, []string{"A=1", "B=2", "C=3"}, e.Merge(nil))
}

func TestLoadFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.env")
	second := filepath.Join(dir, "b.env")
	require.NoError(t, os.WriteFile(first, []byte("# base\nPORT=8080\nNAME=\"first one\"\n"), 0o600))
	require.NoError(t, os.WriteFile(second, []byte("export PORT=9090\n"), 0o600))

	e := New()
	require.NoError(t, e.LoadFiles(first, second))
	assert.Equal(t, "9090", e.Var["PORT"])
	assert.Equal(t, "first one", e.Var["NAME"])
}

func TestLoadFilesMissing(t *testing.T) {
	err := New().LoadFiles(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}

func TestSetPairs(t *testing.T) {
	e := New()
	require.NoError(t, e.SetPairs([]string{"A=1", "B=x=y", "C="}))
	assert.Equal(t, Var{"A": "1", "B": "x=y", "C": ""}, e.Var)

	assert.Error(t, e.SetPairs([]string{"novalue"}))
	assert.Error(t, e.SetPairs([]string{"=v"}))
}
