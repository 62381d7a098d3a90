package access

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashCode(t *testing.T) {
	// echo -n abc | sha256sum
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashCode("abc"))
}

func TestRegistryValidate(t *testing.T) {
	reg, err := Parse(strings.NewReader("alpha\n\n  beta  \r\n"))
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())

	hash, ok := reg.Validate("beta")
	require.True(t, ok)
	require.Equal(t, HashCode("beta"), hash)
	require.True(t, reg.IsPremium(hash))
	require.True(t, reg.IsPremium(strings.ToUpper(hash)))

	hash, ok = reg.Validate("gamma")
	require.False(t, ok)
	require.Equal(t, HashCode("gamma"), hash)

	_, ok = reg.Validate("   ")
	require.False(t, ok)
	require.False(t, reg.IsPremium(""))
	require.False(t, reg.IsPremium("alpha"), "clear-text codes are not keys")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	reg, exists, err := LoadFile(filepath.Join(dir, "missing.txt"))
	require.NoError(t, err)
	require.False(t, exists)
	require.Zero(t, reg.Len())

	path := filepath.Join(dir, "codes.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\n"), 0o600))
	reg, exists, err = LoadFile(path)
	require.NoError(t, err)
	require.True(t, exists)
	_, ok := reg.Validate("two")
	require.True(t, ok)
}
