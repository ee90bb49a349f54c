package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fleetcron/secret"
)

func execute(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return strings.TrimSpace(out.String())
}

func TestGenkeyThenEncrypt(t *testing.T) {
	key := execute(t, "", "genkey")
	_, err := secret.NewCipherFromHex(key)
	require.NoError(t, err, "genkey output must be a usable key")

	t.Setenv("SECRET_KEY", key)
	c, err := secret.NewCipherFromHex(key)
	require.NoError(t, err)

	sealed := execute(t, "", "encrypt", "hunter2")
	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	sealed = execute(t, "from-stdin\n", "encrypt")
	plain, err = c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "from-stdin", plain)
}

func TestEncryptRequiresKey(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	rootCmd.SetArgs([]string{"encrypt", "x"})
	rootCmd.SetOut(&bytes.Buffer{})
	assert.Error(t, rootCmd.Execute())
}
