package jwt

import (
	"encoding/hex"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"
	"github.com/zkiotchain/zkiot/cmd"
	"github.com/zkiotchain/zkiot/io/file"
	"github.com/zkiotchain/zkiot/testing/require"
)

func TestGenerateAuthSecretInFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "keys", "jwt.hex")
	app := cli.App{}
	set := flag.NewFlagSet("test", 0)
	set.String(cmd.JwtOutputFileFlag.Name, "", "")
	require.NoError(t, set.Set(cmd.JwtOutputFileFlag.Name, out))
	cliCtx := cli.NewContext(&app, set, nil)

	require.NoError(t, generateAuthSecretInFile(cliCtx))

	enc, err := file.ReadFileAsBytes(out)
	require.NoError(t, err)
	secret, err := hex.DecodeString(string(enc))
	require.NoError(t, err)
	require.Equal(t, 32, len(secret))

	info, err := os.Stat(out)
	require.NoError(t, err)
	require.Equal(t, file.ReadWritePermissions, info.Mode())
}

func TestGenerateRandom32ByteHexString_Distinct(t *testing.T) {
	first, err := generateRandom32ByteHexString()
	require.NoError(t, err)
	second, err := generateRandom32ByteHexString()
	require.NoError(t, err)
	require.Equal(t, 64, len(first))
	require.NotEqual(t, first, second)
}
