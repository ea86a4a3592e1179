// Package jwt implements the generate-jwt-secret subcommand. The secret it
// writes authenticates the daemon against RPC providers that require HS256
// bearer tokens, such as a local execution node.
package jwt

import (
	"encoding/hex"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/zkiotchain/zkiot/cmd"
	"github.com/zkiotchain/zkiot/crypto/rand"
	"github.com/zkiotchain/zkiot/io/file"
)

const secretFileName = "jwt.hex"

var log = logrus.WithField("prefix", "jwt")

// Commands is the generate-jwt-secret command the daemon registers.
var Commands = &cli.Command{
	Name:        "generate-jwt-secret",
	Usage:       "creates a random 32 byte hex string in a plaintext file to be used for authenticating RPC requests",
	Description: "creates a random 32 byte hex string in a plaintext file to be used for authenticating RPC requests",
	Flags: cmd.WrapFlags([]cli.Flag{
		cmd.JwtOutputFileFlag,
	}),
	Action: func(cliCtx *cli.Context) error {
		if err := generateAuthSecretInFile(cliCtx); err != nil {
			log.WithError(err).Fatal("Could not generate JWT secret")
		}
		return nil
	},
}

func generateAuthSecretInFile(c *cli.Context) error {
	fileName := secretFileName
	if c.IsSet(cmd.JwtOutputFileFlag.Name) {
		if specified := c.String(cmd.JwtOutputFileFlag.Name); specified != "" {
			fileName = specified
		}
	}
	fileName, err := file.ExpandPath(fileName)
	if err != nil {
		return err
	}
	fileDir := filepath.Dir(fileName)
	exists, err := file.HasDir(fileDir)
	if err != nil {
		return err
	}
	if !exists {
		if err := file.MkdirAll(fileDir); err != nil {
			return err
		}
	}
	secret, err := generateRandom32ByteHexString()
	if err != nil {
		return err
	}
	if err := file.WriteFile(fileName, []byte(secret)); err != nil {
		return err
	}
	log.Infof("Successfully wrote JWT secret to file %s", fileName)
	return nil
}

func generateRandom32ByteHexString() (string, error) {
	secret := make([]byte, 32)
	gen := rand.NewGenerator()
	if _, err := gen.Read(secret); err != nil {
		return "", err
	}
	return hex.EncodeToString(secret), nil
}
