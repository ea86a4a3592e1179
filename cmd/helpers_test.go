package cmd

import (
	"testing"

	"github.com/urfave/cli/v2"
	"github.com/zkiotchain/zkiot/testing/assert"
	"github.com/zkiotchain/zkiot/testing/require"
)

func TestValidateNoArgs(t *testing.T) {
	app := &cli.App{
		Before: ValidateNoArgs,
		Flags: []cli.Flag{
			VerbosityFlag,
		},
		Action: func(_ *cli.Context) error { return nil },
		Commands: []*cli.Command{
			{
				Name:   "generate-jwt-secret",
				Action: func(_ *cli.Context) error { return nil },
			},
		},
	}

	require.NoError(t, app.Run([]string{"zkiotd"}))
	require.NoError(t, app.Run([]string{"zkiotd", "--verbosity", "debug"}))
	require.NoError(t, app.Run([]string{"zkiotd", "generate-jwt-secret"}))

	err := app.Run([]string{"zkiotd", "junk"})
	assert.ErrorContains(t, "unrecognized argument: junk", err)
}
