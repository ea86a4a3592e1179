package cmd

import (
	"flag"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"
	"github.com/zkiotchain/zkiot/testing/assert"
	"github.com/zkiotchain/zkiot/testing/require"
)

func TestWrapFlags_WrapsEntireCatalog(t *testing.T) {
	catalog := []cli.Flag{
		VerbosityFlag,
		DataDirFlag,
		EnableTracingFlag,
		TracingProcessNameFlag,
		TracingEndpointFlag,
		TraceSampleFractionFlag,
		MonitoringHostFlag,
		DisableMonitoringFlag,
		ClearDB,
		ForceClearDB,
		LogFormat,
		LogFileName,
		ConfigFileFlag,
		ProtocolConfigFileFlag,
	}
	wrapped := WrapFlags(catalog)
	require.Equal(t, len(catalog), len(wrapped))
	for i, f := range wrapped {
		assert.DeepEqual(t, catalog[i].Names(), f.Names())
	}
}

func TestLoadFlagsFromConfig(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "flags.yaml")
	yaml := "verbosity: debug\nmonitoring-host: 0.0.0.0\nenable-tracing: true\ntrace-sample-fraction: 0.75\n"
	require.NoError(t, ioutil.WriteFile(configFile, []byte(yaml), 0600))

	app := cli.App{}
	set := flag.NewFlagSet("test", 0)
	wrapped := WrapFlags([]cli.Flag{
		VerbosityFlag,
		MonitoringHostFlag,
		EnableTracingFlag,
		TraceSampleFractionFlag,
		ConfigFileFlag,
	})
	for _, f := range wrapped {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Set(ConfigFileFlag.Name, configFile))
	context := cli.NewContext(&app, set, nil)

	require.NoError(t, LoadFlagsFromConfig(context, wrapped))

	assert.Equal(t, "debug", context.String(VerbosityFlag.Name))
	assert.Equal(t, "0.0.0.0", context.String(MonitoringHostFlag.Name))
	assert.Equal(t, true, context.Bool(EnableTracingFlag.Name))
	assert.Equal(t, 0.75, context.Float64(TraceSampleFractionFlag.Name))
}

func TestLoadFlagsFromConfig_NoFileSet(t *testing.T) {
	app := cli.App{}
	set := flag.NewFlagSet("test", 0)
	wrapped := WrapFlags([]cli.Flag{VerbosityFlag, ConfigFileFlag})
	for _, f := range wrapped {
		require.NoError(t, f.Apply(set))
	}
	context := cli.NewContext(&app, set, nil)

	require.NoError(t, LoadFlagsFromConfig(context, wrapped))
	assert.Equal(t, "info", context.String(VerbosityFlag.Name))
}
