package cfg

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlags_Defaults(t *testing.T) {
	v := viper.New()
	viper.Reset()
	defer viper.Reset()

	flagSet := pflag.NewFlagSet("wolfs", pflag.ContinueOnError)
	require.NoError(t, BindFlags(flagSet))
	require.NoError(t, flagSet.Parse(nil))

	assert.Equal(t, int64(1024), viper.GetInt64("cache.max-size-mb"))
	assert.Equal(t, 0.99, viper.GetFloat64("cache.threshold"))
	assert.True(t, viper.GetBool("cache.noatime"))
	assert.True(t, viper.GetBool("cache.warm-on-mount"))
	assert.Equal(t, "INFO", viper.GetString("logging.severity"))
	assert.Equal(t, "text", viper.GetString("logging.format"))
	_ = v
}

func TestBindFlags_OverrideFromArgs(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	flagSet := pflag.NewFlagSet("wolfs", pflag.ContinueOnError)
	require.NoError(t, BindFlags(flagSet))
	require.NoError(t, flagSet.Parse([]string{"--log-severity=TRACE", "--cache-size-mb=2048"}))

	assert.Equal(t, "TRACE", viper.GetString("logging.severity"))
	assert.Equal(t, int64(2048), viper.GetInt64("cache.max-size-mb"))
}

func TestLogSeverityRank(t *testing.T) {
	assert.Equal(t, 0, TraceLogSeverity.Rank())
	assert.Less(t, DebugLogSeverity.Rank(), InfoLogSeverity.Rank())
	assert.Equal(t, -1, LogSeverity("bogus").Rank())
}
