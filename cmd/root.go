package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"botweave/internal/config"
	"botweave/internal/paths"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:     "botweave",
	Short:   "Multi-tenant chat-bot orchestration daemon",
	Long: `Botweave connects chat platform accounts (QQ webhook, OneBot v11) to
node-based workflows: inbound events run matching workflows and replies
go back out through the adapter they arrived on.

Run 'botweave serve' to start the daemon.`,
	Version: version,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: <data_dir>/botweave.yaml)")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "",
		"data directory (default: ~/.botweave or $BOTWEAVE_DATA)")

	// Bind flags to viper
	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("server.host", defaults.Server.Host)
	viper.SetDefault("server.port", defaults.Server.Port)
	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("kv.backend", defaults.KV.Backend)
	viper.SetDefault("kv.redis.addr", defaults.KV.Redis.Addr)
	viper.SetDefault("kv.redis.db", defaults.KV.Redis.DB)
	viper.SetDefault("scheduler.enabled", defaults.Scheduler.Enabled)
	viper.SetDefault("scheduler.timezone", defaults.Scheduler.Timezone)
	viper.SetDefault("engine.max_steps", defaults.Engine.MaxSteps)
	viper.SetDefault("engine.snippet_timeout", defaults.Engine.SnippetTimeout)
	viper.SetDefault("engine.snippet_runner", defaults.Engine.SnippetRunner)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)

	// BOTWEAVE_SERVER_PORT=9000 overrides server.port, and so on.
	viper.SetEnvPrefix("BOTWEAVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// The config file lives inside the data directory, next to the
		// database it configures.
		dataDir := paths.ResolveDataDir(viper.GetString("data_dir"))
		viper.SetConfigFile(paths.ConfigPath(dataDir))
	}

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine: defaults apply, and 'config init'
		// writes a commented starter. Anything else (bad YAML, unreadable
		// file) should not be silently swallowed.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			cobra.CheckErr(err)
		}
	}

	cobra.CheckErr(viper.Unmarshal(&cfg))
}

// Execute dispatches to the selected subcommand.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion installs the build version stamped in by main.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
