package main

import (
	"errors"

	"github.com/MarcoPoloResearchLab/lumina/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli carries the configuration shared by every command of one invocation.
type cli struct {
	viper   *viper.Viper
	cfgFile string
}

func newRootCommand() *cobra.Command {
	state := &cli{viper: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "lumina",
		Short: "Lumina Notes server",
		Long: `Lumina Notes keeps a single list of notes behind a password gate.
Running without a subcommand serves the notes API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.runServer(cmd.Context())
		},
	}

	state.setupFlags(rootCmd)
	rootCmd.AddCommand(newExportCommand(state), newListCommand(state))
	return rootCmd
}

func (s *cli) setupFlags(cmd *cobra.Command) {
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&s.cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.StringSlice("allowed-origins", nil, "Browser origins allowed to send the session cookie")
	flags.String("storage-driver", defaults.GetString("storage.driver"), "Storage driver (sqlite, redis, memory)")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("redis-address", defaults.GetString("redis.address"), "Redis server address")
	flags.Duration("debounce", defaults.GetDuration("editor.debounce"), "Quiet period before an edit is committed")
	flags.Duration("session-ttl", defaults.GetDuration("session.ttl"), "Lifetime of an unlocked session token")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	s.bindFlag(cmd, "http.address", "http-address")
	s.bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	s.bindFlag(cmd, "storage.driver", "storage-driver")
	s.bindFlag(cmd, "database.path", "database-path")
	s.bindFlag(cmd, "redis.address", "redis-address")
	s.bindFlag(cmd, "editor.debounce", "debounce")
	s.bindFlag(cmd, "session.ttl", "session-ttl")
	s.bindFlag(cmd, "log.level", "log-level")
}

func (s *cli) bindFlag(cmd *cobra.Command, key, flag string) {
	if err := s.viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func (s *cli) initConfig() error {
	if s.cfgFile != "" {
		s.viper.SetConfigFile(s.cfgFile)
	} else {
		s.viper.SetConfigName("lumina")
		s.viper.AddConfigPath(".")
	}

	if err := s.viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if s.cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func (s *cli) loadConfig() (config.AppConfig, error) {
	return config.Load(s.viper)
}
