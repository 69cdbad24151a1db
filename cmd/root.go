package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yug-minds/livecore/internal/output"
	"github.com/yug-minds/livecore/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "livecore",
	Short: "Refresh and session-liveness runtime for the school dashboard",
	Long: `livecore keeps a school-management dashboard client honest about its
session. It throttles data refreshes per consumer, guards unsaved form
edits, and watches session liveness with a post-login grace window.
The dashboard shell feeds it lifecycle events over a local HTTP API.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/livecore/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "livecore")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("LIVECORE")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultStateDir := filepath.Join(home, ".config", "livecore")

	viper.SetDefault("state_dir", defaultStateDir)
	viper.SetDefault("db_path", filepath.Join(defaultStateDir, "livecore.db"))
	viper.SetDefault("persist", true)
	viper.SetDefault("listen", "127.0.0.1:7600")

	viper.SetDefault("backend.base_url", "http://localhost:3000/api")
	viper.SetDefault("backend.token", "")

	viper.SetDefault("marker.backend", "file")
	viper.SetDefault("marker.path", filepath.Join(defaultStateDir, "fresh_login"))
	viper.SetDefault("marker.redis.addr", "localhost:6379")
	viper.SetDefault("marker.redis.password", "")
	viper.SetDefault("marker.redis.db", 0)
	viper.SetDefault("marker.redis.key", "livecore:fresh_login")
	viper.SetDefault("marker.redis.ttl", "1h")

	viper.SetDefault("liveness.grace_period", "5m")
	viper.SetDefault("liveness.check_interval", "2m")
	viper.SetDefault("liveness.debounce", "1s")
	viper.SetDefault("liveness.min_spacing", "30s")
	viper.SetDefault("liveness.inactivity_timeout", "30m")
	viper.SetDefault("liveness.inactivity_warning", "25m")

	viper.SetDefault("refresh.recorder_capacity", 256)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	// The store is opened lazily so config/version commands run without
	// touching the database.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}
