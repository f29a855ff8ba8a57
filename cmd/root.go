package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nmthangdn2000/web-automation-tools/internal/config"
	"github.com/nmthangdn2000/web-automation-tools/internal/observability"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "webauto",
	Short:         "webauto drives browser sessions through publishing and interaction workflows.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1. Initialize configuration loading (Viper)
		if err := initializeConfig(viper.GetViper()); err != nil {
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}

		// 2. Unmarshal the configuration
		var cfg config.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "webauto"})
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}

		// 3. Validate the configuration
		if err := cfg.Validate(); err != nil {
			observability.InitializeLogger(cfg.Logger)
			return err
		}

		// 4. Store the configuration globally
		config.Set(&cfg)

		// 5. Initialize the logger
		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("Starting webauto", zap.String("version", Version))
		return nil
	},
}

// Execute runs the root command with a context that main cancels on shutdown signals.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		// Interrupted runs already logged their abort.
		fmt.Fprintln(os.Stderr, "Interrupted:", err)
		return err
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(newRunCmd(NewComponentFactory()))
	rootCmd.AddCommand(newBatchCmd(NewComponentFactory()))
	rootCmd.AddCommand(newInteractCmd(NewComponentFactory()))
	rootCmd.AddCommand(newRecipesCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(versionCmd)
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig(v *viper.Viper) error {
	// Set default values so the app can run with a minimal config.
	config.SetDefaults(v)

	// 1. Set up config file search paths
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// 2. Environment Variable Configuration
	v.SetEnvPrefix("WEBAUTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Database connection string
	_ = v.BindEnv("postgres.url", "WEBAUTO_POSTGRES_URL", "WEBAUTO_DATABASE_URL")

	// 3. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		// It's okay if the config file is not found, but report other errors
		// like parsing issues.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
