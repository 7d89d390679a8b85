// Package main is the entry point for the skonnx CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zerfoo/skonnx/internal/config"
	"github.com/zerfoo/skonnx/internal/logging"
	"github.com/zerfoo/skonnx/pkg/converter"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the skonnx CLI. Without a subcommand it
// runs convert with the configured defaults.
var rootCmd = &cobra.Command{
	Use:   "skonnx",
	Short: "Convert pickled scikit-learn classifiers to ONNX",
	Long: `skonnx loads a trained scikit-learn classifier from a pickle, converts it to
an ONNX inference graph, validates the artifact, and smoke-tests it on a sample.

Settings come from flags, SKONNX_* environment variables, and skonnx.yaml in the
working directory or ~/.config/skonnx.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if version != "dev" {
			converter.ProducerVersion = version
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(cmd, viper.GetViper())
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./skonnx.yaml or ~/.config/skonnx/skonnx.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	used, err := config.Init(viper.GetViper(), cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	if used != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", used)
	}
}

// newLogger opens the log file configured under log.*.
func newLogger(v *viper.Viper) (*zap.Logger, func() error, error) {
	return logging.New(logging.Options{
		File:       v.GetString("log.file"),
		Level:      v.GetString("log.level"),
		MaxSizeMB:  v.GetInt("log.max_size_mb"),
		MaxBackups: v.GetInt("log.max_backups"),
	})
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
