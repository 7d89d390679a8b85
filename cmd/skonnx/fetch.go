package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zerfoo/skonnx/pkg/fetch"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [object]",
	Short: "Download a classifier pickle from Supabase storage",
	Long: `Fetch downloads an object from a Supabase storage bucket, by default the
configured source pickle, so convert can run on it. The project URL and key come
from storage.url and storage.key, or SUPABASE_URL for the URL.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := filepath.Base(viper.GetString("source"))
		if len(args) == 1 {
			name = args[0]
		}
		dir, _ := cmd.Flags().GetString("dir")

		logger, closeLog, err := newLogger(viper.GetViper())
		if err != nil {
			return err
		}
		defer func() { _ = closeLog() }()

		bucket := viper.GetString("storage.bucket")
		src := fetch.NewSupabaseSource(viper.GetString("storage.url"), bucket, viper.GetString("storage.key"))
		fmt.Fprintf(cmd.OutOrStdout(), "Fetching '%s' from bucket '%s'...\n", name, bucket)

		result, err := fetch.New(src).Fetch(commandContext(cmd), name, dir)
		if err != nil {
			logger.Error("fetch failed", zap.String("object", name), zap.Error(err))
			return err
		}
		logger.Info("fetched", zap.String("object", name), zap.String("path", result.Path), zap.Int64("bytes", result.Bytes))
		fmt.Fprintf(cmd.OutOrStdout(), "Successfully downloaded model to: %s\n", result.Path)
		return nil
	},
}

func init() {
	fetchCmd.Flags().String("dir", ".", "directory to write the object into")
	fetchCmd.Flags().String("bucket", "", "storage bucket (default models)")
	fetchCmd.Flags().String("url", "", "Supabase project URL")
	fetchCmd.Flags().String("key", "", "Supabase API key")

	_ = viper.BindPFlag("storage.bucket", fetchCmd.Flags().Lookup("bucket"))
	_ = viper.BindPFlag("storage.url", fetchCmd.Flags().Lookup("url"))
	_ = viper.BindPFlag("storage.key", fetchCmd.Flags().Lookup("key"))

	rootCmd.AddCommand(fetchCmd)
}
