package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zerfoo/skonnx/pkg/converter"
	"github.com/zerfoo/skonnx/pkg/zmfexport"
)

var exportCmd = &cobra.Command{
	Use:   "export-zmf [onnx-file]",
	Short: "Convert an ONNX artifact to the ZMF format",
	Long: `Export-zmf reads an ONNX model, by default the artifact written by convert,
and saves it as a ZMF model next to it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := viper.GetString("output")
		if len(args) == 1 {
			src = args[0]
		}
		dst, _ := cmd.Flags().GetString("output")
		if dst == "" {
			dst = strings.TrimSuffix(src, filepath.Ext(src)) + ".zmf"
		}

		zm, err := zmfexport.ExportFile(src, dst, converter.ProducerVersion)
		if err != nil {
			return fmt.Errorf("failed to export %s: %w", src, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Successfully converted and saved model to: %s (%d nodes, %d parameters)\n",
			dst, len(zm.GetGraph().GetNodes()), len(zm.GetGraph().GetParameters()))
		return nil
	},
}

func init() {
	exportCmd.Flags().String("output", "", "path for the ZMF file (default: input path with .zmf)")

	rootCmd.AddCommand(exportCmd)
}
