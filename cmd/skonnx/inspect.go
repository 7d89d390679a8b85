package main

import (
	"github.com/spf13/cobra"

	"github.com/zerfoo/skonnx/pkg/inspector"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <model-file>",
	Short: "Print a summary of an ONNX or ZMF model",
	Long: `Inspect prints the IR version, opsets, inputs and outputs with their shapes,
and the nodes of a model file. The file type is taken from the extension unless
--type is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileType, _ := cmd.Flags().GetString("type")
		format, _ := cmd.Flags().GetString("format")
		return inspector.Inspect(cmd.OutOrStdout(), args[0], fileType, format)
	},
}

func init() {
	inspectCmd.Flags().String("type", "", "model type: onnx or zmf")
	inspectCmd.Flags().String("format", inspector.FormatText, "output format: text or yaml")

	rootCmd.AddCommand(inspectCmd)
}
