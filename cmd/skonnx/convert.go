package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zerfoo/skonnx/internal/config"
	"github.com/zerfoo/skonnx/pkg/pipeline"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert the pickled classifier to ONNX and validate it",
	Long: `Convert loads the classifier pickle, converts it to an ONNX graph with a
single float input of shape [None, features], writes the artifact, re-loads it
for structural validation, and predicts the sample with the original model.

Failures are reported on the console and do not change the exit status.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(cmd, viper.GetViper())
	},
}

func init() {
	convertCmd.Flags().String("source", "", "classifier pickle to convert (default drug_response_model_1.pkl)")
	convertCmd.Flags().String("output", "", "ONNX artifact to write (default drug_response_model_1.onnx)")
	convertCmd.Flags().String("input-name", "", "name of the graph input (default input)")
	convertCmd.Flags().Int("features", 0, "number of input features (default 6)")
	convertCmd.Flags().Int64("target-opset", 0, "ONNX opset of the default domain (default 12)")
	convertCmd.Flags().String("sample", "", "comma-separated feature values for the smoke test")
	convertCmd.Flags().Bool("zipmap", true, "emit probabilities as a sequence of class maps")
	convertCmd.Flags().Bool("verify", true, "evaluate the converted graph on the sample and compare")

	for key, flag := range map[string]string{
		"source":             "source",
		"output":             "output",
		"input_name":         "input-name",
		"features":           "features",
		"target_opset":       "target-opset",
		"sample":             "sample",
		"zipmap":             "zipmap",
		"verify_equivalence": "verify",
	} {
		_ = viper.BindPFlag(key, convertCmd.Flags().Lookup(flag))
	}

	rootCmd.AddCommand(convertCmd)
}

// runConvert runs the workflow and reports any failure on the command output.
// Only configuration errors are returned.
func runConvert(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(v)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	out := cmd.OutOrStdout()
	err = pipeline.Run(commandContext(cmd), pipeline.Config{
		Source:            cfg.Source,
		Output:            cfg.Output,
		InputName:         cfg.InputName,
		Features:          cfg.Features,
		TargetOpset:       cfg.TargetOpset,
		Sample:            cfg.Sample,
		ZipMap:            cfg.ZipMap,
		VerifyEquivalence: cfg.VerifyEquivalence,
		Bucket:            cfg.Storage.Bucket,
	}, out, logger)
	if err != nil {
		logger.Error("convert failed", zap.String("stage", string(pipeline.StageOf(err))), zap.Error(err))
		fmt.Fprintf(out, "Error converting model: %v\n", err)
		fmt.Fprintf(out, "Make sure '%s' is in the same directory\n", cfg.Source)
	}
	return nil
}
