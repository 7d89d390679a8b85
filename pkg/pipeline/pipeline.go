// Package pipeline runs the convert workflow: load a pickled classifier,
// convert it to ONNX, write the artifact, validate it, and smoke-test it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"go.uber.org/zap"

	"github.com/zerfoo/skonnx/internal/onnx"
	"github.com/zerfoo/skonnx/pkg/checker"
	"github.com/zerfoo/skonnx/pkg/converter"
	"github.com/zerfoo/skonnx/pkg/onnxeval"
	"github.com/zerfoo/skonnx/pkg/sklearn"
)

// Tolerance is the largest probability difference the equivalence check
// accepts between the estimator and the converted graph.
const Tolerance = 1e-5

// Config holds the inputs of one run.
type Config struct {
	Source            string
	Output            string
	InputName         string
	Features          int
	TargetOpset       int64
	Sample            []float32
	ZipMap            bool
	VerifyEquivalence bool
	Bucket            string
}

// DefaultSample is the smoke-test feature vector
// [gender, age, variant, disease, drug, dosage].
var DefaultSample = []float32{1.0, 0.5, 0.3, 0.7, 0.2, 0.8}

// DefaultConfig converts drug_response_model_1.pkl next to the binary with
// the graph options of converter.DefaultOptions.
func DefaultConfig() Config {
	opts := converter.DefaultOptions()
	return Config{
		Source:            "drug_response_model_1.pkl",
		Output:            "drug_response_model_1.onnx",
		InputName:         opts.InputName,
		Features:          opts.NumFeatures,
		TargetOpset:       opts.TargetOpset,
		Sample:            append([]float32(nil), DefaultSample...),
		ZipMap:            opts.ZipMap,
		VerifyEquivalence: true,
		Bucket:            "models",
	}
}

// Stage names the step a run failed in.
type Stage string

const (
	StageLoad        Stage = "LoadError"
	StageConversion  Stage = "ConversionError"
	StageIO          Stage = "IOError"
	StageValidation  Stage = "ValidationError"
	StageEquivalence Stage = "EquivalenceError"
)

// StageError is returned by Run for any failure.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the stage err failed in, or "" when err is not a StageError.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

func fail(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Run executes the workflow and writes its report to out. Steps run in
// order and the first failure aborts the rest.
func Run(ctx context.Context, cfg Config, out io.Writer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("source", cfg.Source), zap.String("output", cfg.Output))

	fmt.Fprintln(out, "Loading the pickle model...")
	est, err := sklearn.Load(cfg.Source)
	if err != nil {
		logger.Error("load failed", zap.Error(err))
		return fail(StageLoad, err)
	}
	logger.Info("model loaded", zap.String("type", est.TypeName()))

	fmt.Fprintf(out, "Model type: <class '%s'>\n", est.TypeName())
	if classes := est.Classes(); classes != nil {
		fmt.Fprintf(out, "Model classes: %s\n", classes)
	} else {
		fmt.Fprintln(out, "Model classes: N/A")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprintln(out, "Converting to ONNX...")
	opts := converter.Options{
		InputName:   cfg.InputName,
		NumFeatures: cfg.Features,
		TargetOpset: cfg.TargetOpset,
		ZipMap:      cfg.ZipMap,
	}
	model, err := converter.Convert(est, opts)
	if err != nil {
		logger.Error("conversion failed", zap.Error(err))
		return fail(StageConversion, err)
	}

	data, err := onnx.Marshal(model)
	if err != nil {
		return fail(StageIO, err)
	}
	if err := os.WriteFile(cfg.Output, data, 0o644); err != nil {
		logger.Error("write failed", zap.Error(err))
		return fail(StageIO, err)
	}
	logger.Info("artifact written", zap.Int("bytes", len(data)), zap.Int64("opset", cfg.TargetOpset))
	fmt.Fprintf(out, "Model successfully converted to: %s\n", cfg.Output)

	reloaded, err := onnx.LoadFile(cfg.Output)
	if err != nil {
		return fail(StageValidation, err)
	}
	if err := checker.Check(reloaded); err != nil {
		logger.Error("validation failed", zap.Error(err))
		return fail(StageValidation, err)
	}
	fmt.Fprintln(out, "ONNX model validation passed!")

	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nTesting with sample data...")
	want, err := predictSample(est, cfg.Sample)
	if err != nil {
		return fail(StageConversion, err)
	}
	fmt.Fprintf(out, "Original model - %s\n", want)

	if cfg.VerifyEquivalence {
		got, err := evaluateSample(reloaded, cfg.InputName, cfg.Sample, est.Classes())
		if err != nil {
			return fail(StageEquivalence, err)
		}
		fmt.Fprintf(out, "ONNX model - %s\n", got)
		if err := compare(want, got); err != nil {
			logger.Error("equivalence check failed", zap.Error(err))
			return fail(StageEquivalence, err)
		}
		logger.Info("equivalence check passed", zap.String("label", got.label))
	}

	fmt.Fprintln(out, "\nTo use the ONNX model:")
	fmt.Fprintf(out, "1. Upload '%s' to your Supabase storage (bucket %q)\n", cfg.Output, cfg.Bucket)
	fmt.Fprintln(out, "2. The edge function will automatically use the ONNX model")
	return nil
}

// prediction is one smoke-test result. proba is nil when the model has no
// probability output.
type prediction struct {
	label string
	proba []float64
}

func (p prediction) String() string {
	if p.proba == nil {
		return "Prediction: " + p.label
	}
	return fmt.Sprintf("Prediction: %s, Probability: %s", p.label, sklearn.FormatProba(p.proba))
}

func predictSample(est sklearn.Estimator, x []float32) (prediction, error) {
	m, ok := est.(sklearn.Predictor)
	if !ok {
		return prediction{}, fmt.Errorf("%s has no predict method", est.TypeName())
	}
	label, err := m.Predict(x)
	if err != nil {
		return prediction{}, err
	}
	p := prediction{label: label.String()}
	if pm, ok := est.(sklearn.ProbaPredictor); ok {
		if p.proba, err = pm.PredictProba(x); err != nil {
			return prediction{}, err
		}
	}
	return p, nil
}

func evaluateSample(model *onnx.ModelProto, input string, x []float32, classes *sklearn.Labels) (prediction, error) {
	sess, err := onnxeval.New(model)
	if err != nil {
		return prediction{}, err
	}
	outs, err := sess.Run(map[string]*onnxeval.Tensor{input: onnxeval.FloatMatrix(x)})
	if err != nil {
		return prediction{}, err
	}
	labels, ok := outs[converter.LabelOutput].(*onnxeval.Tensor)
	if !ok {
		return prediction{}, fmt.Errorf("graph has no %s output", converter.LabelOutput)
	}
	label, err := labels.Label(0)
	if err != nil {
		return prediction{}, err
	}
	p := prediction{label: label}

	switch v := outs[converter.ProbaOutput].(type) {
	case *onnxeval.MapSeq:
		p.proba = make([]float64, classes.Len())
		for i := range p.proba {
			f, ok := v.Get(0, classes.At(i).String())
			if !ok {
				return prediction{}, fmt.Errorf("probability of class %s missing", classes.At(i))
			}
			p.proba[i] = float64(f)
		}
	case *onnxeval.Tensor:
		for _, f := range v.Row(0) {
			p.proba = append(p.proba, float64(f))
		}
	}
	return p, nil
}

func compare(want, got prediction) error {
	if want.label != got.label {
		return fmt.Errorf("converted graph predicts %s, model predicts %s", got.label, want.label)
	}
	if want.proba == nil {
		return nil
	}
	if len(want.proba) != len(got.proba) {
		return fmt.Errorf("converted graph returns %d probabilities, model returns %d", len(got.proba), len(want.proba))
	}
	for i := range want.proba {
		if d := math.Abs(want.proba[i] - got.proba[i]); d > Tolerance {
			return fmt.Errorf("probability %d differs by %g", i, d)
		}
	}
	return nil
}
