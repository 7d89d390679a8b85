// Package converter turns fitted scikit-learn classifiers into ONNX graphs
// built from the ai.onnx.ml operator set.
package converter

import (
	"errors"
	"fmt"

	"github.com/zerfoo/skonnx/internal/onnx"
	"github.com/zerfoo/skonnx/pkg/sklearn"
)

// MLDomain is the operator domain of the traditional ML operators.
const MLDomain = "ai.onnx.ml"

// Graph output names.
const (
	LabelOutput  = "output_label"
	ProbaOutput  = "output_probability"
	ScoresOutput = "output_scores"
)

// ProducerName is written to every model.
const ProducerName = "skonnx"

// ProducerVersion is written to every model. It is set at link time.
var ProducerVersion = "0.1.0"

// ErrUnsupportedModel is returned for estimators without a converter.
var ErrUnsupportedModel = errors.New("unsupported model type")

// Options controls the shape of the produced graph.
type Options struct {
	// InputName names the float feature tensor of shape [None, NumFeatures].
	InputName   string
	NumFeatures int
	TargetOpset int64
	// ZipMap wraps probabilities into a sequence of label -> probability maps.
	ZipMap bool
}

// DefaultOptions describes the default graph: a six-feature float input named
// "input", opset 12 and ZipMap probabilities.
func DefaultOptions() Options {
	return Options{InputName: "input", NumFeatures: 6, TargetOpset: 12, ZipMap: true}
}

// opsetVersions maps a default-domain opset to the IR version and ai.onnx.ml
// opset released with it.
var opsetVersions = map[int64]struct{ ir, ml int64 }{
	9:  {4, 1},
	10: {5, 1},
	11: {6, 2},
	12: {7, 2},
	13: {7, 2},
	14: {7, 2},
	15: {8, 2},
}

// Versions returns the IR version and ai.onnx.ml opset for a target opset.
func Versions(opset int64) (ir, ml int64, err error) {
	v, ok := opsetVersions[opset]
	if !ok {
		return 0, 0, fmt.Errorf("target opset %d is not supported (want 9..15)", opset)
	}
	return v.ir, v.ml, nil
}

// Convert builds an ONNX model computing est.
func Convert(est sklearn.Estimator, opts Options) (*onnx.ModelProto, error) {
	if opts.InputName == "" {
		return nil, fmt.Errorf("input name is empty")
	}
	ir, ml, err := Versions(opts.TargetOpset)
	if err != nil {
		return nil, err
	}
	fn, ok := Get(est.Kind())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, est.TypeName())
	}
	p, ok := est.(sklearn.Predictor)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot predict", ErrUnsupportedModel, est.TypeName())
	}
	classes := est.Classes()
	if classes == nil || classes.Len() < 2 {
		return nil, fmt.Errorf("%s: at least two classes are required", est.TypeName())
	}
	if opts.NumFeatures <= 0 {
		return nil, fmt.Errorf("feature count must be positive, got %d", opts.NumFeatures)
	}
	if n := p.NumFeatures(); n != opts.NumFeatures {
		return nil, fmt.Errorf("%s was fitted on %d features, input declares %d", est.TypeName(), n, opts.NumFeatures)
	}

	ctx := newContext(opts)
	ctx.Reserve(LabelOutput)
	ctx.Reserve(ProbaOutput)
	ctx.Reserve(ScoresOutput)
	outs, err := fn(ctx, est)
	if err != nil {
		return nil, err
	}

	g := ctx.Graph
	g.Name = est.Kind()
	g.Input = []*onnx.ValueInfoProto{{
		Name: opts.InputName,
		Type: onnx.TensorType(onnx.TensorProto_FLOAT, -1, int64(opts.NumFeatures)),
	}}
	g.Output = []*onnx.ValueInfoProto{{
		Name: outs.Label,
		Type: onnx.TensorType(labelType(classes), -1),
	}}
	switch {
	case outs.Proba != "":
		g.Output = append(g.Output, probaOutput(ctx, outs.Proba, classes))
	case outs.Scores != "":
		g.Output = append(g.Output, &onnx.ValueInfoProto{
			Name: outs.Scores,
			Type: onnx.TensorType(onnx.TensorProto_FLOAT, -1, int64(classes.Len())),
		})
	}

	return &onnx.ModelProto{
		IrVersion: ir,
		OpsetImport: []*onnx.OperatorSetIdProto{
			{Domain: "", Version: opts.TargetOpset},
			{Domain: MLDomain, Version: ml},
		},
		ProducerName:    ProducerName,
		ProducerVersion: ProducerVersion,
		Domain:          "ai.onnx",
		Graph:           g,
		MetadataProps: []*onnx.StringStringEntryProto{
			{Key: "source_type", Value: est.TypeName()},
		},
	}, nil
}

// probaOutput exposes the probability tensor as the graph's probability
// output, zipped with the class labels when requested.
func probaOutput(ctx *Context, proba string, classes *sklearn.Labels) *onnx.ValueInfoProto {
	if !ctx.Options.ZipMap {
		ctx.AddNode("Identity", "", []string{proba}, []string{ProbaOutput})
		return &onnx.ValueInfoProto{
			Name: ProbaOutput,
			Type: onnx.TensorType(onnx.TensorProto_FLOAT, -1, int64(classes.Len())),
		}
	}
	ctx.AddNode("ZipMap", MLDomain, []string{proba}, []string{ProbaOutput},
		classLabels("classlabels_int64s", classes))
	return &onnx.ValueInfoProto{
		Name: ProbaOutput,
		Type: onnx.SequenceOfMaps(labelType(classes)),
	}
}

func labelType(classes *sklearn.Labels) onnx.TensorProto_DataType {
	if classes.IsString() {
		return onnx.TensorProto_STRING
	}
	return onnx.TensorProto_INT64
}

// classLabels builds the label attribute; intName differs between operators
// (classlabels_int64s or classlabels_ints).
func classLabels(intName string, classes *sklearn.Labels) *onnx.AttributeProto {
	if classes.IsString() {
		return onnx.AttrStrings("classlabels_strings", classes.Strings)
	}
	return onnx.AttrInts(intName, classes.Ints)
}
