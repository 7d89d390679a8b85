// Package inspector prints summaries of ONNX and ZMF model files.
package inspector

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zerfoo/zmf"
	"go.yaml.in/yaml/v3"

	"github.com/zerfoo/skonnx/internal/onnx"
	"github.com/zerfoo/skonnx/pkg/zmfexport"
)

// Output formats accepted by Inspect.
const (
	FormatText = "text"
	FormatYAML = "yaml"
)

// Value describes a graph input or output.
type Value struct {
	Name  string  `yaml:"name"`
	Type  string  `yaml:"type,omitempty"`
	Shape []int64 `yaml:"shape,flow"`
}

// Node describes one operator. Attributes lists the attribute names, sorted.
type Node struct {
	Name       string   `yaml:"name"`
	OpType     string   `yaml:"op_type"`
	Inputs     []string `yaml:"inputs,flow"`
	Outputs    []string `yaml:"outputs,flow"`
	Attributes []string `yaml:"attributes,flow,omitempty"`
}

// Summary is the format-independent description of a model file.
type Summary struct {
	Kind            string            `yaml:"kind"`
	Path            string            `yaml:"path"`
	Producer        string            `yaml:"producer,omitempty"`
	ProducerVersion string            `yaml:"producer_version,omitempty"`
	IRVersion       int64             `yaml:"ir_version,omitempty"`
	Opsets          map[string]int64  `yaml:"opsets"`
	Metadata        map[string]string `yaml:"metadata,omitempty"`
	Inputs          []Value           `yaml:"inputs"`
	Outputs         []Value           `yaml:"outputs"`
	Nodes           []Node            `yaml:"nodes"`
	Parameters      int               `yaml:"parameters"`
}

// SummarizeONNX describes an ONNX model. The default domain is listed as
// "ai.onnx".
func SummarizeONNX(path string, m *onnx.ModelProto) Summary {
	s := Summary{
		Kind:            "onnx",
		Path:            path,
		Producer:        m.ProducerName,
		ProducerVersion: m.ProducerVersion,
		IRVersion:       m.GetIrVersion(),
		Opsets:          make(map[string]int64),
	}
	for _, op := range m.GetOpsetImport() {
		domain := op.Domain
		if domain == "" {
			domain = "ai.onnx"
		}
		s.Opsets[domain] = op.Version
	}
	if len(m.MetadataProps) > 0 {
		s.Metadata = make(map[string]string, len(m.MetadataProps))
		for _, p := range m.MetadataProps {
			s.Metadata[p.Key] = p.Value
		}
	}
	g := m.GetGraph()
	for _, in := range g.GetInput() {
		s.Inputs = append(s.Inputs, onnxValue(in))
	}
	for _, out := range g.GetOutput() {
		s.Outputs = append(s.Outputs, onnxValue(out))
	}
	for _, n := range g.GetNode() {
		node := Node{Name: n.Name, OpType: n.OpType, Inputs: n.Input, Outputs: n.Output}
		if n.Domain != "" {
			node.OpType = n.Domain + "." + n.OpType
		}
		for _, a := range n.Attribute {
			node.Attributes = append(node.Attributes, a.Name)
		}
		sort.Strings(node.Attributes)
		s.Nodes = append(s.Nodes, node)
	}
	s.Parameters = len(g.GetInitializer())
	return s
}

func onnxValue(v *onnx.ValueInfoProto) Value {
	out := Value{Name: v.Name, Shape: v.GetType().Shape()}
	if t := v.GetType(); t != nil {
		out.Type = t.String()
	}
	return out
}

// SummarizeZMF describes a ZMF model.
func SummarizeZMF(path string, m *zmf.Model) Summary {
	s := Summary{
		Kind:            "zmf",
		Path:            path,
		Producer:        m.GetMetadata().GetProducerName(),
		ProducerVersion: m.GetMetadata().GetProducerVersion(),
		Opsets:          map[string]int64{"ai.onnx": m.GetMetadata().GetOpsetVersion()},
	}
	g := m.GetGraph()
	for _, in := range g.GetInputs() {
		s.Inputs = append(s.Inputs, Value{Name: in.GetName(), Shape: in.GetShape()})
	}
	for _, out := range g.GetOutputs() {
		s.Outputs = append(s.Outputs, Value{Name: out.GetName(), Shape: out.GetShape()})
	}
	for _, n := range g.GetNodes() {
		node := Node{Name: n.GetName(), OpType: n.GetOpType(), Inputs: n.GetInputs(), Outputs: n.GetOutputs()}
		for name := range n.GetAttributes() {
			node.Attributes = append(node.Attributes, name)
		}
		sort.Strings(node.Attributes)
		s.Nodes = append(s.Nodes, node)
	}
	s.Parameters = len(g.GetParameters())
	return s
}

// Load reads the model at path. kind is "onnx", "zmf", or empty to infer it
// from the file extension.
func Load(path, kind string) (Summary, error) {
	kind = strings.ToLower(kind)
	if kind == "" {
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".onnx":
			kind = "onnx"
		case ".zmf":
			kind = "zmf"
		default:
			return Summary{}, fmt.Errorf("could not infer file type from extension '%s'; set the type explicitly", ext)
		}
	}

	switch kind {
	case "onnx":
		m, err := onnx.LoadFile(path)
		if err != nil {
			return Summary{}, fmt.Errorf("failed to load ONNX model: %w", err)
		}
		return SummarizeONNX(path, m), nil
	case "zmf":
		m, err := zmfexport.Load(path)
		if err != nil {
			return Summary{}, fmt.Errorf("failed to load ZMF model: %w", err)
		}
		return SummarizeZMF(path, m), nil
	}
	return Summary{}, fmt.Errorf("unsupported model type '%s', must be 'onnx' or 'zmf'", kind)
}

// Inspect loads the model at path and writes its summary to w.
func Inspect(w io.Writer, path, kind, format string) error {
	s, err := Load(path, kind)
	if err != nil {
		return err
	}
	return Write(w, s, format)
}

// Write renders s as text or YAML.
func Write(w io.Writer, s Summary, format string) error {
	switch format {
	case "", FormatText:
		writeText(w, s)
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("failed to encode summary: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported format '%s', must be '%s' or '%s'", format, FormatText, FormatYAML)
}

func writeText(w io.Writer, s Summary) {
	fmt.Fprintf(w, "Inspecting %s model from: %s\n", strings.ToUpper(s.Kind), s.Path)
	if s.IRVersion > 0 {
		fmt.Fprintf(w, "Successfully loaded model with IR version: %d\n", s.IRVersion)
	}
	if s.Producer != "" {
		fmt.Fprintf(w, "Producer: %s %s\n", s.Producer, s.ProducerVersion)
	}
	for _, domain := range sortedKeys(s.Opsets) {
		if domain == "ai.onnx" {
			fmt.Fprintf(w, "Opset version: %d\n", s.Opsets[domain])
		} else {
			fmt.Fprintf(w, "Opset version (%s): %d\n", domain, s.Opsets[domain])
		}
	}
	for _, k := range sortedKeys(s.Metadata) {
		fmt.Fprintf(w, "Metadata: %s=%s\n", k, s.Metadata[k])
	}
	fmt.Fprintf(w, "Graph has %d nodes.\n", len(s.Nodes))
	fmt.Fprintf(w, "Graph has %d parameters.\n", s.Parameters)

	fmt.Fprintln(w, "Inputs:")
	for _, v := range s.Inputs {
		writeValue(w, v)
	}
	fmt.Fprintln(w, "Outputs:")
	for _, v := range s.Outputs {
		writeValue(w, v)
	}

	fmt.Fprintln(w, "\nNodes:")
	for _, n := range s.Nodes {
		fmt.Fprintf(w, "- Node: %s, OpType: %s\n", n.Name, n.OpType)
		fmt.Fprintf(w, "  Inputs: %v\n", n.Inputs)
		fmt.Fprintf(w, "  Outputs: %v\n", n.Outputs)
		if len(n.Attributes) > 0 {
			fmt.Fprintf(w, "  Attributes: %s\n", strings.Join(n.Attributes, ", "))
		}
	}
}

func writeValue(w io.Writer, v Value) {
	if v.Type != "" {
		fmt.Fprintf(w, "  - Name: %s, Type: %s, Shape: %v\n", v.Name, v.Type, v.Shape)
		return
	}
	fmt.Fprintf(w, "  - Name: %s, Shape: %v\n", v.Name, v.Shape)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
