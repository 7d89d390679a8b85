package checker

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies the rule an Issue violates.
type Code string

const (
	// ErrIRVersion indicates a missing or unsupported IR version.
	ErrIRVersion Code = "model-ir-version"
	// ErrOpsetImport indicates missing or duplicated opset imports.
	ErrOpsetImport Code = "model-opset-import"
	// ErrGraph indicates the model has no graph or the graph has no name.
	ErrGraph Code = "graph"
	// ErrValueInfo indicates an input, output or value info without name or type.
	ErrValueInfo Code = "graph-value-info"
	// ErrDuplicateName indicates a value produced more than once.
	ErrDuplicateName Code = "graph-ssa"
	// ErrUndefinedInput indicates a node input not produced earlier in the graph.
	ErrUndefinedInput Code = "graph-topological-order"
	// ErrOutputNotProduced indicates a graph output no node or input defines.
	ErrOutputNotProduced Code = "graph-output"
	// ErrUnknownOperator indicates an op type with no schema in the imported opsets.
	ErrUnknownOperator Code = "node-schema"
	// ErrArity indicates a node with too few or too many inputs or outputs.
	ErrArity Code = "node-arity"
	// ErrAttributeNotDeclared indicates an attribute the schema does not define.
	ErrAttributeNotDeclared Code = "node-attribute-undeclared"
	// ErrAttributeType indicates an attribute whose type differs from the schema.
	ErrAttributeType Code = "node-attribute-type"
	// ErrRequiredAttributeMissing indicates a required attribute is absent.
	ErrRequiredAttributeMissing Code = "node-attribute-required"
	// ErrInconsistent indicates attributes that disagree with each other.
	ErrInconsistent Code = "node-consistency"
)

// Issue is one structural problem found in a model.
type Issue struct {
	Code    Code
	Message string
	// Path locates the problem, e.g. "graph/node[TreeEnsembleClassifier]".
	Path string
}

func (i Issue) Error() string {
	if i.Path == "" {
		return fmt.Sprintf("[%s] %s", i.Code, i.Message)
	}
	return fmt.Sprintf("[%s] %s at %s", i.Code, i.Message, i.Path)
}

// Issues is an error listing every problem found.
type Issues []Issue

func (is Issues) Error() string {
	switch len(is) {
	case 0:
		return "no issues"
	case 1:
		return is[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more)", is[0].Error(), len(is)-1)
	}
}

// String lists every issue on its own line.
func (is Issues) String() string {
	var b strings.Builder
	for _, i := range is {
		b.WriteString(i.Error())
		b.WriteByte('\n')
	}
	return b.String()
}

// Has reports whether any issue carries code.
func (is Issues) Has(code Code) bool {
	for _, i := range is {
		if i.Code == code {
			return true
		}
	}
	return false
}

// AsIssues extracts the issue list from an error returned by Check.
func AsIssues(err error) (Issues, bool) {
	var is Issues
	if errors.As(err, &is) {
		return is, true
	}
	return nil, false
}

func (is *Issues) addf(code Code, path, format string, args ...any) {
	*is = append(*is, Issue{Code: code, Message: fmt.Sprintf(format, args...), Path: path})
}
