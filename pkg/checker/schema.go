package checker

import "github.com/zerfoo/skonnx/internal/onnx"

type attrSpec struct {
	typ      onnx.AttributeProto_AttributeType
	required bool
}

type schema struct {
	since          int64
	minIn, maxIn   int
	minOut, maxOut int
	attrs          map[string]attrSpec
	consistent     func(n *onnx.NodeProto, g *graphInfo, path string, is *Issues)
}

const (
	ints    = onnx.AttributeProto_INTS
	floats  = onnx.AttributeProto_FLOATS
	strs    = onnx.AttributeProto_STRINGS
	str     = onnx.AttributeProto_STRING
	integer = onnx.AttributeProto_INT
)

// schemas holds the operators this package knows, by domain and op type.
var schemas = map[string]map[string]schema{
	"": {
		"Identity": {since: 1, minIn: 1, maxIn: 1, minOut: 1, maxOut: 1},
		"Cast": {since: 1, minIn: 1, maxIn: 1, minOut: 1, maxOut: 1, attrs: map[string]attrSpec{
			"to": {integer, true},
		}},
	},
	"ai.onnx.ml": {
		"TreeEnsembleClassifier": {since: 1, minIn: 1, maxIn: 1, minOut: 2, maxOut: 2, attrs: map[string]attrSpec{
			"base_values":                     {typ: floats},
			"class_ids":                       {typ: ints},
			"class_nodeids":                   {typ: ints},
			"class_treeids":                   {typ: ints},
			"class_weights":                   {typ: floats},
			"classlabels_int64s":              {typ: ints},
			"classlabels_strings":             {typ: strs},
			"nodes_falsenodeids":              {typ: ints},
			"nodes_featureids":                {typ: ints},
			"nodes_hitrates":                  {typ: floats},
			"nodes_missing_value_tracks_true": {typ: ints},
			"nodes_modes":                     {typ: strs},
			"nodes_nodeids":                   {typ: ints},
			"nodes_treeids":                   {typ: ints},
			"nodes_truenodeids":               {typ: ints},
			"nodes_values":                    {typ: floats},
			"post_transform":                  {typ: str},
		}, consistent: checkTreeEnsemble},
		"LinearClassifier": {since: 1, minIn: 1, maxIn: 1, minOut: 2, maxOut: 2, attrs: map[string]attrSpec{
			"classlabels_ints":    {typ: ints},
			"classlabels_strings": {typ: strs},
			"coefficients":        {floats, true},
			"intercepts":          {typ: floats},
			"multi_class":         {typ: integer},
			"post_transform":      {typ: str},
		}, consistent: checkLinear},
		"Normalizer": {since: 1, minIn: 1, maxIn: 1, minOut: 1, maxOut: 1, attrs: map[string]attrSpec{
			"norm": {typ: str},
		}, consistent: checkNormalizer},
		"ZipMap": {since: 1, minIn: 1, maxIn: 1, minOut: 1, maxOut: 1, attrs: map[string]attrSpec{
			"classlabels_int64s":  {typ: ints},
			"classlabels_strings": {typ: strs},
		}, consistent: checkZipMap},
	},
}

func lookup(domain, opType string) (schema, bool) {
	if domain == "ai.onnx" {
		domain = ""
	}
	ops, ok := schemas[domain]
	if !ok {
		return schema{}, false
	}
	s, ok := ops[opType]
	return s, ok
}
