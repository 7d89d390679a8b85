package converter

import (
	"fmt"

	"github.com/zerfoo/skonnx/internal/onnx"
	"github.com/zerfoo/skonnx/pkg/sklearn"
)

func convertTreeEnsemble(ctx *Context, est sklearn.Estimator) (Outputs, error) {
	var trees []*sklearn.Tree
	switch m := est.(type) {
	case *sklearn.DecisionTreeClassifier:
		trees = []*sklearn.Tree{m.Tree}
	case *sklearn.RandomForestClassifier:
		trees = m.Trees
	default:
		return Outputs{}, fmt.Errorf("%w: %s is not a tree model", ErrUnsupportedModel, est.TypeName())
	}
	attrs, err := treeEnsembleAttrs(trees, est.Classes())
	if err != nil {
		return Outputs{}, err
	}
	proba := ctx.Unique("probabilities")
	ctx.AddNode("TreeEnsembleClassifier", MLDomain, []string{ctx.Input}, []string{LabelOutput, proba}, attrs...)
	return Outputs{Label: LabelOutput, Proba: proba}, nil
}

// treeEnsembleAttrs lays the trees out as TreeEnsembleClassifier attributes.
// Splits use BRANCH_LEQ with the true branch on the left child. Each leaf
// contributes its normalized class distribution divided by the tree count,
// so summing the leaves reached gives the forest average.
func treeEnsembleAttrs(trees []*sklearn.Tree, classes *sklearn.Labels) ([]*onnx.AttributeProto, error) {
	var (
		classIDs, classNodes, classTrees []int64
		classWeights                     []float32
		falseIDs, featureIDs, nodeIDs    []int64
		treeIDs, trueIDs, missingTracks  []int64
		hitRates, values                 []float32
		modes                            []string
	)
	scale := 1 / float64(len(trees))
	for t, tree := range trees {
		if tree.NClasses != classes.Len() {
			return nil, fmt.Errorf("tree %d has %d classes, expected %d", t, tree.NClasses, classes.Len())
		}
		for i, n := range tree.Nodes {
			treeIDs = append(treeIDs, int64(t))
			nodeIDs = append(nodeIDs, int64(i))
			hitRates = append(hitRates, 1)
			if n.IsLeaf() {
				modes = append(modes, "LEAF")
				featureIDs = append(featureIDs, 0)
				values = append(values, 0)
				trueIDs = append(trueIDs, 0)
				falseIDs = append(falseIDs, 0)
				missingTracks = append(missingTracks, 0)
				for c, p := range sklearn.LeafProba(tree.Values[i]) {
					classTrees = append(classTrees, int64(t))
					classNodes = append(classNodes, int64(i))
					classIDs = append(classIDs, int64(c))
					classWeights = append(classWeights, float32(p*scale))
				}
				continue
			}
			modes = append(modes, "BRANCH_LEQ")
			featureIDs = append(featureIDs, int64(n.Feature))
			values = append(values, float32(n.Threshold))
			trueIDs = append(trueIDs, int64(n.Left))
			falseIDs = append(falseIDs, int64(n.Right))
			if n.MissingGoToLeft {
				missingTracks = append(missingTracks, 1)
			} else {
				missingTracks = append(missingTracks, 0)
			}
		}
	}
	return []*onnx.AttributeProto{
		onnx.AttrInts("class_ids", classIDs),
		onnx.AttrInts("class_nodeids", classNodes),
		onnx.AttrInts("class_treeids", classTrees),
		onnx.AttrFloats("class_weights", classWeights),
		classLabels("classlabels_int64s", classes),
		onnx.AttrInts("nodes_falsenodeids", falseIDs),
		onnx.AttrInts("nodes_featureids", featureIDs),
		onnx.AttrFloats("nodes_hitrates", hitRates),
		onnx.AttrInts("nodes_missing_value_tracks_true", missingTracks),
		onnx.AttrStrings("nodes_modes", modes),
		onnx.AttrInts("nodes_nodeids", nodeIDs),
		onnx.AttrInts("nodes_treeids", treeIDs),
		onnx.AttrInts("nodes_truenodeids", trueIDs),
		onnx.AttrFloats("nodes_values", values),
		onnx.AttrString("post_transform", "NONE"),
	}, nil
}

func init() {
	Register("DecisionTreeClassifier", convertTreeEnsemble)
	Register("ExtraTreeClassifier", convertTreeEnsemble)
	Register("RandomForestClassifier", convertTreeEnsemble)
	Register("ExtraTreesClassifier", convertTreeEnsemble)
}
