package json

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pbanos/stratify/feature"
	"github.com/pbanos/stratify/tree"
)

/*
NodeEncodeDecoder is an interface for objects
that allow encoding nodes into slices of
bytes and decoding them back to nodes.
*/
type NodeEncodeDecoder interface {

	//Encode receives a *tree.Node
	// and returns a slice of bytes with the node
	//encoded or an error if the encoding could not
	//be performed for some reason.
	Encode(*tree.Node) ([]byte, error)

	//Decode receives a slice of bytes
	//and returns a *tree.Node decoded from the
	//slice of bytes or an error if the decoding
	//could not be performed for some reason.
	Decode([]byte) (*tree.Node, error)
}

/*
CriteriaEncodeDecoder is an interface for objects
that allow encoding criteria into slices of
bytes and decoding them back to criteria.
*/
type CriteriaEncodeDecoder interface {
	Encode(feature.Criterion) ([]byte, error)
	Decode([]byte) (feature.Criterion, error)
}

type nodeEncodeDecoder struct {
	CriteriaEncodeDecoder
	features []feature.Feature
}

// IOIs are encoded as strings so that infinite and undefined values survive
type node struct {
	ID               string            `json:"id"`
	ParentID         string            `json:"pId,omitempty"`
	SubtreeIDs       []string          `json:"stIds,omitempty"`
	FeatureCriterion *json.RawMessage  `json:"c,omitempty"`
	SubtreeFeature   string            `json:"f,omitempty"`
	Depth            int               `json:"d"`
	Subjects         int               `json:"s"`
	Samples          int               `json:"n"`
	IOI              string            `json:"ioi"`
	FeatureIOI       map[string]string `json:"fioi,omitempty"`
}

/*
NewNodeEncodeDecoder returns a NodeEncodeDecoder that uses the
given CriteriaEncodeDecoder to encode/decode nodes' feature criteria
and resolves subtree features among the given features.
*/
func NewNodeEncodeDecoder(ced CriteriaEncodeDecoder, features []feature.Feature) NodeEncodeDecoder {
	return &nodeEncodeDecoder{ced, features}
}

func (ned *nodeEncodeDecoder) Encode(n *tree.Node) ([]byte, error) {
	jn := &node{
		ID:       n.ID,
		ParentID: n.ParentID,
		Depth:    n.Depth,
		Subjects: n.Subjects,
		Samples:  n.Samples,
		IOI:      formatFloat(n.IOI),
	}
	if len(n.SubtreeIDs) > 0 {
		jn.SubtreeIDs = n.SubtreeIDs
	}
	if n.FeatureCriterion != nil {
		fc, err := ned.CriteriaEncodeDecoder.Encode(n.FeatureCriterion)
		if err != nil {
			return nil, err
		}
		rfc := json.RawMessage(fc)
		jn.FeatureCriterion = &rfc
	}
	if n.SubtreeFeature != nil {
		jn.SubtreeFeature = n.SubtreeFeature.Name()
	}
	if len(n.FeatureIOI) > 0 {
		jn.FeatureIOI = make(map[string]string, len(n.FeatureIOI))
		for name, ioi := range n.FeatureIOI {
			jn.FeatureIOI[name] = formatFloat(ioi)
		}
	}
	return json.Marshal(jn)
}

func (ned *nodeEncodeDecoder) Decode(data []byte) (*tree.Node, error) {
	jn := &node{}
	err := json.Unmarshal(data, jn)
	if err != nil {
		return nil, err
	}
	n := &tree.Node{
		ID:       jn.ID,
		ParentID: jn.ParentID,
		Depth:    jn.Depth,
		Subjects: jn.Subjects,
		Samples:  jn.Samples,
	}
	if jn.FeatureCriterion != nil {
		n.FeatureCriterion, err = ned.CriteriaEncodeDecoder.Decode(*jn.FeatureCriterion)
		if err != nil {
			return nil, fmt.Errorf("unmarshalling node %v: %w", n.ID, err)
		}
	}
	if len(jn.SubtreeIDs) > 0 {
		n.SubtreeIDs = jn.SubtreeIDs
	}
	if jn.SubtreeFeature != "" {
		n.SubtreeFeature = feature.Lookup(ned.features, jn.SubtreeFeature)
		if n.SubtreeFeature == nil {
			return nil, fmt.Errorf("unmarshalling node %v: unknown feature %v", n.ID, jn.SubtreeFeature)
		}
	}
	n.IOI, err = strconv.ParseFloat(jn.IOI, 64)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling node %v: parsing ioi: %w", n.ID, err)
	}
	if len(jn.FeatureIOI) > 0 {
		n.FeatureIOI = make(map[string]float64, len(jn.FeatureIOI))
		for name, s := range jn.FeatureIOI {
			n.FeatureIOI[name], err = strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("unmarshalling node %v: parsing ioi of %s: %w", n.ID, name, err)
			}
		}
	}
	return n, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
