package learner

import (
	"fmt"

	"github.com/sevir/wappa/pkg/models"
	"github.com/sevir/wappa/pkg/vw"
)

// toExample maps an API example onto the vw line model. Names and labels
// are escaped, so only empty labels are rejected.
func toExample(req models.ExampleRequest) (vw.Example, error) {
	features, err := toFeatures(req.Features)
	if err != nil {
		return vw.Example{}, err
	}
	namespaces, err := toNamespaces(req.Namespaces)
	if err != nil {
		return vw.Example{}, err
	}

	return vw.Example{
		Response:   req.Label,
		Importance: req.Importance,
		Base:       req.Base,
		Tag:        req.Tag,
		Features:   features,
		Namespaces: namespaces,
	}, nil
}

func toFeatures(specs []models.FeatureSpec) ([]vw.Feature, error) {
	if specs == nil {
		return nil, nil
	}
	features := make([]vw.Feature, 0, len(specs))
	for i, f := range specs {
		if f.Label == "" {
			return nil, fmt.Errorf("%w: feature %d has an empty label", ErrInvalidRequest, i)
		}
		features = append(features, vw.Feature{Label: f.Label, Value: f.Value})
	}
	return features, nil
}

func toNamespaces(specs []models.NamespaceSpec) ([]*vw.Namespace, error) {
	namespaces := make([]*vw.Namespace, 0, len(specs))
	for _, spec := range specs {
		features, err := toFeatures(spec.Features)
		if err != nil {
			return nil, fmt.Errorf("namespace %q: %w", spec.Name, err)
		}
		ns, err := vw.NewNamespace(spec.Name, spec.Scale, features)
		if err != nil {
			return nil, fmt.Errorf("%w: namespace %q: %v", ErrInvalidRequest, spec.Name, err)
		}
		namespaces = append(namespaces, ns)
	}
	return namespaces, nil
}
