package vw

import "strings"

// DefaultExportDelimiter separates the namespace name from each feature in
// ExportFeatures.
const DefaultExportDelimiter = `\`

// Feature is one entry of a namespace. A nil Value means the feature is
// present with vw's implicit weight.
type Feature struct {
	Label string
	Value *float64
}

// NewFeature returns a feature with no explicit value.
func NewFeature(label string) Feature {
	return Feature{Label: label}
}

// NewWeightedFeature returns a feature with an explicit value.
func NewWeightedFeature(label string, value float64) Feature {
	return Feature{Label: label, Value: &value}
}

// Features turns bare labels into features without values.
func Features(labels ...string) []Feature {
	out := make([]Feature, 0, len(labels))
	for _, l := range labels {
		out = append(out, NewFeature(l))
	}
	return out
}

func (f Feature) token() string {
	if f.Value == nil {
		return f.Label
	}
	return f.Label + ":" + formatFloat(*f.Value)
}

// Namespace is the feature block that follows a pipe in an example line.
type Namespace struct {
	name        string
	scale       float64
	features    []Feature
	escape      bool
	validate    bool
	cacheString bool
	cached      *string
}

// NamespaceOption configures a Namespace.
type NamespaceOption func(*Namespace)

// WithoutEscape disables escaping; reserved characters are then validated
// (unless WithoutValidation is also given).
func WithoutEscape() NamespaceOption {
	return func(n *Namespace) { n.escape = false }
}

// WithoutValidation disables validation of unescaped input.
func WithoutValidation() NamespaceOption {
	return func(n *Namespace) { n.validate = false }
}

// WithCachedString makes the first String result permanent. Later
// mutations are not reflected in the output.
func WithCachedString() NamespaceOption {
	return func(n *Namespace) { n.cacheString = true }
}

// NewNamespace builds a namespace. An empty name makes it anonymous and a
// zero scale leaves the importance unset. Escaping takes precedence over
// validation.
func NewNamespace(name string, scale float64, features []Feature, opts ...NamespaceOption) (*Namespace, error) {
	n := &Namespace{
		scale:    scale,
		escape:   true,
		validate: true,
	}
	for _, opt := range opts {
		opt(n)
	}

	if name != "" {
		clean, err := n.clean(name)
		if err != nil {
			return nil, err
		}
		n.name = clean
	}

	if err := n.AddFeatures(features); err != nil {
		return nil, err
	}
	return n, nil
}

// MustNamespace is like NewNamespace but panics on invalid input.
func MustNamespace(name string, scale float64, features []Feature, opts ...NamespaceOption) *Namespace {
	n, err := NewNamespace(name, scale, features, opts...)
	if err != nil {
		panic(err)
	}
	return n
}

func (n *Namespace) clean(s string) (string, error) {
	if n.escape {
		return Escape(s), nil
	}
	if n.validate {
		if err := Validate(s); err != nil {
			return "", err
		}
	}
	return s, nil
}

// Name returns the (escaped) namespace name.
func (n *Namespace) Name() string { return n.name }

// Scale returns the namespace importance, zero when unset.
func (n *Namespace) Scale() float64 { return n.scale }

// Len returns the number of features.
func (n *Namespace) Len() int { return len(n.features) }

// AddFeatures appends features in order. It stops at the first invalid
// label; features before it are kept.
func (n *Namespace) AddFeatures(features []Feature) error {
	for _, f := range features {
		if err := n.AddFeature(f); err != nil {
			return err
		}
	}
	return nil
}

// AddFeature escapes or validates the label and appends the feature.
func (n *Namespace) AddFeature(f Feature) error {
	label, err := n.clean(f.Label)
	if err != nil {
		return err
	}
	n.features = append(n.features, Feature{Label: label, Value: f.Value})
	return nil
}

// String renders the namespace for an example line, e.g.
// "MetricFeatures:3.28 height:1.5 length:2.0 ". The trailing space keeps the
// next pipe separate from the last feature.
func (n *Namespace) String() string {
	if n.cached != nil {
		return *n.cached
	}

	tokens := make([]string, 0, len(n.features)+2)
	switch {
	case n.name == "":
		tokens = append(tokens, "")
	case n.scale != 0:
		tokens = append(tokens, n.name+":"+formatFloat(n.scale))
	default:
		tokens = append(tokens, n.name)
	}
	for _, f := range n.features {
		tokens = append(tokens, f.token())
	}
	tokens = append(tokens, "")

	out := strings.Join(tokens, " ")
	if n.cacheString {
		n.cached = &out
	}
	return out
}

// ExportFeatures lists each feature prefixed by the namespace name, e.g.
// `name1\feature1`. It is meant for debugging and audit output.
func (n *Namespace) ExportFeatures(delimiter string) []string {
	out := make([]string, 0, len(n.features))
	for _, f := range n.features {
		out = append(out, n.name+delimiter+f.token())
	}
	return out
}
