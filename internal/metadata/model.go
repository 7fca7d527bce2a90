package metadata

import (
	"sort"
	"strings"
)

const (
	TraitFramework = "framework"
	TraitVersion   = "version"
	TraitLicense   = "license"
	TraitModelURI  = "model_uri"
	metricPrefix   = "metric:"
)

// ModelAttributes describes the AI model an NFT represents
type ModelAttributes struct {
	Framework string            `json:"framework,omitempty"`
	Version   string            `json:"version,omitempty"`
	License   string            `json:"license,omitempty"`
	Metrics   map[string]string `json:"metrics,omitempty"`
	ModelURI  string            `json:"model_uri,omitempty"`
}

// Attributes flattens the model description into JSON traits. Metrics are
// emitted in name order so documents are reproducible.
func (m ModelAttributes) Attributes() []Attribute {
	var out []Attribute
	add := func(trait, value string) {
		if value != "" {
			out = append(out, Attribute{TraitType: trait, Value: value})
		}
	}
	add(TraitFramework, m.Framework)
	add(TraitVersion, m.Version)
	add(TraitLicense, m.License)

	names := make([]string, 0, len(m.Metrics))
	for name := range m.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		add(metricPrefix+name, m.Metrics[name])
	}

	add(TraitModelURI, m.ModelURI)
	return out
}

// ModelFromAttributes recovers the model description from traits. ok is
// false when none of the model traits are present.
func ModelFromAttributes(attrs []Attribute) (*ModelAttributes, bool) {
	m := &ModelAttributes{}
	found := false
	for _, a := range attrs {
		value := a.StringValue()
		switch {
		case a.TraitType == TraitFramework:
			m.Framework = value
		case a.TraitType == TraitVersion:
			m.Version = value
		case a.TraitType == TraitLicense:
			m.License = value
		case a.TraitType == TraitModelURI:
			m.ModelURI = value
		case strings.HasPrefix(a.TraitType, metricPrefix):
			if m.Metrics == nil {
				m.Metrics = make(map[string]string)
			}
			m.Metrics[strings.TrimPrefix(a.TraitType, metricPrefix)] = value
		default:
			continue
		}
		found = true
	}
	if !found {
		return nil, false
	}
	return m, true
}

// NewModelDocument builds the JSON document pinned for a freshly minted model NFT
func NewModelDocument(name, symbol, description, image string, model *ModelAttributes) *Document {
	doc := &Document{
		Name:        name,
		Symbol:      symbol,
		Description: description,
		Image:       image,
	}
	if model != nil {
		doc.Attributes = model.Attributes()
		if model.ModelURI != "" {
			doc.Properties = &Properties{
				Category: "model",
				Files:    []File{{URI: model.ModelURI, Type: "application/octet-stream"}},
			}
		}
	}
	return doc
}
