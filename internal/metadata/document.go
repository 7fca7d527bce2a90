package metadata

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Attribute is one trait in an NFT JSON document
type Attribute struct {
	TraitType string      `json:"trait_type"`
	Value     interface{} `json:"value"`
}

// StringValue renders the trait value regardless of its JSON type
func (a Attribute) StringValue() string {
	switch v := a.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// File is an entry of properties.files
type File struct {
	URI  string `json:"uri"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// Properties mirrors the token-metadata JSON standard's properties block
type Properties struct {
	Category string `json:"category,omitempty"`
	Files    []File `json:"files,omitempty"`
}

// Document is the off-chain JSON an NFT's metadata uri resolves to
type Document struct {
	Name         string      `json:"name"`
	Symbol       string      `json:"symbol,omitempty"`
	Description  string      `json:"description,omitempty"`
	Image        string      `json:"image"`
	AnimationURL string      `json:"animation_url,omitempty"`
	ExternalURL  string      `json:"external_url,omitempty"`
	Attributes   []Attribute `json:"attributes,omitempty"`
	Properties   *Properties `json:"properties,omitempty"`
}

// Attribute returns the first trait with the given type
func (d *Document) Attribute(traitType string) (Attribute, bool) {
	for _, a := range d.Attributes {
		if a.TraitType == traitType {
			return a, true
		}
	}
	return Attribute{}, false
}
