// Package index defines the index schema, postings and the document
// field extraction shared by the segment store, the indexer and the
// search engine.
package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"git.home.luguber.info/inful/docsearch/internal/analysis"
)

// FieldType classifies how a schema field is indexed and stored.
type FieldType string

const (
	FieldTypeText    FieldType = "text"
	FieldTypeKeyword FieldType = "keyword"
	FieldTypeNumeric FieldType = "numeric"
	FieldTypeStored  FieldType = "stored"
)

// Field is one entry of the index schema.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Stored   bool      `json:"stored"`
	Indexed  bool      `json:"indexed"`
	Boost    float64   `json:"boost"`
	Analyzer string    `json:"analyzer,omitempty"`
	Unique   bool      `json:"unique,omitempty"`
}

// Schema is the ordered field list of a segment. Exactly one field is
// declared unique; it carries the document identity.
type Schema struct {
	Fields []Field `json:"fields"`
}

// Canonical field names used by the default schema.
const (
	FieldURL        = "url"
	FieldURLPath    = "url_path"
	FieldTitle      = "title"
	FieldHeadingsH1 = "headings_h1"
	FieldHeadingsH2 = "headings_h2"
	FieldHeadings   = "headings"
	FieldBody       = "body"
	FieldPath       = "path"
	FieldTags       = "tags"
	FieldLanguage   = "language"
	FieldExcerpt    = "excerpt"
	FieldTimestamp  = "timestamp"
)

// DefaultSchema returns the documentation schema. Boost values are the
// ranking contract; a tenant may override them per field via
// search_config but the field set itself is fixed.
func DefaultSchema() Schema {
	return Schema{Fields: []Field{
		{Name: FieldURL, Type: FieldTypeKeyword, Stored: true, Indexed: true, Boost: 1.0, Unique: true},
		{Name: FieldURLPath, Type: FieldTypeText, Stored: false, Indexed: true, Boost: 1.5, Analyzer: analysis.ProfilePath},
		{Name: FieldTitle, Type: FieldTypeText, Stored: true, Indexed: true, Boost: 2.5},
		{Name: FieldHeadingsH1, Type: FieldTypeText, Stored: false, Indexed: true, Boost: 2.5},
		{Name: FieldHeadingsH2, Type: FieldTypeText, Stored: false, Indexed: true, Boost: 2.0},
		{Name: FieldHeadings, Type: FieldTypeText, Stored: false, Indexed: true, Boost: 1.5},
		{Name: FieldBody, Type: FieldTypeText, Stored: true, Indexed: true, Boost: 1.0, Analyzer: analysis.ProfileEnglish},
		{Name: FieldPath, Type: FieldTypeKeyword, Stored: true, Indexed: true, Boost: 1.5},
		{Name: FieldTags, Type: FieldTypeKeyword, Stored: false, Indexed: true, Boost: 1.5},
		{Name: FieldLanguage, Type: FieldTypeKeyword, Stored: true, Indexed: false, Boost: 1.0},
		{Name: FieldExcerpt, Type: FieldTypeStored, Stored: true, Indexed: false, Boost: 1.0},
		{Name: FieldTimestamp, Type: FieldTypeNumeric, Stored: true, Indexed: false, Boost: 1.0},
	}}
}

// Field returns the schema entry by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// UniqueField returns the identity field of the schema.
func (s Schema) UniqueField() (Field, error) {
	for _, f := range s.Fields {
		if f.Unique {
			return f, nil
		}
	}
	return Field{}, fmt.Errorf("schema has no unique field")
}

// IndexedTextFields returns the fields the query analyzer runs over.
func (s Schema) IndexedTextFields() []Field {
	out := make([]Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Indexed && (f.Type == FieldTypeText || f.Type == FieldTypeKeyword) {
			out = append(out, f)
		}
	}
	return out
}

// AnalyzerFor resolves the effective analyzer of a field: keyword
// fields always use the keyword profile, text fields use their declared
// profile or the tenant default.
func (s Schema) AnalyzerFor(f Field, tenantProfile string) analysis.Analyzer {
	if f.Type == FieldTypeKeyword {
		return analysis.Get(analysis.ProfileKeyword)
	}
	if f.Analyzer != "" {
		return analysis.Get(f.Analyzer)
	}
	if tenantProfile != "" {
		return analysis.Get(tenantProfile)
	}
	return analysis.Get(analysis.ProfileDefault)
}

// Digest is a stable hash over the schema used in segment fingerprints.
func (s Schema) Digest() (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
