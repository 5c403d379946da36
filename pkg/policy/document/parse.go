package document

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Parse parses a YAML policy document. The returned document has not been
// validated; callers activate documents through the policy store, which
// validates first.
func Parse(data []byte) (*Document, error) {
	return parseBytes(data, "(inline)")
}

// ParseFile reads and parses a YAML policy document from disk.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Source: path, Cause: err}
	}
	return parseBytes(data, path)
}

func parseBytes(data []byte, source string) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Source: source, Cause: err}
	}
	return &doc, nil
}

// Serialize renders the document back to YAML. Cosmetic formatting of the
// original input is not preserved; rule order, ids, and semantics are.
func Serialize(doc *Document) ([]byte, error) {
	return yaml.Marshal(doc)
}
