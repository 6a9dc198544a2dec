package tabular

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field is a ScheduleItem attribute that can be read from a named column.
type Field string

const (
	FieldSection Field = "section"
	FieldFRR     Field = "frr"
	FieldDFT     Field = "dft"
	FieldCoating Field = "coating"
	FieldMark    Field = "mark"
	FieldElement Field = "element"
)

var knownFields = []Field{FieldSection, FieldFRR, FieldDFT, FieldCoating, FieldMark, FieldElement}

// Aliases lists, per field, the accepted header spellings in priority order.
// The first alias whose column holds a non-blank value wins.
type Aliases map[Field][]string

// DefaultAliases returns the built-in header table.
func DefaultAliases() Aliases {
	return Aliases{
		FieldSection: {"section", "section size", "size", "member size", "profile", "designation"},
		FieldFRR:     {"frr", "frr minutes", "fire rating", "frl", "rating"},
		FieldDFT:     {"dft", "dft required", "dft microns", "required dft", "thickness"},
		FieldCoating: {"coating", "coating product", "product", "system"},
		FieldMark:    {"member mark", "mark", "member", "id"},
		FieldElement: {"element type", "element", "type", "member type"},
	}
}

var (
	reHeaderSep   = regexp.MustCompile(`[\s_\-]+`)
	reHeaderPunct = regexp.MustCompile(`^[^\p{L}\p{N}]+|[^\p{L}\p{N}]+$`)
)

// NormalizeHeader lowercases a column name, collapses underscores, hyphens and
// whitespace to single spaces and trims surrounding punctuation.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = reHeaderSep.ReplaceAllString(h, " ")
	h = reHeaderPunct.ReplaceAllString(h, "")
	return strings.TrimSpace(h)
}

// aliasFile is the on-disk shape of ALIASES_FILE.
type aliasFile struct {
	Aliases map[string][]string `yaml:"aliases"`
}

// LoadAliases reads a YAML alias table and overlays it on the defaults.
// A field listed in the file replaces the default list for that field entirely.
//
//	aliases:
//	  section: [section, profile]
//	  dft: [dft um]
func LoadAliases(path string) (Aliases, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aliases file: %w", err)
	}
	return ParseAliases(data)
}

// ParseAliases decodes YAML alias overrides. Unknown fields are rejected.
func ParseAliases(data []byte) (Aliases, error) {
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode aliases: %w", err)
	}

	out := DefaultAliases()
	for name, list := range f.Aliases {
		field := Field(strings.ToLower(strings.TrimSpace(name)))
		if !isKnownField(field) {
			return nil, fmt.Errorf("unknown alias field %q", name)
		}
		normalized := make([]string, 0, len(list))
		for _, a := range list {
			if n := NormalizeHeader(a); n != "" {
				normalized = append(normalized, n)
			}
		}
		if len(normalized) == 0 {
			return nil, fmt.Errorf("alias field %q has no usable entries", name)
		}
		out[field] = normalized
	}
	return out, nil
}

func isKnownField(f Field) bool {
	for _, k := range knownFields {
		if k == f {
			return true
		}
	}
	return false
}

// lookup returns the first non-blank value for f in a header-normalized row.
func (a Aliases) lookup(row map[string]string, f Field) (string, bool) {
	for _, alias := range a[f] {
		if v, ok := row[alias]; ok {
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// HasField reports whether any of the headers names a column for f.
func (a Aliases) HasField(headers []string, f Field) bool {
	for _, h := range headers {
		n := NormalizeHeader(h)
		for _, alias := range a[f] {
			if n == alias {
				return true
			}
		}
	}
	return false
}
