package bundle

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrCompileBlocked is returned when relation validation produced
// error-severity issues; the issue list accompanies it.
var ErrCompileBlocked = errors.New("bundle compilation blocked by relation errors")

// Compiled is the merged, content-addressed artifact for one bundle.
type Compiled struct {
	// Configs maps table name to its compiled section: the row list for
	// array sections, the first row object for object sections.
	Configs map[string]any `json:"configs"`

	// Hash is the SHA-256 hex digest of the canonical serialization of
	// Configs. Identical table contents always produce identical hashes.
	Hash string `json:"hash"`
}

// Compile merges per-table row sets into one deterministic artifact, runs
// relation validation over the merged result, and computes the content hash.
// Compilation succeeds only when no error-severity issues remain; warnings
// are returned alongside the artifact without blocking.
func Compile(tables map[string][]Row, sectionTypes map[string]SectionType, relations []Relation, primaryKeys map[string][]string) (*Compiled, []Issue, error) {
	issues := ValidateRelations(relations, tables, primaryKeys)
	if HasErrors(issues) {
		return nil, issues, ErrCompileBlocked
	}

	configs := make(map[string]any, len(tables))
	for name, rows := range tables {
		if sectionTypes[name] == SectionObject {
			if len(rows) > 0 {
				configs[name] = rows[0]
			} else {
				configs[name] = map[string]any{}
			}
			continue
		}
		if rows == nil {
			rows = []Row{}
		}
		configs[name] = rows
	}

	canonical, err := CanonicalJSON(configs)
	if err != nil {
		return nil, issues, fmt.Errorf("serialize compiled bundle: %w", err)
	}

	return &Compiled{
		Configs: configs,
		Hash:    HashBytes(canonical),
	}, issues, nil
}

// CanonicalJSON serializes a value with object keys sorted at every nesting
// level, removing incidental map-iteration variance from the output.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := canonicalize(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HashBytes returns the SHA-256 hex digest of the given bytes.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}

func canonicalize(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case map[string]any:
		return canonicalizeMap(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := canonicalize(buf, el); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case []Row:
		buf.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := canonicalizeMap(buf, el); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}

func canonicalizeMap(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := canonicalize(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}
