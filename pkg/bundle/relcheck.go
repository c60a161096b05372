package bundle

import (
	"fmt"
	"strings"
)

// DeriveImplicitRelations builds one Relation per ref-typed field across the
// given templates. Ref fields and explicitly declared relations are two
// representations of the same foreign-key concept; deriving implicit ones
// here gives the relation validator a single code path.
func DeriveImplicitRelations(templates []Template) []Relation {
	byName := make(map[string]Template, len(templates))
	for _, t := range templates {
		byName[t.Name] = t
	}

	var rels []Relation
	for _, tpl := range templates {
		for _, f := range tpl.Fields {
			if f.Type != FieldRef {
				continue
			}
			toPath := f.RefPath
			if toPath == "" {
				if target, ok := byName[f.RefTemplate]; ok {
					toPath = strings.Join(target.PrimaryKey, ",")
				}
			}
			rels = append(rels, Relation{
				FromTemplate: tpl.Name,
				FromPath:     f.Name,
				ToTemplate:   f.RefTemplate,
				ToPath:       toPath,
				Mode:         SeverityError,
				Implicit:     true,
			})
		}
	}
	return rels
}

// ValidateRelations checks that every value extracted along each relation's
// fromPath resolves to a composite key present in the target table. Issues
// are reported at the relation's configured severity; error severity blocks
// compilation, warn does not.
func ValidateRelations(relations []Relation, tables map[string][]Row, primaryKeys map[string][]string) []Issue {
	var issues []Issue

	for _, rel := range relations {
		sev := rel.Mode
		if sev != SeverityWarn {
			sev = SeverityError
		}

		sourceRows, ok := tables[rel.FromTemplate]
		if !ok {
			continue // source table is not part of this row-set; nothing to check
		}

		targetRows, ok := tables[rel.ToTemplate]
		if !ok {
			issues = append(issues, Issue{
				Severity: sev,
				Template: rel.FromTemplate,
				Path:     rel.FromPath,
				Message:  fmt.Sprintf("relation target table %q is not part of the bundle", rel.ToTemplate),
			})
			continue
		}

		toPaths := SplitKeyPaths(rel.ToPath)
		if len(toPaths) == 0 {
			toPaths = primaryKeys[rel.ToTemplate]
		}
		if len(toPaths) == 0 {
			issues = append(issues, Issue{
				Severity: sev,
				Template: rel.FromTemplate,
				Path:     rel.FromPath,
				Message:  fmt.Sprintf("relation target table %q has no key path to match against", rel.ToTemplate),
			})
			continue
		}

		targetKeys := keySet(targetRows, toPaths)
		fromPaths := SplitKeyPaths(rel.FromPath)
		sourcePK := primaryKeys[rel.FromTemplate]

		for i, row := range sourceRows {
			rowRef, ok := RowKey(row, sourcePK)
			if !ok {
				rowRef = fmt.Sprintf("%d", i)
			}

			if len(fromPaths) == 1 {
				for _, v := range ExtractPath(row, fromPaths[0]) {
					if !targetKeys[CompositeKey([]any{v})] {
						issues = append(issues, Issue{
							Severity: sev,
							Template: rel.FromTemplate,
							RowRef:   rowRef,
							Path:     fromPaths[0],
							Message:  fmt.Sprintf("unresolved reference %q to table %q", FormatKeyValue(v), rel.ToTemplate),
						})
					}
				}
				continue
			}

			// Composite source key: every component must be present.
			values := make([]any, 0, len(fromPaths))
			complete := true
			for _, p := range fromPaths {
				v, ok := ValueAt(row, p)
				if !ok || v == nil {
					complete = false
					break
				}
				values = append(values, v)
			}
			if !complete {
				continue
			}
			if key := CompositeKey(values); !targetKeys[key] {
				issues = append(issues, Issue{
					Severity: sev,
					Template: rel.FromTemplate,
					RowRef:   rowRef,
					Path:     rel.FromPath,
					Message:  fmt.Sprintf("unresolved reference %q to table %q", key, rel.ToTemplate),
				})
			}
		}
	}

	return issues
}

// ValidateDraftRefs checks one template's ref-typed fields against sibling
// row sets (typically the other drafts of the same channel) so that dangling
// foreign keys cannot be saved or frozen. The candidate rows replace the
// template's own entry in the sibling map for self-references.
func ValidateDraftRefs(tpl Template, rows []Row, siblings map[string][]Row, templates map[string]Template) []Issue {
	all := make([]Template, 0, len(templates))
	for _, t := range templates {
		all = append(all, t)
	}

	var rels []Relation
	for _, rel := range DeriveImplicitRelations(all) {
		if rel.FromTemplate == tpl.Name {
			rels = append(rels, rel)
		}
	}
	if len(rels) == 0 {
		return nil
	}

	tables := make(map[string][]Row, len(siblings)+1)
	for name, siblingRows := range siblings {
		tables[name] = siblingRows
	}
	tables[tpl.Name] = rows

	pks := make(map[string][]string, len(templates))
	for name, t := range templates {
		pks[name] = t.PrimaryKey
	}

	return ValidateRelations(rels, tables, pks)
}

// keySet builds the set of composite key strings present in a row set.
// Rows missing any key component contribute no entry.
func keySet(rows []Row, keyPaths []string) map[string]bool {
	keys := make(map[string]bool, len(rows))
	for _, row := range rows {
		values := make([]any, 0, len(keyPaths))
		complete := true
		for _, p := range keyPaths {
			v, ok := ValueAt(row, p)
			if !ok || v == nil {
				complete = false
				break
			}
			values = append(values, v)
		}
		if complete {
			keys[CompositeKey(values)] = true
		}
	}
	return keys
}
