package testdb

import (
	"slices"
)

// ForeignKey is a reference from Table to References within one schema.
type ForeignKey struct {
	Table      string
	References string
}

// ResetPlan is the ordered list of work a reset performs. It is built from
// the live schema once per handle and reused for every later reset.
type ResetPlan struct {
	// Schema is the namespace every table and sequence lives in.
	Schema string
	// Tables are cleared in this order: referencing tables before the tables
	// they reference.
	Tables []string
	// Excluded tables are never touched.
	Excluded []string
	// Sequences are the identity counters restarted after the delete.
	Sequences []string
	// DeferConstraints is set when Tables contains a foreign key cycle, so the
	// delete order alone cannot satisfy every constraint.
	DeferConstraints bool
}

func (p ResetPlan) clone() ResetPlan {
	p.Tables = slices.Clone(p.Tables)
	p.Excluded = slices.Clone(p.Excluded)
	p.Sequences = slices.Clone(p.Sequences)
	return p
}

// orderTables sorts tables so that every table comes before the tables it
// references. Ties are broken by name. Tables left over because they sit on a
// reference cycle are appended in name order and cyclic is reported.
// Self references and references to tables outside the list are ignored.
func orderTables(tables []string, fks []ForeignKey) (ordered []string, cyclic bool) {
	names := slices.Clone(tables)
	slices.Sort(names)
	names = slices.Compact(names)

	included := make(map[string]bool, len(names))
	for _, name := range names {
		included[name] = true
	}

	parents := make(map[string]map[string]bool)
	referrers := make(map[string]int)
	for _, fk := range fks {
		if fk.Table == fk.References || !included[fk.Table] || !included[fk.References] {
			continue
		}
		if parents[fk.Table] == nil {
			parents[fk.Table] = make(map[string]bool)
		}
		if parents[fk.Table][fk.References] {
			continue
		}
		parents[fk.Table][fk.References] = true
		referrers[fk.References]++
	}

	done := make(map[string]bool, len(names))
	ordered = make([]string, 0, len(names))
	for len(ordered) < len(names) {
		next := ""
		for _, name := range names {
			if !done[name] && referrers[name] == 0 {
				next = name
				break
			}
		}
		if next == "" {
			break
		}
		done[next] = true
		ordered = append(ordered, next)
		for parent := range parents[next] {
			referrers[parent]--
		}
	}

	for _, name := range names {
		if !done[name] {
			ordered = append(ordered, name)
			cyclic = true
		}
	}
	return ordered, cyclic
}
