package index

// SynonymGroup ties a canonical term to its variant surface forms. After the
// merge every member resolves to the union of all members' chunk-id sets.
type SynonymGroup struct {
	Canonical string
	Variants  []string
}

func normalizeGroups(raw map[string][]string) []SynonymGroup {
	var groups []SynonymGroup
	for canonical, variants := range raw {
		g := SynonymGroup{Canonical: Normalize(canonical)}
		for _, v := range variants {
			if n := Normalize(v); n != "" && n != g.Canonical {
				g.Variants = append(g.Variants, n)
			}
		}
		groups = append(groups, g)
	}
	return groups
}

// MergeSynonyms unions the chunk-id sets of each group's members and writes
// the union back to every member. Groups sharing a member are first collapsed
// into one connected component, so the result is idempotent and independent
// of group order: after the merge every member of a component holds the same
// set, and re-running produces no change.
func (idx *Index) MergeSynonyms(groups []SynonymGroup) {
	if idx == nil || idx.Terms == nil {
		return
	}

	parent := make(map[string]string)
	var find func(string) string
	find = func(t string) string {
		p, ok := parent[t]
		if !ok || p == t {
			parent[t] = t
			return t
		}
		root := find(p)
		parent[t] = root
		return root
	}
	for _, g := range groups {
		for _, v := range g.Variants {
			ra, rb := find(g.Canonical), find(v)
			if ra != rb {
				parent[rb] = ra
			}
		}
	}

	components := make(map[string][]string)
	for t := range parent {
		root := find(t)
		components[root] = append(components[root], t)
	}
	for _, members := range components {
		sets := make([][]string, 0, len(members))
		for _, m := range members {
			sets = append(sets, idx.Terms[m])
		}
		union := Union(sets...)
		if len(union) == 0 {
			continue
		}
		for _, m := range members {
			idx.Terms[m] = union
		}
	}
}
