package domain

// BuildHierarchy reconstructs the two-level parent/children tree from a
// flat item list. Roots keep their input order, and each root's
// Subtasks keep the relative order subtasks had in the input. Items
// whose ParentID references an id that is not a root in the input are
// dropped entirely.
func BuildHierarchy(items []Item) []Item {
	roots := make([]Item, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		if it.ParentID != "" {
			continue
		}
		it.Subtasks = nil
		index[it.ID] = len(roots)
		roots = append(roots, it)
	}
	for _, it := range items {
		if it.ParentID == "" {
			continue
		}
		i, ok := index[it.ParentID]
		if !ok {
			continue
		}
		it.Subtasks = nil
		roots[i].Subtasks = append(roots[i].Subtasks, it)
	}
	return roots
}
