package store

// index is a secondary index: key -> ids in insertion order
type index map[string][]string

func (idx index) add(key, id string) {
	for _, existing := range idx[key] {
		if existing == id {
			return
		}
	}
	idx[key] = append(idx[key], id)
}

func (idx index) remove(key, id string) {
	ids := idx[key]
	for i, existing := range ids {
		if existing == id {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(idx, key)
		return
	}
	idx[key] = ids
}

func (idx index) get(key string) []string {
	ids := idx[key]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

func (idx index) clone() index {
	out := make(index, len(idx))
	for k, ids := range idx {
		cp := make([]string, len(ids))
		copy(cp, ids)
		out[k] = cp
	}
	return out
}
