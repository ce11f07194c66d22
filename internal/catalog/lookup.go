package catalog

// FindByID returns the entry with the given id. Ids are unique across the
// catalog (enforced by New), so there is at most one match. The second
// result is false when no entry has that id.
func (c *Catalog) FindByID(id string) (MethodEntry, bool) {
	pos, ok := c.byEntry[id]
	if !ok {
		return MethodEntry{}, false
	}
	return cloneEntry(c.categories[pos.category].Entries[pos.entry]), true
}

// FindCategory returns the category with the given id.
func (c *Catalog) FindCategory(id string) (Category, bool) {
	i, ok := c.byCategory[id]
	if !ok {
		return Category{}, false
	}
	return cloneCategory(c.categories[i]), true
}

// ResolveCategoryForEntry returns the id of the category containing the
// entry with the given id.
func (c *Catalog) ResolveCategoryForEntry(entryID string) (string, bool) {
	pos, ok := c.byEntry[entryID]
	if !ok {
		return "", false
	}
	return c.categories[pos.category].ID, true
}

func cloneEntry(e MethodEntry) MethodEntry {
	if e.Tags != nil {
		e.Tags = append([]string(nil), e.Tags...)
	}
	return e
}
