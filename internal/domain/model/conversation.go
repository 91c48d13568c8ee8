package model

// ArchivedItem is a conversation the upstream service reports as archived.
// Only ID is needed to restore it; Title is carried for log context.
type ArchivedItem struct {
	ID    string
	Title string
}

// ItemIDs returns the identifiers of items in their original order,
// skipping items the upstream returned without an id.
func ItemIDs(items []ArchivedItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		ids = append(ids, item.ID)
	}
	return ids
}
