package application

import "regexp"

// minIdentifierLength is the exclusive lower bound on token length for a
// token to be treated as an item identifier. Upstream ids are UUID-shaped,
// so anything this short is incidental text from the pasted input.
const minIdentifierLength = 20

var identifierSeparator = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

// ExtractIdentifiers pulls identifier-shaped tokens out of free-form text.
// The input may be a JSON array, comma- or newline-separated, or any mix:
// it is split on every run of characters other than ASCII letters, digits
// and '-', and only tokens longer than minIdentifierLength are kept. Order
// and duplicates are preserved. An input without such tokens yields an
// empty, non-nil slice.
func ExtractIdentifiers(text string) []string {
	ids := []string{}
	for _, token := range identifierSeparator.Split(text, -1) {
		if len(token) > minIdentifierLength {
			ids = append(ids, token)
		}
	}
	return ids
}
