// Package wronganswers tracks the items a student missed on their latest
// attempt so the next session can show them first.
package wronganswers

// Answer is one graded response within an attempt. An item may appear more
// than once when the quiz re-asks it.
type Answer struct {
	ItemID  string `json:"item_id"`
	Correct bool   `json:"correct"`
}

// Missed returns the ids of items answered incorrectly at least once, in
// order of their first appearance, without duplicates. The result is never
// nil so it persists as an empty list.
func Missed(answers []Answer) []string {
	wrong := make(map[string]bool)
	for _, a := range answers {
		if !a.Correct {
			wrong[a.ItemID] = true
		}
	}

	out := make([]string, 0, len(wrong))
	seen := make(map[string]bool, len(wrong))
	for _, a := range answers {
		if wrong[a.ItemID] && !seen[a.ItemID] {
			seen[a.ItemID] = true
			out = append(out, a.ItemID)
		}
	}
	return out
}

// Prioritize returns items reordered so that those whose key appears in
// wrong come first. The relative order inside each group is preserved.
func Prioritize[T any](items []T, wrong []string, key func(T) string) []T {
	flagged := make(map[string]bool, len(wrong))
	for _, id := range wrong {
		flagged[id] = true
	}

	out := make([]T, 0, len(items))
	for _, it := range items {
		if flagged[key(it)] {
			out = append(out, it)
		}
	}
	for _, it := range items {
		if !flagged[key(it)] {
			out = append(out, it)
		}
	}
	return out
}
