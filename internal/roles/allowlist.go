// Package roles derives authorization decisions from profile documents.
package roles

import (
	"slices"

	"github.com/and161185/identity-keeper/internal/model"
)

// AllowList is the static set of normalized emails granted administrator
// status. It is immutable once built and safe for concurrent use.
type AllowList struct {
	keys map[string]struct{}
}

// NewAllowList builds an allow-list; entries are normalized and blanks dropped.
func NewAllowList(emails ...string) AllowList {
	keys := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if k := model.NormalizeKey(e); k != "" {
			keys[k] = struct{}{}
		}
	}
	return AllowList{keys: keys}
}

// Contains reports membership, case-insensitively.
func (a AllowList) Contains(email string) bool {
	_, ok := a.keys[model.NormalizeKey(email)]
	return ok
}

// Len returns the number of entries.
func (a AllowList) Len() int { return len(a.keys) }

// Emails returns the entries in sorted order.
func (a AllowList) Emails() []string {
	out := make([]string, 0, len(a.keys))
	for k := range a.keys {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
