// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package update

import "fmt"

// Segment ids that are not calendar years.
const (
	ModifiedID   = "modified"
	DictionaryID = "cpe-dictionary"
)

// UpdateableEntry describes one feed segment: where to download it, the
// remote modification time and the one recorded by the last ingestion, both
// in epoch milliseconds.
type UpdateableEntry struct {
	ID          string
	URL         string
	LegacyURL   string
	Timestamp   int64
	Stored      int64
	NeedsUpdate bool
}

func (e *UpdateableEntry) String() string {
	return fmt.Sprintf("%s (%s)", e.ID, e.URL)
}

// Updateable is the ordered set of segments making up the mirrored feed:
// modified first, then the years ascending, then the CPE dictionary.
type Updateable struct {
	entries []*UpdateableEntry
	byID    map[string]*UpdateableEntry
}

func NewUpdateable() *Updateable {
	return &Updateable{byID: make(map[string]*UpdateableEntry)}
}

// Add appends a segment, replacing an existing one with the same id in
// place.
func (u *Updateable) Add(e *UpdateableEntry) {
	if old, ok := u.byID[e.ID]; ok {
		*old = *e
		return
	}
	u.entries = append(u.entries, e)
	u.byID[e.ID] = e
}

func (u *Updateable) Get(id string) (*UpdateableEntry, bool) {
	e, ok := u.byID[id]
	return e, ok
}

func (u *Updateable) Entries() []*UpdateableEntry {
	return u.entries
}

func (u *Updateable) Len() int {
	return len(u.entries)
}

// Needed returns the segments flagged for download, in order.
func (u *Updateable) Needed() []*UpdateableEntry {
	var needed []*UpdateableEntry
	for _, e := range u.entries {
		if e.NeedsUpdate {
			needed = append(needed, e)
		}
	}
	return needed
}
