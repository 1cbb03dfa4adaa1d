package store

import (
	"sort"
	"strings"
)

// UpsertContact merges contact attributes and invalidates the contacts index.
func (s *Store) UpsertContact(c Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.contacts[c.ID]
	if !ok {
		existing = &Contact{ID: c.ID}
		s.contacts[c.ID] = existing
	}
	if c.Name != "" {
		existing.Name = c.Name
	}
	if c.PushName != "" {
		existing.PushName = c.PushName
	}
	if c.BusinessName != "" {
		existing.BusinessName = c.BusinessName
	}
	s.contactIndex = nil
	if _, inOverview := s.overview[c.ID]; inOverview {
		s.refreshEntryLocked(c.ID)
	}
}

// Contact returns a contact by id.
func (s *Store) Contact(id string) (Contact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return Contact{}, false
	}
	return *c, true
}

// Contacts lists individual contacts sorted by name. A non-empty search keeps
// entries whose name, push name, or id contains it (case-insensitive).
func (s *Store) Contacts(search string, page Page) ([]ContactEntry, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contactIndex == nil {
		s.rebuildContactIndexLocked()
	}

	needle := strings.ToLower(strings.TrimSpace(search))
	matched := s.contactIndex
	if needle != "" {
		matched = make([]ContactEntry, 0)
		for _, e := range s.contactIndex {
			if strings.Contains(strings.ToLower(e.Name), needle) ||
				strings.Contains(strings.ToLower(e.PushName), needle) ||
				strings.Contains(e.ID, needle) {
				matched = append(matched, e)
			}
		}
	}

	total := len(matched)
	start := min(max(page.Offset, 0), total)
	end := total
	if page.Limit > 0 {
		end = min(start+page.Limit, total)
	}
	out := make([]ContactEntry, 0, end-start)
	for _, e := range matched[start:end] {
		e.ProfilePicture = s.pictures[e.ID]
		out = append(out, e)
	}
	return out, total
}

func (s *Store) rebuildContactIndexLocked() {
	idx := make([]ContactEntry, 0, len(s.contacts))
	for id, c := range s.contacts {
		if !strings.HasSuffix(id, userSuffix) {
			continue
		}
		name := c.Name
		if name == "" {
			name = c.PushName
		}
		if name == "" {
			name = bareID(id)
		}
		idx = append(idx, ContactEntry{
			ID:           id,
			Name:         name,
			PushName:     c.PushName,
			BusinessName: c.BusinessName,
		})
	}
	sort.Slice(idx, func(i, j int) bool {
		if idx[i].Name != idx[j].Name {
			return idx[i].Name < idx[j].Name
		}
		return idx[i].ID < idx[j].ID
	})
	s.contactIndex = idx
}

// SetPicture caches a profile-picture URL. An empty url records that the
// account has no picture so it is not looked up again.
func (s *Store) SetPicture(id, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pictures[id] = url
	if e := s.overview[id]; e != nil {
		e.ProfilePicture = url
	}
}

// Picture returns a cached profile-picture URL and whether it was cached.
func (s *Store) Picture(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	url, ok := s.pictures[id]
	return url, ok
}

// MissingPictures returns the ids that have no cached picture lookup.
func (s *Store) MissingPictures(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []string
	for _, id := range ids {
		if _, ok := s.pictures[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
