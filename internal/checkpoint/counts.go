package checkpoint

import "sort"

// Counts summarises artifact sizes. Progress counters and resume descriptions
// are derived from it rather than tracked separately.
type Counts struct {
	Scanned       int
	Candidates    int
	Details       int
	DetailsOK     int
	DetailsFailed int
	WithPhone     int
	WithWebsite   int
	EmailsChecked int
	EmailsFound   int
}

// HasScanProgress reports whether any grid point has been scanned.
func (c Counts) HasScanProgress() bool { return c.Scanned > 0 }

// HasCandidates reports whether any candidate has been discovered.
func (c Counts) HasCandidates() bool { return c.Candidates > 0 }

// HasDetails reports whether any detail record exists.
func (c Counts) HasDetails() bool { return c.Details > 0 }

// HasEmails reports whether any email set exists.
func (c Counts) HasEmails() bool { return c.EmailsChecked > 0 }

// Counts measures the current artifacts.
func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := Counts{
		Scanned:       len(s.scanned),
		Candidates:    len(s.candidates),
		Details:       len(s.details),
		EmailsChecked: len(s.emails),
	}
	for _, rec := range s.details {
		if rec.Failed() {
			c.DetailsFailed++
			continue
		}
		c.DetailsOK++
		if rec.Phone != "" {
			c.WithPhone++
		}
		if rec.Website != "" {
			c.WithWebsite++
		}
	}
	for _, set := range s.emails {
		if len(set) > 0 {
			c.EmailsFound++
		}
	}
	return c
}

// PendingDetails returns candidates without a detail record, in sorted order.
func (s *Store) PendingDetails() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, id := range s.sortedCandidatesLocked() {
		if _, ok := s.details[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// PendingEmails returns successful detail records with a website and no email
// set yet, ordered by place id.
func (s *Store) PendingEmails() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for id, rec := range s.details {
		if !rec.NeedsEmails() {
			continue
		}
		if _, ok := s.emails[id]; ok {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
