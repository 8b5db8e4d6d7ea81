// Package checkpoint persists the accumulated results of a job so it can be
// resumed after the process dies at any point.
//
// A job directory holds four independent artifacts plus a meta record:
//
//	progress.json   grid points already searched
//	place_ids.json  discovered candidate ids
//	scraped.json    detail record per candidate
//	emails.json     email set per candidate
//	job_meta.json   cached summary (model.JobMeta)
//
// Each mutation rewrites the whole artifact atomically. A missing artifact
// loads as empty.
package checkpoint

import (
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-scraper/internal/grid"
	"github.com/sells-group/lead-scraper/internal/model"
)

// Artifact file names.
const (
	ProgressFile   = "progress.json"
	CandidatesFile = "place_ids.json"
	DetailsFile    = "scraped.json"
	EmailsFile     = "emails.json"
	MetaFile       = "job_meta.json"
)

type scanFile struct {
	ScannedPoints [][2]float64 `json:"scanned_points"`
}

// Store is the checkpoint of a single job. It is owned by that job; the mutex
// only protects readers such as status queries running alongside the stage.
type Store struct {
	dir string

	mu         sync.RWMutex
	scanned    map[string]grid.Point
	candidates map[string]struct{}
	details    map[string]model.DetailRecord
	emails     map[string][]string
}

// Open creates dir if needed and loads every artifact found in it.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: create dir %s", dir)
	}

	s := &Store{
		dir:        dir,
		scanned:    make(map[string]grid.Point),
		candidates: make(map[string]struct{}),
		details:    make(map[string]model.DetailRecord),
		emails:     make(map[string][]string),
	}

	var scan scanFile
	if _, err := readJSON(s.path(ProgressFile), &scan); err != nil {
		return nil, err
	}
	for _, p := range scan.ScannedPoints {
		pt := grid.NewPoint(p[0], p[1])
		s.scanned[pt.Key()] = pt
	}

	var ids []string
	if _, err := readJSON(s.path(CandidatesFile), &ids); err != nil {
		return nil, err
	}
	for _, id := range ids {
		s.candidates[id] = struct{}{}
	}

	if _, err := readJSON(s.path(DetailsFile), &s.details); err != nil {
		return nil, err
	}
	if s.details == nil {
		s.details = make(map[string]model.DetailRecord)
	}

	if _, err := readJSON(s.path(EmailsFile), &s.emails); err != nil {
		return nil, err
	}
	if s.emails == nil {
		s.emails = make(map[string][]string)
	}

	return s, nil
}

// Dir returns the job directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// Path returns the location of a file inside the job directory.
func (s *Store) Path(name string) string { return s.path(name) }

// HasArtifactFiles reports whether any of the candidate, detail or email
// files exist on disk, even if empty.
func (s *Store) HasArtifactFiles() bool {
	return fileExists(s.path(CandidatesFile)) || fileExists(s.path(DetailsFile)) || fileExists(s.path(EmailsFile))
}

// ScannedKeys returns the identity keys of scanned grid points.
func (s *Store) ScannedKeys() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.scanned))
	for k := range s.scanned {
		out[k] = struct{}{}
	}
	return out
}

// ScannedPoints returns the scanned grid points sorted by key.
func (s *Store) ScannedPoints() []grid.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedScannedLocked()
}

func (s *Store) sortedScannedLocked() []grid.Point {
	keys := make([]string, 0, len(s.scanned))
	for k := range s.scanned {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]grid.Point, len(keys))
	for i, k := range keys {
		out[i] = s.scanned[k]
	}
	return out
}

// Candidates returns the candidate ids in sorted order.
func (s *Store) Candidates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedCandidatesLocked()
}

func (s *Store) sortedCandidatesLocked() []string {
	ids := make([]string, 0, len(s.candidates))
	for id := range s.candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Details returns a copy of the detail record map.
func (s *Store) Details() map[string]model.DetailRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.DetailRecord, len(s.details))
	for k, v := range s.details {
		out[k] = v
	}
	return out
}

// Detail returns the detail record for id.
func (s *Store) Detail(id string) (model.DetailRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.details[id]
	return rec, ok
}

// Emails returns a copy of the email set map.
func (s *Store) Emails() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(s.emails))
	for k, v := range s.emails {
		out[k] = slices.Clone(v)
	}
	return out
}

// EmailsChecked reports whether id has an email set, possibly empty.
func (s *Store) EmailsChecked(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.emails[id]
	return ok
}

// MergeScanned adds points to the scan progress. It reports whether anything
// new was persisted.
func (s *Store) MergeScanned(points ...grid.Point) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	for _, p := range points {
		p = p.Rounded()
		k := p.Key()
		if _, ok := s.scanned[k]; ok {
			continue
		}
		s.scanned[k] = p
		added = append(added, k)
	}
	if len(added) == 0 {
		return false, nil
	}

	sorted := s.sortedScannedLocked()
	out := scanFile{ScannedPoints: make([][2]float64, len(sorted))}
	for i, p := range sorted {
		out.ScannedPoints[i] = [2]float64{p.Lat, p.Lng}
	}
	if err := writeJSON(s.path(ProgressFile), out); err != nil {
		for _, k := range added {
			delete(s.scanned, k)
		}
		return false, err
	}
	return true, nil
}

// MergeCandidates unions ids into the candidate set and returns how many were
// new. Merging ids already present is a no-op.
func (s *Store) MergeCandidates(ids ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s.candidates[id]; ok {
			continue
		}
		s.candidates[id] = struct{}{}
		added = append(added, id)
	}
	if len(added) == 0 {
		return 0, nil
	}

	if err := writeJSON(s.path(CandidatesFile), s.sortedCandidatesLocked()); err != nil {
		for _, id := range added {
			delete(s.candidates, id)
		}
		return 0, err
	}
	return len(added), nil
}

// PutDetail records the detail result for rec.PlaceID, replacing any earlier
// record for the same candidate.
func (s *Store) PutDetail(rec model.DetailRecord) error {
	if rec.PlaceID == "" {
		return eris.New("checkpoint: detail record without place id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.details[rec.PlaceID]
	s.details[rec.PlaceID] = rec
	if err := writeJSON(s.path(DetailsFile), s.details); err != nil {
		if had {
			s.details[rec.PlaceID] = prev
		} else {
			delete(s.details, rec.PlaceID)
		}
		return err
	}
	return nil
}

// PutEmails records the email set found for id. An empty set means the site
// was checked and nothing was found.
func (s *Store) PutEmails(id string, emails []string) error {
	if id == "" {
		return eris.New("checkpoint: email set without place id")
	}

	set := normalizeSet(emails)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.emails[id]
	s.emails[id] = set
	if err := writeJSON(s.path(EmailsFile), s.emails); err != nil {
		if had {
			s.emails[id] = prev
		} else {
			delete(s.emails, id)
		}
		return err
	}
	return nil
}

func normalizeSet(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// SaveMeta persists the job meta record.
func (s *Store) SaveMeta(meta model.JobMeta) error {
	return writeJSON(s.path(MetaFile), meta)
}

// LoadMeta reads the meta record in dir. It returns nil when none exists.
func LoadMeta(dir string) (*model.JobMeta, error) {
	var meta model.JobMeta
	ok, err := readJSON(filepath.Join(dir, MetaFile), &meta)
	if err != nil || !ok {
		return nil, err
	}
	return &meta, nil
}
