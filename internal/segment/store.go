package segment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultRetention is the number of segments kept before pruning.
const DefaultRetention = 32

const manifestName = "manifest.json"

// ManifestEntry describes one saved segment.
type ManifestEntry struct {
	SegmentID string    `json:"segment_id"`
	CreatedAt time.Time `json:"created_at"`
	DocCount  int       `json:"doc_count"`
	Files     []string  `json:"files"`
}

// Manifest is the JSON index over segments on disk. The latest entry is
// the active segment.
type Manifest struct {
	UpdatedAt       time.Time       `json:"updated_at"`
	LatestSegmentID string          `json:"latest_segment_id,omitempty"`
	Segments        []ManifestEntry `json:"segments"`
}

// Store manages the segment directory of one tenant.
type Store struct {
	dir       string
	retention int
	mu        sync.Mutex
}

// NewStore creates the segment directory if needed. retention <= 0
// selects DefaultRetention.
func NewStore(dir string, retention int) (*Store, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create segments dir: %w", err)
	}
	return &Store{dir: dir, retention: retention}, nil
}

// Dir returns the segment directory.
func (s *Store) Dir() string { return s.dir }

// SegmentPath returns the database path for a segment id.
func (s *Store) SegmentPath(id string) string {
	return filepath.Join(s.dir, id+".db")
}

// Save seals a built segment and appends exactly one manifest entry.
// related holds optional side-car files keyed by suffix (for example
// ".meta.json"). Saving an id already present in the manifest is a
// no-op returning the existing path.
func (s *Store) Save(b *Builder, related map[string][]byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	manifest, err := s.readManifest()
	if err != nil {
		return "", err
	}
	for _, entry := range manifest.Segments {
		if entry.SegmentID == b.ID() {
			return s.SegmentPath(entry.SegmentID), nil
		}
	}

	dbPath := s.SegmentPath(b.ID())
	// A stray database from an interrupted earlier save is replaced.
	_ = os.Remove(dbPath)
	if err := b.WriteTo(dbPath); err != nil {
		return "", err
	}

	files := []string{filepath.Base(dbPath)}
	for suffix, data := range related {
		name := b.ID() + suffix
		if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o640); err != nil {
			return "", fmt.Errorf("write side-car %s: %w", name, err)
		}
		files = append(files, name)
	}

	manifest.Segments = append(manifest.Segments, ManifestEntry{
		SegmentID: b.ID(),
		CreatedAt: b.CreatedAt(),
		DocCount:  b.DocCount(),
		Files:     files,
	})
	manifest.LatestSegmentID = b.ID()
	manifest.UpdatedAt = time.Now().UTC()

	s.applyRetention(&manifest)

	if err := s.writeManifest(manifest); err != nil {
		return "", err
	}
	return dbPath, nil
}

// applyRetention drops the oldest entries beyond the cap and deletes
// their files.
func (s *Store) applyRetention(m *Manifest) {
	for len(m.Segments) > s.retention {
		victim := m.Segments[0]
		m.Segments = m.Segments[1:]
		s.removeEntryFiles(victim)
	}
}

func (s *Store) removeEntryFiles(entry ManifestEntry) {
	for _, name := range entry.Files {
		_ = os.Remove(filepath.Join(s.dir, name))
	}
	// WAL side files are not tracked in the manifest.
	_ = os.Remove(s.SegmentPath(entry.SegmentID) + "-wal")
	_ = os.Remove(s.SegmentPath(entry.SegmentID) + "-shm")
}

// Load opens a segment by id.
func (s *Store) Load(id string) (*Segment, error) {
	return Open(s.SegmentPath(id))
}

// Latest opens the manifest's active segment. Returns nil without error
// when no segment exists yet.
func (s *Store) Latest() (*Segment, error) {
	id, err := s.LatestSegmentID()
	if err != nil || id == "" {
		return nil, err
	}
	return s.Load(id)
}

// LatestSegmentID returns the active segment id, or empty.
func (s *Store) LatestSegmentID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	manifest, err := s.readManifest()
	if err != nil {
		return "", err
	}
	return manifest.LatestSegmentID, nil
}

// ListSegments returns the manifest entries, oldest first.
func (s *Store) ListSegments() ([]ManifestEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	manifest, err := s.readManifest()
	if err != nil {
		return nil, err
	}
	return manifest.Segments, nil
}

// PruneToSegmentIDs removes every segment not in keep, including side
// files, and rewrites the manifest.
func (s *Store) PruneToSegmentIDs(keep []string) error {
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	manifest, err := s.readManifest()
	if err != nil {
		return err
	}

	kept := manifest.Segments[:0]
	for _, entry := range manifest.Segments {
		if _, ok := keepSet[entry.SegmentID]; ok {
			kept = append(kept, entry)
			continue
		}
		s.removeEntryFiles(entry)
	}
	manifest.Segments = kept
	if _, ok := keepSet[manifest.LatestSegmentID]; !ok {
		manifest.LatestSegmentID = ""
		if len(kept) > 0 {
			manifest.LatestSegmentID = kept[len(kept)-1].SegmentID
		}
	}
	manifest.UpdatedAt = time.Now().UTC()
	return s.writeManifest(manifest)
}

func (s *Store) manifestPath() string {
	return filepath.Join(s.dir, manifestName)
}

func (s *Store) readManifest() (Manifest, error) {
	var manifest Manifest
	raw, err := os.ReadFile(s.manifestPath())
	if os.IsNotExist(err) {
		return manifest, nil
	}
	if err != nil {
		return manifest, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return manifest, fmt.Errorf("decode manifest: %w", err)
	}
	return manifest, nil
}

// writeManifest rewrites the manifest atomically (write-temp + rename).
func (s *Store) writeManifest(manifest Manifest) error {
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp := s.manifestPath() + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o640); err != nil {
		return fmt.Errorf("write manifest temp: %w", err)
	}
	if err := os.Rename(tmp, s.manifestPath()); err != nil {
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}
