package segment

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"git.home.luguber.info/inful/docsearch/internal/index"
)

const (
	metaKeySegmentID = "segment_id"
	metaKeySchema    = "schema"
	metaKeyCreatedAt = "created_at"
	metaKeyDocCount  = "doc_count"
)

const segmentDDL = `
CREATE TABLE metadata(
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE postings(
	field          TEXT NOT NULL,
	term           TEXT NOT NULL,
	doc_id         TEXT NOT NULL,
	positions_blob BLOB,
	tf             INTEGER NOT NULL,
	PRIMARY KEY (field, term, doc_id)
) WITHOUT ROWID;
CREATE TABLE documents(
	doc_id     TEXT PRIMARY KEY,
	field_data TEXT NOT NULL
);
CREATE TABLE field_lengths(
	field  TEXT NOT NULL,
	doc_id TEXT NOT NULL,
	length INTEGER NOT NULL,
	PRIMARY KEY (field, doc_id)
);
`

// Durability and throughput settings applied when a segment database
// is created. page_size must run before any table exists.
var writePragmas = []string{
	`PRAGMA page_size = 4096`,
	`PRAGMA journal_mode = WAL`,
	`PRAGMA synchronous = NORMAL`,
	`PRAGMA cache_size = -65536`,
	`PRAGMA mmap_size = 268435456`,
	`PRAGMA temp_store = MEMORY`,
	`PRAGMA cache_spill = OFF`,
}

var readPragmas = []string{
	`PRAGMA query_only = ON`,
	`PRAGMA cache_size = -65536`,
	`PRAGMA mmap_size = 268435456`,
	`PRAGMA temp_store = MEMORY`,
}

func applyWritePragmas(db *sql.DB) error {
	for _, pragma := range writePragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	return nil
}

func createSegmentSchema(db *sql.DB) error {
	if _, err := db.Exec(segmentDDL); err != nil {
		return fmt.Errorf("create segment schema: %w", err)
	}
	return nil
}

// Segment is a read-only handle over one sealed segment database.
type Segment struct {
	db        *sql.DB
	path      string
	id        string
	schema    index.Schema
	createdAt time.Time
	docCount  int
}

// Open opens a sealed segment database read-only.
func Open(path string) (*Segment, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", path, err)
	}
	for _, pragma := range readPragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	seg := &Segment{db: db, path: path}
	if err := seg.loadMetadata(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return seg, nil
}

func (s *Segment) loadMetadata() error {
	rows, err := s.db.Query(`SELECT key, value FROM metadata`)
	if err != nil {
		return fmt.Errorf("read segment metadata: %w", err)
	}
	defer rows.Close()

	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("scan metadata: %w", err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate metadata: %w", err)
	}

	s.id = meta[metaKeySegmentID]
	if s.id == "" {
		return fmt.Errorf("segment %s has no id", s.path)
	}
	if err := json.Unmarshal([]byte(meta[metaKeySchema]), &s.schema); err != nil {
		return fmt.Errorf("decode segment schema: %w", err)
	}
	if raw := meta[metaKeyCreatedAt]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			s.createdAt = ts
		}
	}
	if raw := meta[metaKeyDocCount]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("decode doc_count %q: %w", raw, err)
		}
		s.docCount = n
	}
	return nil
}

// ID returns the segment's fingerprint id.
func (s *Segment) ID() string { return s.id }

// Path returns the database file path.
func (s *Segment) Path() string { return s.path }

// Schema returns the schema the segment was built with.
func (s *Segment) Schema() index.Schema { return s.schema }

// CreatedAt returns the seal timestamp.
func (s *Segment) CreatedAt() time.Time { return s.createdAt }

// DocCount returns the number of documents in the segment.
func (s *Segment) DocCount() int { return s.docCount }

// Close releases the database handle.
func (s *Segment) Close() error {
	return s.db.Close()
}

// Postings returns the posting list for a (field, term) pair, ordered
// by doc id.
func (s *Segment) Postings(field, term string) ([]index.Posting, error) {
	rows, err := s.db.Query(
		`SELECT doc_id, positions_blob, tf FROM postings WHERE field = ? AND term = ? ORDER BY doc_id`,
		field, term,
	)
	if err != nil {
		return nil, fmt.Errorf("query postings %s/%s: %w", field, term, err)
	}
	defer rows.Close()

	var out []index.Posting
	for rows.Next() {
		var (
			docID string
			blob  []byte
			tf    int
		)
		if err := rows.Scan(&docID, &blob, &tf); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		positions, err := index.UnpackPositions(blob)
		if err != nil {
			return nil, fmt.Errorf("posting %s/%s/%s: %w", field, term, docID, err)
		}
		out = append(out, index.Posting{DocID: docID, Frequency: tf, Positions: positions})
	}
	return out, rows.Err()
}

// DocFreq returns the number of documents containing term in field.
func (s *Segment) DocFreq(field, term string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM postings WHERE field = ? AND term = ?`, field, term,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count postings %s/%s: %w", field, term, err)
	}
	return n, nil
}

// Vocabulary returns the distinct terms of a field in lexical order.
func (s *Segment) Vocabulary(field string) ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT term FROM postings WHERE field = ? ORDER BY term`, field)
	if err != nil {
		return nil, fmt.Errorf("query vocabulary %s: %w", field, err)
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan vocabulary term: %w", err)
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// FieldLength returns the token count of one field of one document.
func (s *Segment) FieldLength(field, docID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT length FROM field_lengths WHERE field = ? AND doc_id = ?`, field, docID,
	).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query field length %s/%s: %w", field, docID, err)
	}
	return n, nil
}

// AvgFieldLength returns the mean token count of a field across the
// segment, or zero when the field is absent.
func (s *Segment) AvgFieldLength(field string) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT AVG(length) FROM field_lengths WHERE field = ?`, field,
	).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("query avg field length %s: %w", field, err)
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}

// Document returns the stored field bag of a document, or nil when the
// doc id is unknown.
func (s *Segment) Document(docID string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRow(`SELECT field_data FROM documents WHERE doc_id = ?`, docID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query document %s: %w", docID, err)
	}
	var bag map[string]any
	if err := json.Unmarshal([]byte(raw), &bag); err != nil {
		return nil, fmt.Errorf("decode field bag %s: %w", docID, err)
	}
	return bag, nil
}

// DocIDs returns every doc id in the segment.
func (s *Segment) DocIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT doc_id FROM documents ORDER BY doc_id`)
	if err != nil {
		return nil, fmt.Errorf("query doc ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan doc id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
