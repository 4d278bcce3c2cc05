// Package segment implements the on-disk inverted index: immutable
// SQLite-backed segments and the manifest-driven store that tracks
// them. A segment is never mutated after sealing; new data always
// produces a new segment id.
package segment

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/docsearch/internal/analysis"
	"git.home.luguber.info/inful/docsearch/internal/index"
)

// Builder accumulates analyzed documents in memory and writes the
// sealed segment database in one pass.
type Builder struct {
	id        string
	schema    index.Schema
	createdAt time.Time

	// field -> term -> doc_id -> positions
	postings map[string]map[string]map[string][]uint32
	docs     map[string]string
	lengths  map[string]map[string]int
}

// NewBuilder starts a segment build for a precomputed fingerprint id.
func NewBuilder(id string, schema index.Schema) *Builder {
	return &Builder{
		id:        id,
		schema:    schema,
		createdAt: time.Now().UTC(),
		postings:  make(map[string]map[string]map[string][]uint32),
		docs:      make(map[string]string),
		lengths:   make(map[string]map[string]int),
	}
}

// ID returns the segment id the builder was started with.
func (b *Builder) ID() string { return b.id }

// DocCount returns the number of documents added so far.
func (b *Builder) DocCount() int { return len(b.docs) }

// CreatedAt returns the segment creation timestamp.
func (b *Builder) CreatedAt() time.Time { return b.createdAt }

// AddDocument indexes one document: tokens per analyzed field plus the
// stored field bag.
func (b *Builder) AddDocument(docID string, tokens map[string][]analysis.Token, stored map[string]any) error {
	if docID == "" {
		return fmt.Errorf("doc id is empty")
	}
	if _, dup := b.docs[docID]; dup {
		return fmt.Errorf("duplicate doc id %q", docID)
	}

	bag, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal field bag for %s: %w", docID, err)
	}
	b.docs[docID] = string(bag)

	for field, toks := range tokens {
		if len(toks) == 0 {
			continue
		}
		if b.lengths[field] == nil {
			b.lengths[field] = make(map[string]int)
		}
		b.lengths[field][docID] = len(toks)

		terms := b.postings[field]
		if terms == nil {
			terms = make(map[string]map[string][]uint32)
			b.postings[field] = terms
		}
		for _, tok := range toks {
			byDoc := terms[tok.Text]
			if byDoc == nil {
				byDoc = make(map[string][]uint32)
				terms[tok.Text] = byDoc
			}
			byDoc[docID] = append(byDoc[docID], uint32(tok.Position))
		}
	}
	return nil
}

// WriteTo seals the builder into a segment database at path. The file
// must not already exist with different content; callers go through
// Store.Save which handles duplicate ids.
func (b *Builder) WriteTo(path string) (err error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open segment database: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close segment database: %w", cerr)
		}
	}()

	if err := applyWritePragmas(db); err != nil {
		return err
	}
	if err := createSegmentSchema(db); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin segment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = b.writeMetadata(tx); err != nil {
		return err
	}
	if err = b.writePostings(tx); err != nil {
		return err
	}
	if err = b.writeDocuments(tx); err != nil {
		return err
	}
	if err = b.writeLengths(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit segment: %w", err)
	}

	// One-off statistics pass; helps the query planner on big segments.
	if _, err = db.Exec(`ANALYZE`); err != nil {
		return fmt.Errorf("analyze segment: %w", err)
	}
	return nil
}

func (b *Builder) writeMetadata(tx *sql.Tx) error {
	schemaJSON, err := json.Marshal(b.schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	rows := [][2]string{
		{metaKeySegmentID, b.id},
		{metaKeySchema, string(schemaJSON)},
		{metaKeyCreatedAt, b.createdAt.Format(time.RFC3339Nano)},
		{metaKeyDocCount, fmt.Sprintf("%d", len(b.docs))},
	}
	for _, kv := range rows {
		if _, err := tx.Exec(`INSERT INTO metadata(key, value) VALUES(?, ?)`, kv[0], kv[1]); err != nil {
			return fmt.Errorf("insert metadata %s: %w", kv[0], err)
		}
	}
	return nil
}

func (b *Builder) writePostings(tx *sql.Tx) error {
	stmt, err := tx.Prepare(`INSERT INTO postings(field, term, doc_id, positions_blob, tf) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare postings insert: %w", err)
	}
	defer stmt.Close()

	for _, field := range sortedKeys(b.postings) {
		terms := b.postings[field]
		for _, term := range sortedKeys(terms) {
			byDoc := terms[term]
			for _, docID := range sortedKeys(byDoc) {
				positions := byDoc[docID]
				blob := index.PackPositions(positions)
				if _, err := stmt.Exec(field, term, docID, blob, len(positions)); err != nil {
					return fmt.Errorf("insert posting %s/%s/%s: %w", field, term, docID, err)
				}
			}
		}
	}
	return nil
}

func (b *Builder) writeDocuments(tx *sql.Tx) error {
	stmt, err := tx.Prepare(`INSERT INTO documents(doc_id, field_data) VALUES(?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare documents insert: %w", err)
	}
	defer stmt.Close()

	for _, docID := range sortedKeys(b.docs) {
		if _, err := stmt.Exec(docID, b.docs[docID]); err != nil {
			return fmt.Errorf("insert document %s: %w", docID, err)
		}
	}
	return nil
}

func (b *Builder) writeLengths(tx *sql.Tx) error {
	stmt, err := tx.Prepare(`INSERT INTO field_lengths(field, doc_id, length) VALUES(?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare field_lengths insert: %w", err)
	}
	defer stmt.Close()

	for _, field := range sortedKeys(b.lengths) {
		byDoc := b.lengths[field]
		for _, docID := range sortedKeys(byDoc) {
			if _, err := stmt.Exec(field, docID, byDoc[docID]); err != nil {
				return fmt.Errorf("insert field length %s/%s: %w", field, docID, err)
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
