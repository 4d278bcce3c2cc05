package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docsearch/internal/docmodel"
)

func TestDefaultSchema(t *testing.T) {
	schema := DefaultSchema()

	unique, err := schema.UniqueField()
	require.NoError(t, err)
	assert.Equal(t, FieldURL, unique.Name)

	title, ok := schema.Field(FieldTitle)
	require.True(t, ok)
	assert.Equal(t, 2.5, title.Boost)

	lang, ok := schema.Field(FieldLanguage)
	require.True(t, ok)
	assert.False(t, lang.Indexed, "language is a stored-only filter")
}

func TestSchemaDigestStable(t *testing.T) {
	a, err := DefaultSchema().Digest()
	require.NoError(t, err)
	b, err := DefaultSchema().Digest()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPackUnpackPositions(t *testing.T) {
	positions := []uint32{0, 3, 17, 1 << 20}
	blob := PackPositions(positions)
	assert.Len(t, blob, 16)
	// Little-endian layout of the first u32.
	assert.Equal(t, byte(0), blob[0])
	assert.Equal(t, byte(3), blob[4])

	got, err := UnpackPositions(blob)
	require.NoError(t, err)
	assert.Equal(t, positions, got)

	_, err = UnpackPositions([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestPostingRoundTrip(t *testing.T) {
	p := Posting{DocID: "doc-1", Positions: []uint32{2, 9}}
	back, err := PostingFromDict(p.ToDict())
	require.NoError(t, err)
	assert.Equal(t, p.DocID, back.DocID)
	assert.Equal(t, p.Positions, back.Positions)
	assert.Equal(t, 2, back.TF())
}

func TestExtract(t *testing.T) {
	markdown := "# Getting Started\n\nInstall the package first.\n\n## Configuration\n\n### Advanced\n\n```\ncode here\n```\n"
	meta := docmodel.Meta{
		Language:      "en-US",
		LastFetchedAt: time.Unix(1700000000, 0),
		Tags:          []string{"guide"},
	}
	fields := Extract("https://ex.com/docs/start/", "abc.md", markdown, meta)

	assert.Equal(t, "Getting Started", fields.Title)
	assert.Equal(t, []string{"Getting Started"}, fields.HeadingsH1)
	assert.Equal(t, []string{"Configuration"}, fields.HeadingsH2)
	assert.Equal(t, []string{"Advanced"}, fields.Headings)
	assert.Equal(t, "Install the package first.", fields.Excerpt)
	assert.Equal(t, "/docs/start/", fields.URLPath)
	assert.Equal(t, "en", fields.Language)
	assert.Equal(t, int64(1700000000), fields.Timestamp)
	// Code fences stay inside the body text.
	assert.Contains(t, fields.Body, "code here")
}

func TestExtractTitleFallsBackToMeta(t *testing.T) {
	fields := Extract("https://ex.com/p/", "p.md", "No headings here.\n", docmodel.Meta{Title: "From Meta"})
	assert.Equal(t, "From Meta", fields.Title)
}

func TestStoredBagTruncation(t *testing.T) {
	long := make([]byte, maxStoredBody+100)
	for i := range long {
		long[i] = 'a'
	}
	fields := DocumentFields{Title: "t", Body: string(long), Tags: []string{"x"}}
	bag := fields.StoredBag()
	assert.Len(t, bag[FieldBody], maxStoredBody)
	_, hasTags := bag[FieldTags]
	assert.False(t, hasTags, "tags are indexed but not stored")
}

func TestFingerprintDeterministic(t *testing.T) {
	schema := DefaultSchema()
	docs := []DocSummary{
		{URL: "https://ex.com/b/", LastFetchedAt: 2, ContentHash: ContentHash([]byte("b"))},
		{URL: "https://ex.com/a/", LastFetchedAt: 1, ContentHash: ContentHash([]byte("a"))},
	}
	fp1, err := Fingerprint(schema, docs)
	require.NoError(t, err)

	// Input order must not matter.
	reversed := []DocSummary{docs[1], docs[0]}
	fp2, err := Fingerprint(schema, reversed)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 64)

	// Content changes must change the fingerprint.
	changed := append([]DocSummary(nil), docs...)
	changed[0].ContentHash = ContentHash([]byte("other"))
	fp3, err := Fingerprint(schema, changed)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp3)
}
