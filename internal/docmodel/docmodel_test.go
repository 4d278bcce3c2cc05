package docmodel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validDoc() Document {
	return Document{
		URL:     "https://ex.com/docs/",
		Title:   "Docs",
		Content: Content{Markdown: "# Docs\n\nBody."},
		Meta:    Meta{Status: StatusSuccess, LastFetchedAt: time.Now()},
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validDoc().Validate())

	d := validDoc()
	d.Title = "  "
	assert.Error(t, d.Validate())

	d = validDoc()
	d.Content = Content{}
	assert.Error(t, d.Validate())

	// A text-only view is enough.
	d = validDoc()
	d.Content = Content{Text: "plain"}
	assert.NoError(t, d.Validate())

	d = validDoc()
	d.Meta.RetryCount = -1
	assert.Error(t, d.Validate())
}

func TestEqualByURLOnly(t *testing.T) {
	a := validDoc()
	b := validDoc()
	b.Title = "Other"
	b.Content.Markdown = "different"
	assert.True(t, a.Equal(b))

	b.URL = "https://ex.com/other/"
	assert.False(t, a.Equal(b))
}
