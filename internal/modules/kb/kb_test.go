package kb

import (
	"testing"

	"github.com/datanger/workbench/internal/apierr"
	"github.com/datanger/workbench/internal/modules/news"
	"github.com/datanger/workbench/internal/modules/notes"
	"github.com/datanger/workbench/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kbFixture struct {
	repo  *Repository
	notes *notes.Repository
	news  *news.Repository
}

func newKBFixture(t *testing.T) *kbFixture {
	t.Helper()
	db := testutil.OpenDB(t)
	conn := db.Conn()
	nop := zerolog.Nop()
	return &kbFixture{
		repo:  NewRepository(conn, nop),
		notes: notes.NewRepository(conn, nop),
		news:  news.NewRepository(conn, nop),
	}
}

func TestAddAndGetDocument(t *testing.T) {
	f := newKBFixture(t)

	doc, err := f.repo.Add(Document{
		SourceType: SourceManual,
		Title:      "Bank sector thesis",
		Content:    "State banks trade below book value with stable dividends.",
		Tags:       []string{"banks", "value"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, doc.DocID)

	got, err := f.repo.Get(doc.DocID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, []string{"banks", "value"}, got.Tags)
}

func TestAddRequiresTitleAndContent(t *testing.T) {
	f := newKBFixture(t)

	_, err := f.repo.Add(Document{Title: "no content"})
	require.Error(t, err)
	assert.Equal(t, apierr.CodeValidation, apierr.From(err).Code)
}

func TestSearchRanksMatches(t *testing.T) {
	f := newKBFixture(t)

	_, err := f.repo.Add(Document{
		SourceType: SourceManual,
		Title:      "Dividend notes",
		Content:    "High dividend yield names in the banking sector.",
	})
	require.NoError(t, err)
	_, err = f.repo.Add(Document{
		SourceType: SourceManual,
		Title:      "Semiconductor cycle",
		Content:    "Memory prices are bottoming.",
	})
	require.NoError(t, err)

	hits, err := f.repo.Search("dividend", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Dividend notes", hits[0].Title)
	assert.NotEmpty(t, hits[0].Snippet)
}

func TestSearchWithoutMatchesIsEmpty(t *testing.T) {
	f := newKBFixture(t)

	hits, err := f.repo.Search("nothing", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIngestFromNotesIsIdempotent(t *testing.T) {
	f := newKBFixture(t)

	_, err := f.notes.Create(notes.Note{
		Symbol: "600000", Exchange: "SSE",
		Title: "SPD thesis", Content: "Cheap bank with improving asset quality.",
	})
	require.NoError(t, err)

	n, err := f.repo.IngestFromNotes()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.repo.IngestFromNotes()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	hits, err := f.repo.Search("thesis", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestIngestFromNews(t *testing.T) {
	f := newKBFixture(t)

	_, err := f.news.IngestMock([]string{"600000"})
	require.NoError(t, err)

	n, err := f.repo.IngestFromNews()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := f.repo.IngestFromNews()
	require.NoError(t, err)
	assert.Equal(t, 0, again)
}
