package note

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvard/minne/internal/fault"
	"github.com/halvard/minne/internal/log"
	"github.com/halvard/minne/internal/testutil"
	"github.com/halvard/minne/internal/user"
)

func setupStore(t *testing.T) (*Store, *user.Store, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)

	notes, err := NewStore(tdb.Pool, log.NewNop())
	require.NoError(t, err)
	users, err := user.NewStore(tdb.Pool)
	require.NoError(t, err)

	return notes, users, cleanup
}

func testVector(dim int, fill float32) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = fill
	}
	return vec
}

func testChunks(n int) []EmbeddedChunk {
	chunks := make([]EmbeddedChunk, n)
	for i := range chunks {
		chunks[i] = EmbeddedChunk{
			ID:      uuid.New(),
			Index:   i,
			Content: "chunk content",
			Start:   i * 10,
			End:     i*10 + 5,
			Vector:  testVector(768, float32(i)+0.5),
		}
	}
	return chunks
}

func TestDraftFindOrCreate(t *testing.T) {
	notes, users, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	u, err := users.Create(ctx, "alice")
	require.NoError(t, err)

	first, err := notes.Draft(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, first.StoredDate, "a fresh draft must not have a stored date")
	assert.False(t, first.Saved())

	// A second call returns the same draft, never a new one.
	second, err := notes.Draft(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestUpdateDraftContent(t *testing.T) {
	notes, users, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	u, err := users.Create(ctx, "alice")
	require.NoError(t, err)
	draft, err := notes.Draft(ctx, u.ID)
	require.NoError(t, err)

	require.NoError(t, notes.UpdateDraftContent(ctx, u.ID, "# Plans\n\ndetails"))

	got, err := notes.Get(ctx, u.ID, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "# Plans\n\ndetails", got.Content)
}

func TestUpdateDraftContentWithoutDraft(t *testing.T) {
	notes, users, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	u, err := users.Create(ctx, "alice")
	require.NoError(t, err)

	err = notes.UpdateDraftContent(ctx, u.ID, "content")
	assert.True(t, errors.Is(err, fault.ErrNotFound))
}

func TestSaveStoresNoteAndChunks(t *testing.T) {
	notes, users, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	u, err := users.Create(ctx, "alice")
	require.NoError(t, err)
	draft, err := notes.Draft(ctx, u.ID)
	require.NoError(t, err)

	storedDate := time.Now().UTC().Truncate(time.Second)
	err = notes.Save(ctx, draft.ID, "Trip Plans", "# Trip\n\npack bags", storedDate, testChunks(3))
	require.NoError(t, err)

	got, err := notes.Get(ctx, u.ID, draft.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Title)
	assert.Equal(t, "Trip Plans", *got.Title)
	assert.True(t, got.Saved())

	count, err := notes.CountChunks(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Saving consumed the draft; the next Draft call creates a fresh one.
	next, err := notes.Draft(ctx, u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, draft.ID, next.ID)
}

func TestSaveReplacesChunks(t *testing.T) {
	notes, users, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	u, err := users.Create(ctx, "alice")
	require.NoError(t, err)
	draft, err := notes.Draft(ctx, u.ID)
	require.NoError(t, err)

	require.NoError(t, notes.Save(ctx, draft.ID, "v1", "content", time.Now().UTC(), testChunks(5)))
	require.NoError(t, notes.Save(ctx, draft.ID, "v2", "content", time.Now().UTC(), testChunks(2)))

	count, err := notes.CountChunks(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "the previous chunk set must be replaced, not appended to")
}

func TestSaveEmptyChunkListClearsPrevious(t *testing.T) {
	notes, users, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	u, err := users.Create(ctx, "alice")
	require.NoError(t, err)
	draft, err := notes.Draft(ctx, u.ID)
	require.NoError(t, err)

	require.NoError(t, notes.Save(ctx, draft.ID, "v1", "content", time.Now().UTC(), testChunks(5)))
	require.NoError(t, notes.Save(ctx, draft.ID, "v2", "content", time.Now().UTC(), nil))

	count, err := notes.CountChunks(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSaveInvalidVectorRollsBack(t *testing.T) {
	notes, users, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	u, err := users.Create(ctx, "alice")
	require.NoError(t, err)
	draft, err := notes.Draft(ctx, u.ID)
	require.NoError(t, err)

	bad := testChunks(3)
	bad[2].Vector[0] = float32(math.NaN())

	err = notes.Save(ctx, draft.ID, "Broken", "content", time.Now().UTC(), bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrInternal))

	// The transaction rolled back: the note is still an unsaved draft with
	// no chunks.
	got, err := notes.Get(ctx, u.ID, draft.ID)
	require.NoError(t, err)
	assert.False(t, got.Saved())

	count, err := notes.CountChunks(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestListReturnsSavedNotesOnly(t *testing.T) {
	notes, users, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	u, err := users.Create(ctx, "alice")
	require.NoError(t, err)

	older, err := notes.Draft(ctx, u.ID)
	require.NoError(t, err)
	require.NoError(t, notes.Save(ctx, older.ID, "Older", "a", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), nil))

	newer, err := notes.Draft(ctx, u.ID)
	require.NoError(t, err)
	require.NoError(t, notes.Save(ctx, newer.ID, "Newer", "b", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), nil))

	// Open draft, must not appear.
	_, err = notes.Draft(ctx, u.ID)
	require.NoError(t, err)

	summaries, err := notes.List(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "Newer", *summaries[0].Title)
	assert.Equal(t, "Older", *summaries[1].Title)
}

func TestDeleteCascadesToChunks(t *testing.T) {
	notes, users, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	u, err := users.Create(ctx, "alice")
	require.NoError(t, err)
	draft, err := notes.Draft(ctx, u.ID)
	require.NoError(t, err)
	require.NoError(t, notes.Save(ctx, draft.ID, "Doomed", "content", time.Now().UTC(), testChunks(4)))

	require.NoError(t, notes.Delete(ctx, u.ID, draft.ID))

	_, err = notes.Get(ctx, u.ID, draft.ID)
	assert.True(t, errors.Is(err, fault.ErrNotFound))

	count, err := notes.CountChunks(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDeleteScopedToOwner(t *testing.T) {
	notes, users, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	alice, err := users.Create(ctx, "alice")
	require.NoError(t, err)
	bob, err := users.Create(ctx, "bob")
	require.NoError(t, err)

	draft, err := notes.Draft(ctx, alice.ID)
	require.NoError(t, err)
	require.NoError(t, notes.Save(ctx, draft.ID, "Private", "content", time.Now().UTC(), nil))

	err = notes.Delete(ctx, bob.ID, draft.ID)
	assert.True(t, errors.Is(err, fault.ErrNotFound), "another user's note must look like it does not exist")
}
