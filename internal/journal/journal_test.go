package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordAndList(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	ctx := context.Background()
	require.NoError(t, j.Record(ctx, Entry{
		LocalPath:    "/site/src/images/a.jpg",
		Folder:       "images",
		PredictedURL: "https://res.cloudinary.com/demo/image/upload/f_auto,q_auto/images/a.jpg",
		ActualURL:    "https://res.cloudinary.com/demo/image/upload/v1/images/a.jpg",
		Outcome:      OutcomeUploaded,
	}))
	require.NoError(t, j.Record(ctx, Entry{
		LocalPath:    "/site/src/images/b.jpg",
		Folder:       "images",
		PredictedURL: "https://res.cloudinary.com/demo/image/upload/f_auto,q_auto/images/b.jpg",
		Outcome:      OutcomeFailed,
		Error:        "upload failed with status 401",
	}))

	entries, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotEmpty(t, entries[0].ID)
	require.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestFailures_ReturnsOnlyDanglingUploads(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	ctx := context.Background()
	require.NoError(t, j.Record(ctx, Entry{LocalPath: "a.jpg", PredictedURL: "u1", Outcome: OutcomeUploaded}))
	require.NoError(t, j.Record(ctx, Entry{LocalPath: "b.jpg", PredictedURL: "u2", Outcome: OutcomeFailed, Error: "timeout"}))

	failures, err := j.Failures(ctx)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	require.Equal(t, "b.jpg", failures[0].LocalPath)
	require.Equal(t, "timeout", failures[0].Error)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uploads.db")

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), Entry{LocalPath: "a.jpg", PredictedURL: "u", Outcome: OutcomeUploaded}))
	require.NoError(t, j.Close())

	j2, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = j2.Close() }()

	entries, err := j2.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
