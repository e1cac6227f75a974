package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/imgcdn/internal/cloudinary"
	"git.home.luguber.info/inful/imgcdn/internal/journal"
)

type fakeUploader struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeUploader) Upload(_ context.Context, localPath, _ string) (*cloudinary.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, localPath)
	if err, ok := f.fail[localPath]; ok {
		return nil, err
	}
	return &cloudinary.UploadResult{
		PublicID:  "images/x",
		SecureURL: "https://res.cloudinary.com/demo/image/upload/v1/images/x.jpg",
	}, nil
}

func (f *fakeUploader) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestEnqueue_ProcessesInBackground(t *testing.T) {
	up := &fakeUploader{}
	q := New(up, 2, Options{})
	defer q.Close()

	require.NoError(t, q.Enqueue(Job{LocalPath: "/img/a.jpg", Folder: "images", PredictedURL: "u"}))
	require.NoError(t, q.Enqueue(Job{LocalPath: "/img/b.jpg", Folder: "images", PredictedURL: "u"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	failed, err := q.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, failed)
	require.ElementsMatch(t, []string{"/img/a.jpg", "/img/b.jpg"}, up.uploaded())
}

func TestDrain_ReportsFailures(t *testing.T) {
	up := &fakeUploader{fail: map[string]error{"/img/bad.jpg": errors.New("boom")}}
	q := New(up, 1, Options{})
	defer q.Close()

	require.NoError(t, q.Enqueue(Job{LocalPath: "/img/bad.jpg", PredictedURL: "u"}))
	require.NoError(t, q.Enqueue(Job{LocalPath: "/img/ok.jpg", PredictedURL: "u"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	failed, err := q.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, failed)
}

func TestEnqueue_AfterClose_Fails(t *testing.T) {
	q := New(&fakeUploader{}, 1, Options{})
	q.Close()
	require.Error(t, q.Enqueue(Job{LocalPath: "/img/a.jpg"}))
}

func TestEnqueue_FullQueue_Fails(t *testing.T) {
	block := make(chan struct{})
	up := &blockingUploader{release: block}
	up.started.Add(1)
	q := New(up, 1, Options{MaxSize: 1})
	defer func() {
		close(block)
		q.Close()
	}()

	// First job occupies the worker, second fills the buffer; the third
	// must be rejected rather than block the caller.
	require.NoError(t, q.Enqueue(Job{LocalPath: "a"}))
	up.started.Wait()
	require.NoError(t, q.Enqueue(Job{LocalPath: "b"}))
	require.Error(t, q.Enqueue(Job{LocalPath: "c"}))
}

func TestJournal_RecordsAttempts(t *testing.T) {
	j, err := journal.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	up := &fakeUploader{fail: map[string]error{"/img/bad.jpg": errors.New("boom")}}
	q := New(up, 1, Options{Journal: j})
	defer q.Close()

	require.NoError(t, q.Enqueue(Job{LocalPath: "/img/bad.jpg", PredictedURL: "https://cdn/bad.jpg"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = q.Drain(ctx)
	require.NoError(t, err)

	failures, err := j.Failures(context.Background())
	require.NoError(t, err)
	require.Len(t, failures, 1)
	require.Equal(t, "https://cdn/bad.jpg", failures[0].PredictedURL)
}

type blockingUploader struct {
	started sync.WaitGroup
	release chan struct{}
	once    sync.Once
}

func (b *blockingUploader) Upload(context.Context, string, string) (*cloudinary.UploadResult, error) {
	b.once.Do(b.started.Done)
	<-b.release
	return &cloudinary.UploadResult{}, nil
}
