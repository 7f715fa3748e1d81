package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/tagsync/store"
)

func sampleRecords() []*store.TransferRecord {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*store.TransferRecord{
		{ID: "a", Tag: "celeste", State: store.StateCompleted, Percent: 100, StartedAt: start, EndedAt: start.Add(time.Minute)},
		{ID: "b", Tag: "hades", State: store.StateFailed, Percent: 40, ExitCode: 23, Error: "exit code 23", StartedAt: start},
	}
}

func TestExportName(t *testing.T) {
	at := time.Date(2026, 3, 1, 14, 5, 9, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "tagsync-history-20260301T130509Z.json", ExportName(at))
}

func TestExport_Local(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	a := NewLocalArchiver(dir)

	loc, err := Export(context.Background(), a, "history.json", sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "history.json"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)

	var got []store.TransferRecord
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "celeste", got[0].Tag)
	assert.Equal(t, store.StateFailed, got[1].State)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be renamed away")
}

func TestExport_EmptyHistoryIsArray(t *testing.T) {
	dir := t.TempDir()
	loc, err := Export(context.Background(), NewLocalArchiver(dir), "empty.json", nil)
	require.NoError(t, err)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestLocalArchiver_StaysInsideBase(t *testing.T) {
	dir := t.TempDir()
	a := NewLocalArchiver(dir)
	assert.Equal(t, filepath.Join(dir, "etc", "passwd"), a.Location("../../etc/passwd"))
}

func TestLocalArchiver_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocalArchiver(t.TempDir()).OpenWrite(ctx, "x.json")
	assert.ErrorIs(t, err, context.Canceled)
}

type failingWriter struct{ aborted bool }

func (w *failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }
func (w *failingWriter) Close() error               { return errors.New("close must not be called") }
func (w *failingWriter) Abort(error)                { w.aborted = true }

type failingArchiver struct{ w *failingWriter }

func (a failingArchiver) OpenWrite(context.Context, string) (io.WriteCloser, error) { return a.w, nil }
func (a failingArchiver) Location(name string) string                               { return name }

func TestExport_AbortsOnWriteFailure(t *testing.T) {
	w := &failingWriter{}
	_, err := Export(context.Background(), failingArchiver{w}, "x.json", sampleRecords())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, w.aborted)
}

type fakeUploader struct {
	mu     sync.Mutex
	bucket string
	key    string
	body   []byte
	err    error
}

func (f *fakeUploader) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, readErr := io.ReadAll(in.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.body = data
	if readErr != nil {
		return nil, readErr
	}
	if f.err != nil {
		return nil, f.err
	}
	return &manager.UploadOutput{}, nil
}

func TestExport_S3(t *testing.T) {
	up := &fakeUploader{}
	a := &S3Archiver{bucket: "saves", prefix: "history/", uploader: up}

	loc, err := Export(context.Background(), a, "h.json", sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, "s3://saves/history/h.json", loc)

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Equal(t, "saves", up.bucket)
	assert.Equal(t, "history/h.json", up.key)
	assert.True(t, bytes.HasPrefix(up.body, []byte("[\n")))
}

func TestExport_S3UploadFailure(t *testing.T) {
	a := &S3Archiver{bucket: "saves", uploader: &fakeUploader{err: errors.New("access denied")}}

	_, err := Export(context.Background(), a, "h.json", sampleRecords())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestS3Archiver_BuildKey(t *testing.T) {
	tests := []struct {
		prefix string
		name   string
		expect string
	}{
		{"", "test.json", "test.json"},
		{"", "/test.json", "test.json"},
		{"myprefix", "test.json", "myprefix/test.json"},
		{"myprefix/", "test.json", "myprefix/test.json"},
		{"myprefix", "/test.json", "myprefix/test.json"},
		{"my/deep/prefix/", "/some/path.json", "my/deep/prefix/some/path.json"},
		{"", "", ""},
		{"myprefix", "", "myprefix"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix+"+"+tt.name, func(t *testing.T) {
			a := &S3Archiver{prefix: tt.prefix}
			actual := a.buildKey(tt.name)
			if actual != tt.expect {
				t.Errorf("buildKey(%q, %q) = %q; want %q", tt.prefix, tt.name, actual, tt.expect)
			}
		})
	}
}

func TestOpen_Targets(t *testing.T) {
	a, err := Open(context.Background(), t.TempDir(), "")
	require.NoError(t, err)
	assert.IsType(t, &LocalArchiver{}, a)

	_, err = Open(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = Open(context.Background(), "s3:///prefix", "")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}
