package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestLocal_Stat(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "clip.mp4", "hello")
	src := NewLocal(0)

	stat, err := src.Stat(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stat.Size)
	// sha256("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", stat.ContentHash)

	viaURI, err := src.Stat(context.Background(), "file://"+p)
	require.NoError(t, err)
	assert.Equal(t, stat.ContentHash, viaURI.ContentHash)
}

func TestLocal_StatRehashesOnChange(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "song.mp3", "one")
	src := NewLocal(8)
	ctx := context.Background()

	first, err := src.Stat(ctx, p)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte("two!"), 0644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(p, later, later))

	second, err := src.Stat(ctx, p)
	require.NoError(t, err)
	assert.NotEqual(t, first.ContentHash, second.ContentHash)
	assert.Equal(t, int64(4), second.Size)
}

func TestLocal_Errors(t *testing.T) {
	dir := t.TempDir()
	src := NewLocal(0)
	ctx := context.Background()

	_, err := src.Stat(ctx, filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = src.Stat(ctx, dir)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = src.Fetch(ctx, filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = src.Stat(cancelled, writeFile(t, dir, "a.png", "x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocal_Fetch(t *testing.T) {
	p := writeFile(t, t.TempDir(), "photo.jpg", "jpeg")
	path, release, err := NewLocal(0).Fetch(context.Background(), "file://"+p)
	require.NoError(t, err)
	assert.Equal(t, p, path)
	release()
	assert.FileExists(t, p, "local files are never removed")
}

// fakeS3 serves a single object.
type fakeS3 struct {
	bucket, key string
	body        string
	etag        string
	modified    time.Time
	err         error
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if aws.ToString(in.Bucket) != f.bucket || aws.ToString(in.Key) != f.key {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(f.body))),
		LastModified:  aws.Time(f.modified),
		ETag:          aws.String(`"` + f.etag + `"`),
	}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if aws.ToString(in.Bucket) != f.bucket || aws.ToString(in.Key) != f.key {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		bucket:   "media",
		key:      "videos/meeting.mp4",
		body:     "mp4 bytes",
		etag:     "abc123",
		modified: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestS3_Stat(t *testing.T) {
	src := NewS3WithClient(newFakeS3())

	stat, err := src.Stat(context.Background(), "s3://media/videos/meeting.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(9), stat.Size)
	assert.Equal(t, "abc123", stat.ContentHash)
	assert.True(t, stat.ModifiedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))

	_, err = src.Stat(context.Background(), "s3://media/other.mp4")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestS3_Fetch(t *testing.T) {
	src := NewS3WithClient(newFakeS3())

	path, release, err := src.Fetch(context.Background(), "s3://media/videos/meeting.mp4")
	require.NoError(t, err)
	assert.Equal(t, ".mp4", filepath.Ext(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mp4 bytes", string(data))

	release()
	assert.NoFileExists(t, path)
	release()

	_, _, err = src.Fetch(context.Background(), "s3://media/nope.mp4")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestS3_TransportErrorIsTransient(t *testing.T) {
	fake := newFakeS3()
	fake.err = errors.New("connection reset")
	src := NewS3WithClient(fake)

	_, err := src.Stat(context.Background(), "s3://media/videos/meeting.mp4")
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.True(t, domain.IsTransient(err))
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		key     string
		wantErr bool
	}{
		{uri: "s3://b/k.mp4", bucket: "b", key: "k.mp4"},
		{uri: "s3://b/dir/sub/k.mp3", bucket: "b", key: "dir/sub/k.mp3"},
		{uri: "s3://b", wantErr: true},
		{uri: "s3://b/", wantErr: true},
		{uri: "s3:///k.mp4", wantErr: true},
		{uri: "s3://b/dir/", wantErr: true},
		{uri: "/local/k.mp4", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, key, err := ParseS3URI(tt.uri)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestResolver(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "a.png", "png")
	r := NewResolver(map[string]driven.MediaSource{
		"file": NewLocal(0),
		"S3":   NewS3WithClient(newFakeS3()),
		"gs":   nil,
	})
	ctx := context.Background()

	_, err := r.Stat(ctx, p)
	assert.NoError(t, err)
	_, err = r.Stat(ctx, "file://"+p)
	assert.NoError(t, err)
	_, err = r.Stat(ctx, "s3://media/videos/meeting.mp4")
	assert.NoError(t, err)

	_, err = r.Stat(ctx, "gs://bucket/a.png")
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
	_, _, err = r.Fetch(ctx, "https://example.com/a.png")
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
}

func TestScheme(t *testing.T) {
	assert.Equal(t, "file", Scheme("/a/b.mp4"))
	assert.Equal(t, "file", Scheme("file:///a/b.mp4"))
	assert.Equal(t, "s3", Scheme("S3://b/k"))
	assert.Equal(t, "file", Scheme("://x"))
}
