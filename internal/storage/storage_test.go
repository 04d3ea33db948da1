package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCreateJob(t *testing.T) {
	local, err := NewLocal(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)

	dirs, err := local.CreateJob()
	require.NoError(t, err)

	assert.NotEmpty(t, dirs.JobID)
	assert.DirExists(t, dirs.InDir)
	assert.DirExists(t, dirs.OutDir)
	assert.Equal(t, dirs, local.Job(dirs.JobID))

	require.NoError(t, local.Remove(dirs.Dir))
	assert.NoDirExists(t, dirs.Dir)
	require.NoError(t, local.Remove(dirs.Dir))
}

func TestLocalJobRejectsTraversal(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	dirs := local.Job("../../etc")
	assert.Equal(t, filepath.Join(local.Root(), "etc"), dirs.Dir)
}

func TestLocalExpireAfter(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	dirs, err := local.CreateJob()
	require.NoError(t, err)

	local.ExpireAfter(dirs.Dir, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dirs.Dir)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)
}

type fakeS3 struct {
	key  string
	body []byte
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.key = *in.Key
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://bucket.example/" + *in.Key + "?sig=1"}, nil
}

func TestS3PublisherPublish(t *testing.T) {
	fake := &fakeS3{}
	pub := &S3Publisher{bucket: "books", prefix: "jobs", expires: time.Minute, client: fake, presign: fake}

	path := filepath.Join(t.TempDir(), "storybook.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o640))

	url, err := pub.Publish(context.Background(), "job-1", "storybook.pdf", path, "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, "jobs/job-1/storybook.pdf", fake.key)
	assert.Equal(t, []byte("%PDF"), fake.body)
	assert.Equal(t, "https://bucket.example/jobs/job-1/storybook.pdf?sig=1", url)
}

// 実クライアントが差し替え用インターフェースを満たすこと
var (
	_ s3API      = (*s3.Client)(nil)
	_ presignAPI = (*s3.PresignClient)(nil)
)

func TestNewS3PublisherRequiresBucket(t *testing.T) {
	_, err := NewS3Publisher(context.Background(), "us-east-1", "", time.Minute)
	assert.Error(t, err)
}

func TestNewS3PublisherWiresClients(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))

	pub, err := NewS3Publisher(context.Background(), "us-east-1", "books", time.Minute)
	require.NoError(t, err)

	_, ok := pub.presign.(*s3.PresignClient)
	assert.True(t, ok)
	assert.Equal(t, "jobs", pub.prefix)
}
