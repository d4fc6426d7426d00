//go:build s3_integration
// +build s3_integration

package tests

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/objstore/s3vfs/internal/filesystem"
)

// S3IntegrationSuite exercises the retrying façade against a real (or
// localstack-compatible) S3 endpoint named by OBJFS_TEST_BUCKET. It is
// gated behind the s3_integration build tag because it performs network
// I/O and billable requests.
type S3IntegrationSuite struct {
	suite.Suite
	ctx    context.Context
	fs     *filesystem.RetryingFilesystem
	bucket string
	prefix string
}

func (s *S3IntegrationSuite) SetupSuite() {
	s.bucket = os.Getenv("OBJFS_TEST_BUCKET")
	if s.bucket == "" {
		s.T().Skip("OBJFS_TEST_BUCKET not set, skipping S3 integration suite")
	}
	s.ctx = context.Background()
	s.fs = filesystem.NewS3Backend()
	s.prefix = fmt.Sprintf("s3vfs-integration-test/%d", os.Getpid())
}

func (s *S3IntegrationSuite) path(name string) string {
	return fmt.Sprintf("s3://%s/%s/%s", s.bucket, s.prefix, name)
}

func (s *S3IntegrationSuite) TearDownSuite() {
	if s.fs == nil {
		return
	}
	_ = s.fs.DeleteDir(s.ctx, s.path(""))
}

func (s *S3IntegrationSuite) TestWriteReadRoundTrip() {
	path := s.path("roundtrip.txt")
	w, err := s.fs.OpenWrite(s.ctx, path)
	require.NoError(s.T(), err)
	require.NoError(s.T(), w.Append([]byte("hello, world")))
	require.NoError(s.T(), w.Close(s.ctx))

	got, err := s.fs.ReadRegion(s.ctx, path)
	require.NoError(s.T(), err)
	require.Equal(s.T(), "hello, world", string(got))

	size, err := s.fs.FileSize(s.ctx, path)
	require.NoError(s.T(), err)
	require.Equal(s.T(), int64(len("hello, world")), size)
}

func (s *S3IntegrationSuite) TestRenameMovesObject() {
	src := s.path("rename-src.txt")
	tgt := s.path("rename-tgt.txt")

	w, err := s.fs.OpenWrite(s.ctx, src)
	require.NoError(s.T(), err)
	require.NoError(s.T(), w.Append([]byte("payload")))
	require.NoError(s.T(), w.Close(s.ctx))

	require.NoError(s.T(), s.fs.Rename(s.ctx, src, tgt))

	exists, err := s.fs.Exists(s.ctx, src)
	require.NoError(s.T(), err)
	require.False(s.T(), exists)

	got, err := s.fs.ReadRegion(s.ctx, tgt)
	require.NoError(s.T(), err)
	require.Equal(s.T(), "payload", string(got))
}

func (s *S3IntegrationSuite) TestListAndDeleteDir() {
	dir := s.path("listing")
	for _, name := range []string{"a.txt", "b.txt"} {
		w, err := s.fs.OpenWrite(s.ctx, dir+"/"+name)
		require.NoError(s.T(), err)
		require.NoError(s.T(), w.Append([]byte("x")))
		require.NoError(s.T(), w.Close(s.ctx))
	}

	entries, err := s.fs.List(s.ctx, dir)
	require.NoError(s.T(), err)
	require.Len(s.T(), entries, 2)

	require.Error(s.T(), s.fs.DeleteDir(s.ctx, dir))

	for _, name := range []string{"a.txt", "b.txt"} {
		require.NoError(s.T(), s.fs.DeleteFile(s.ctx, dir+"/"+name))
	}
	require.NoError(s.T(), s.fs.DeleteDir(s.ctx, dir))
}

func TestS3Integration(t *testing.T) {
	suite.Run(t, new(S3IntegrationSuite))
}
