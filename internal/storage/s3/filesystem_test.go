package s3

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/objstore/s3vfs/pkg/objferr"
)

// fakeS3 is a function-field stand-in for s3API: each test sets only the
// methods its scenario exercises, and unset methods panic with a
// "not stubbed" message rather than a nil dereference, except
// AbortMultipartUpload, which succeeds when unset.
type fakeS3 struct {
	headBucketFn        func(context.Context, *s3.HeadBucketInput) (*s3.HeadBucketOutput, error)
	headObjectFn        func(context.Context, *s3.HeadObjectInput) (*s3.HeadObjectOutput, error)
	listObjectsV2Fn     func(context.Context, *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error)
	deleteObjectFn      func(context.Context, *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error)
	getObjectFn         func(context.Context, *s3.GetObjectInput) (*s3.GetObjectOutput, error)
	createMultipartFn   func(context.Context, *s3.CreateMultipartUploadInput) (*s3.CreateMultipartUploadOutput, error)
	uploadPartCopyFn    func(context.Context, *s3.UploadPartCopyInput) (*s3.UploadPartCopyOutput, error)
	completeMultipartFn func(context.Context, *s3.CompleteMultipartUploadInput) (*s3.CompleteMultipartUploadOutput, error)
	abortMultipartFn    func(context.Context, *s3.AbortMultipartUploadInput) (*s3.AbortMultipartUploadOutput, error)
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headBucketFn == nil {
		panic("fakeS3: HeadBucket not stubbed")
	}
	return f.headBucketFn(ctx, in)
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headObjectFn == nil {
		panic("fakeS3: HeadObject not stubbed")
	}
	return f.headObjectFn(ctx, in)
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listObjectsV2Fn == nil {
		panic("fakeS3: ListObjectsV2 not stubbed")
	}
	return f.listObjectsV2Fn(ctx, in)
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteObjectFn == nil {
		panic("fakeS3: DeleteObject not stubbed")
	}
	return f.deleteObjectFn(ctx, in)
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getObjectFn == nil {
		panic("fakeS3: GetObject not stubbed")
	}
	return f.getObjectFn(ctx, in)
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	if f.createMultipartFn == nil {
		panic("fakeS3: CreateMultipartUpload not stubbed")
	}
	return f.createMultipartFn(ctx, in)
}

func (f *fakeS3) UploadPartCopy(ctx context.Context, in *s3.UploadPartCopyInput, _ ...func(*s3.Options)) (*s3.UploadPartCopyOutput, error) {
	if f.uploadPartCopyFn == nil {
		panic("fakeS3: UploadPartCopy not stubbed")
	}
	return f.uploadPartCopyFn(ctx, in)
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	if f.completeMultipartFn == nil {
		panic("fakeS3: CompleteMultipartUpload not stubbed")
	}
	return f.completeMultipartFn(ctx, in)
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	if f.abortMultipartFn == nil {
		return &s3.AbortMultipartUploadOutput{}, nil
	}
	return f.abortMultipartFn(ctx, in)
}

func newTestFilesystem(bucket string, fake *fakeS3) *Filesystem {
	fs := NewFilesystem()
	fs.providers[bucket] = newClientProviderWithClient(bucket, fake)
	return fs
}

var errBoom = errors.New("boom")

func TestStat_EmptyKeyHitsBucket(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{
		headBucketFn: func(context.Context, *s3.HeadBucketInput) (*s3.HeadBucketOutput, error) {
			return &s3.HeadBucketOutput{}, nil
		},
	}
	fs := newTestFilesystem("bucket", fake)

	st, err := fs.Stat(context.Background(), "s3://bucket/")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !st.IsDirectory {
		t.Error("Stat() on an empty key should report a directory")
	}
}

func TestStat_ObjectOnly(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{
		headObjectFn: func(context.Context, *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return &s3.HeadObjectOutput{ContentLength: aws.Int64(42)}, nil
		},
		listObjectsV2Fn: func(context.Context, *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
			return &s3.ListObjectsV2Output{}, nil
		},
	}
	fs := newTestFilesystem("bucket", fake)

	st, err := fs.Stat(context.Background(), "s3://bucket/file.txt")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if st.IsDirectory || st.Length != 42 {
		t.Errorf("Stat() = %+v, want a 42-byte file", st)
	}
}

func TestStat_DirectoryMarkerOverridesSameNamedObject(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{
		headObjectFn: func(context.Context, *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return &s3.HeadObjectOutput{ContentLength: aws.Int64(42)}, nil
		},
		// A directory marker exists alongside the same-named object key.
		listObjectsV2Fn: func(context.Context, *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
			return &s3.ListObjectsV2Output{Contents: contentsOf("dir/")}, nil
		},
	}
	fs := newTestFilesystem("bucket", fake)

	st, err := fs.Stat(context.Background(), "s3://bucket/dir")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !st.IsDirectory {
		t.Error("directory marker should win over a same-named object")
	}
}

func TestStat_NeitherFoundIsNotFound(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{
		headObjectFn: func(context.Context, *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return nil, errBoom
		},
		listObjectsV2Fn: func(context.Context, *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
			return &s3.ListObjectsV2Output{}, nil
		},
	}
	fs := newTestFilesystem("bucket", fake)

	_, err := fs.Stat(context.Background(), "s3://bucket/missing")
	if objferr.KindOf(err) != objferr.NotFound {
		t.Errorf("Stat() on a missing key = %v, want NotFound", err)
	}
}

func TestCreateDir_EmptyKeyMissingBucketIsNotFound(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{
		headBucketFn: func(context.Context, *s3.HeadBucketInput) (*s3.HeadBucketOutput, error) {
			return nil, errBoom
		},
	}
	fs := newTestFilesystem("bucket", fake)

	err := fs.CreateDir(context.Background(), "s3://bucket/")
	if objferr.KindOf(err) != objferr.NotFound {
		t.Errorf("CreateDir() on a missing bucket = %v, want NotFound", err)
	}
}

func TestCreateDir_EmptyKeyExistingBucketSucceeds(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{
		headBucketFn: func(context.Context, *s3.HeadBucketInput) (*s3.HeadBucketOutput, error) {
			return &s3.HeadBucketOutput{}, nil
		},
	}
	fs := newTestFilesystem("bucket", fake)

	if err := fs.CreateDir(context.Background(), "s3://bucket/"); err != nil {
		t.Errorf("CreateDir() on an existing bucket = %v, want nil", err)
	}
}

func TestList_PaginatesAndStripsPrefix(t *testing.T) {
	t.Parallel()

	calls := 0
	fake := &fakeS3{
		listObjectsV2Fn: func(_ context.Context, in *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
			calls++
			if calls == 1 {
				return &s3.ListObjectsV2Output{
					Contents:              contentsOf("dir/a.txt"),
					IsTruncated:           aws.Bool(true),
					NextContinuationToken: aws.String("page2"),
				}, nil
			}
			return &s3.ListObjectsV2Output{Contents: contentsOf("dir/b.txt")}, nil
		},
	}
	fs := newTestFilesystem("bucket", fake)

	entries, err := fs.List(context.Background(), "s3://bucket/dir")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("List() made %d ListObjectsV2 calls, want 2", calls)
	}
	if len(entries) != 2 || entries[0].Name != "a.txt" || entries[1].Name != "b.txt" {
		t.Errorf("List() = %+v, want [a.txt b.txt] with prefix stripped", entries)
	}
}

func TestDeleteDir_NonEmptyFailsWithInternal(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{
		listObjectsV2Fn: func(context.Context, *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
			return &s3.ListObjectsV2Output{Contents: contentsOf("dir/", "dir/file.txt")}, nil
		},
	}
	fs := newTestFilesystem("bucket", fake)

	err := fs.DeleteDir(context.Background(), "s3://bucket/dir")
	if objferr.KindOf(err) != objferr.Internal {
		t.Errorf("DeleteDir() on a non-empty directory = %v, want Internal", err)
	}
}

func TestDeleteDir_ExactMarkerMatchDeletes(t *testing.T) {
	t.Parallel()

	var deletedKey string
	fake := &fakeS3{
		listObjectsV2Fn: func(context.Context, *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
			return &s3.ListObjectsV2Output{Contents: contentsOf("dir/")}, nil
		},
		deleteObjectFn: func(_ context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
			deletedKey = aws.ToString(in.Key)
			return &s3.DeleteObjectOutput{}, nil
		},
	}
	fs := newTestFilesystem("bucket", fake)

	if err := fs.DeleteDir(context.Background(), "s3://bucket/dir"); err != nil {
		t.Fatalf("DeleteDir() error = %v", err)
	}
	if deletedKey != "dir/" {
		t.Errorf("deleted key = %q, want %q", deletedKey, "dir/")
	}
}

func TestDeleteDir_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{
		listObjectsV2Fn: func(context.Context, *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
			return &s3.ListObjectsV2Output{}, nil
		},
	}
	fs := newTestFilesystem("bucket", fake)

	if err := fs.DeleteDir(context.Background(), "s3://bucket/dir"); err != nil {
		t.Errorf("DeleteDir() on an empty directory = %v, want nil", err)
	}
}

func TestRename_NormalizesTrailingSlashFromSource(t *testing.T) {
	t.Parallel()

	var copiedTo, deletedKey string
	fake := &fakeS3{
		listObjectsV2Fn: func(context.Context, *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
			return &s3.ListObjectsV2Output{Contents: contentsOf("src/")}, nil
		},
		createMultipartFn: func(_ context.Context, in *s3.CreateMultipartUploadInput) (*s3.CreateMultipartUploadOutput, error) {
			copiedTo = aws.ToString(in.Key)
			return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
		},
		uploadPartCopyFn: func(context.Context, *s3.UploadPartCopyInput) (*s3.UploadPartCopyOutput, error) {
			return &s3.UploadPartCopyOutput{CopyPartResult: &s3types.CopyPartResult{ETag: aws.String("etag-1")}}, nil
		},
		completeMultipartFn: func(context.Context, *s3.CompleteMultipartUploadInput) (*s3.CompleteMultipartUploadOutput, error) {
			return &s3.CompleteMultipartUploadOutput{}, nil
		},
		deleteObjectFn: func(_ context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
			deletedKey = aws.ToString(in.Key)
			return &s3.DeleteObjectOutput{}, nil
		},
	}
	fs := newTestFilesystem("bucket", fake)

	err := fs.Rename(context.Background(), "s3://bucket/src/", "s3://bucket/tgt")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if copiedTo != "tgt/" {
		t.Errorf("Rename() copied to key %q, want %q (trailing slash carried from source)", copiedTo, "tgt/")
	}
	if deletedKey != "src/" {
		t.Errorf("Rename() deleted source key %q, want %q", deletedKey, "src/")
	}
}

func contentsOf(keys ...string) []s3types.Object {
	out := make([]s3types.Object, 0, len(keys))
	for _, k := range keys {
		out = append(out, s3types.Object{Key: aws.String(k)})
	}
	return out
}
