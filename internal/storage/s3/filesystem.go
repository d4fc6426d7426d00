package s3

import (
	"context"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/objstore/s3vfs/pkg/objferr"
	"github.com/objstore/s3vfs/pkg/objfspath"
)

// Stat describes one object or directory marker.
type Stat struct {
	Length      int64
	IsDirectory bool
	ModTimeNs   int64
}

// DirEntry is one entry returned by List: either a common prefix (a
// subdirectory) or a content key (a file), both already stripped of the
// listed directory's own prefix.
type DirEntry struct {
	Name  string
	IsDir bool
}

// Filesystem implements the twelve façade operations directly against one
// or more buckets, memoizing a ClientProvider per bucket.
type Filesystem struct {
	mu        sync.Mutex
	providers map[string]*ClientProvider
}

// NewFilesystem constructs an empty façade; bucket-scoped client providers
// are created lazily on first use.
func NewFilesystem() *Filesystem {
	return &Filesystem{providers: make(map[string]*ClientProvider)}
}

func (fs *Filesystem) provider(bucket string) *ClientProvider {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if p, ok := fs.providers[bucket]; ok {
		return p
	}
	p := NewClientProvider(bucket, nil)
	fs.providers[bucket] = p
	return p
}

// OpenRead returns a reader bound to path. No network I/O happens here.
func (fs *Filesystem) OpenRead(ctx context.Context, path string) (*Reader, error) {
	p, err := objfspath.Parse(path, false)
	if err != nil {
		return nil, err
	}
	return NewReader(p.Bucket, p.Key, fs.provider(p.Bucket)), nil
}

// OpenWrite returns a fresh writable file bound to path.
func (fs *Filesystem) OpenWrite(ctx context.Context, path string) (*Writer, error) {
	p, err := objfspath.Parse(path, false)
	if err != nil {
		return nil, err
	}
	return NewWriter(p.Bucket, p.Key, fs.provider(p.Bucket))
}

// OpenAppend opens a writer seeded with the existing object's bytes, read
// in ReadAppendChunkSize chunks until a read returns OutOfRange or comes
// back shorter than a full chunk.
func (fs *Filesystem) OpenAppend(ctx context.Context, path string) (*Writer, error) {
	p, err := objfspath.Parse(path, false)
	if err != nil {
		return nil, err
	}
	provider := fs.provider(p.Bucket)
	reader := NewReader(p.Bucket, p.Key, provider)
	writer, err := NewWriter(p.Bucket, p.Key, provider)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, ReadAppendChunkSize)
	var offset int64
	for {
		n, err := reader.Read(ctx, offset, buf)
		if err != nil {
			if objferr.KindOf(err) == objferr.OutOfRange {
				break
			}
			_ = writer.Close(ctx)
			return nil, err
		}
		if n == 0 {
			break
		}
		if err := writer.Append(buf[:n]); err != nil {
			_ = writer.Close(ctx)
			return nil, err
		}
		offset += int64(n)
		if n < len(buf) {
			break
		}
	}
	return writer, nil
}

// ReadRegion reads the whole object into a freshly allocated buffer.
func (fs *Filesystem) ReadRegion(ctx context.Context, path string) ([]byte, error) {
	st, err := fs.Stat(ctx, path)
	if err != nil {
		return nil, err
	}
	p, err := objfspath.Parse(path, false)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, st.Length)
	reader := NewReader(p.Bucket, p.Key, fs.provider(p.Bucket))
	if _, err := reader.Read(ctx, 0, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Exists reports whether path resolves to an object or directory marker.
func (fs *Filesystem) Exists(ctx context.Context, path string) (bool, error) {
	_, err := fs.Stat(ctx, path)
	if err == nil {
		return true, nil
	}
	if objferr.KindOf(err) == objferr.NotFound {
		return false, nil
	}
	return false, err
}

// Stat implements the §4.5.1 algorithm: HeadBucket for an empty key,
// HeadObject plus a directory-marker-override ListObjects otherwise.
func (fs *Filesystem) Stat(ctx context.Context, path string) (Stat, error) {
	p, err := objfspath.Parse(path, true)
	if err != nil {
		return Stat{}, err
	}
	client, err := fs.provider(p.Bucket).Client(ctx)
	if err != nil {
		return Stat{}, err
	}

	if p.Key == "" {
		if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.Bucket)}); err != nil {
			return Stat{}, objferr.Wrap(objferr.Unknown, "stat", "HeadBucket failed", err)
		}
		return Stat{Length: 0, IsDirectory: true, ModTimeNs: 0}, nil
	}

	var (
		found bool
		st    Stat
	)
	if head, err := client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(p.Bucket), Key: aws.String(p.Key)}); err == nil {
		found = true
		st = Stat{
			Length:      aws.ToInt64(head.ContentLength),
			IsDirectory: false,
			ModTimeNs:   aws.ToTime(head.LastModified).UnixNano(),
		}
	}

	listing, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.Bucket),
		Prefix:  aws.String(p.Key + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err == nil && len(listing.Contents) > 0 {
		found = true
		st = Stat{
			Length:      0,
			IsDirectory: true,
			ModTimeNs:   aws.ToTime(listing.Contents[0].LastModified).UnixNano(),
		}
	}

	if !found {
		return Stat{}, objferr.New(objferr.NotFound, "stat", "object does not exist: "+path)
	}
	return st, nil
}

// FileSize projects Stat's length.
func (fs *Filesystem) FileSize(ctx context.Context, path string) (int64, error) {
	st, err := fs.Stat(ctx, path)
	if err != nil {
		return 0, err
	}
	return st.Length, nil
}

// List implements §4.5's paginated directory listing.
func (fs *Filesystem) List(ctx context.Context, dir string) ([]DirEntry, error) {
	p, err := objfspath.Parse(dir, true)
	if err != nil {
		return nil, err
	}
	prefix := p.Key
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	client, err := fs.provider(p.Bucket).Client(ctx)
	if err != nil {
		return nil, err
	}

	var entries []DirEntry
	var marker *string
	for {
		out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(p.Bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			MaxKeys:           aws.Int32(ListPageSize),
			ContinuationToken: marker,
		})
		if err != nil {
			return nil, objferr.Wrap(objferr.Unknown, "list", "ListObjectsV2 failed", err)
		}

		for _, cp := range out.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if name != "" {
				entries = append(entries, DirEntry{Name: name, IsDir: true})
			}
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name != "" {
				entries = append(entries, DirEntry{Name: name, IsDir: false})
			}
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		marker = out.NextContinuationToken
	}
	return entries, nil
}

// DeleteFile removes one object.
func (fs *Filesystem) DeleteFile(ctx context.Context, path string) error {
	p, err := objfspath.Parse(path, false)
	if err != nil {
		return err
	}
	client, err := fs.provider(p.Bucket).Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(p.Bucket), Key: aws.String(p.Key)})
	if err != nil {
		return objferr.Wrap(objferr.Unknown, "delete_file", "DeleteObject failed", err)
	}
	return nil
}

// CreateDir verifies the bucket, or writes an empty directory marker.
func (fs *Filesystem) CreateDir(ctx context.Context, path string) error {
	p, err := objfspath.Parse(path, true)
	if err != nil {
		return err
	}
	if p.Key == "" {
		client, err := fs.provider(p.Bucket).Client(ctx)
		if err != nil {
			return err
		}
		if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.Bucket)}); err != nil {
			return objferr.Wrap(objferr.NotFound, "create_dir", "bucket does not exist: "+p.Bucket, err)
		}
		return nil
	}

	key := p.Key
	if !strings.HasSuffix(key, "/") {
		key += "/"
	}
	markerPath := objfspath.Path{Bucket: p.Bucket, Key: key}.String()

	exists, err := fs.Exists(ctx, markerPath)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	writer, err := fs.OpenWrite(ctx, markerPath)
	if err != nil {
		return err
	}
	return writer.Close(ctx)
}

// DeleteDir implements §4.5's non-empty check: a non-matching content key
// fails with a retriable Internal error by design, so the retry envelope
// keeps polling until eventually-consistent listings drain.
func (fs *Filesystem) DeleteDir(ctx context.Context, path string) error {
	p, err := objfspath.Parse(path, true)
	if err != nil {
		return err
	}
	prefix := p.Key
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	client, err := fs.provider(p.Bucket).Client(ctx)
	if err != nil {
		return err
	}

	out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.Bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(2),
	})
	if err != nil {
		return objferr.Wrap(objferr.Unknown, "delete_dir", "ListObjects failed", err)
	}

	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) != prefix {
			return objferr.New(objferr.Internal, "delete_dir", "Cannot delete a non-empty directory.")
		}
	}
	if len(out.Contents) == 0 {
		return nil
	}
	return fs.DeleteFile(ctx, objfspath.Path{Bucket: p.Bucket, Key: prefix}.String())
}

// Rename implements §4.5.2: paginated list, multipart server-side copy per
// object, then delete the source. No rollback on partial failure.
func (fs *Filesystem) Rename(ctx context.Context, src, tgt string) error {
	srcPath, err := objfspath.Parse(src, false)
	if err != nil {
		return err
	}
	tgtPath, err := objfspath.Parse(tgt, false)
	if err != nil {
		return err
	}

	srcKey, tgtKey := srcPath.Key, tgtPath.Key
	if strings.HasSuffix(srcKey, "/") && !strings.HasSuffix(tgtKey, "/") {
		tgtKey += "/"
	} else if !strings.HasSuffix(srcKey, "/") && strings.HasSuffix(tgtKey, "/") {
		tgtKey = strings.TrimSuffix(tgtKey, "/")
	}

	client, err := fs.provider(srcPath.Bucket).Client(ctx)
	if err != nil {
		return err
	}

	var marker *string
	for {
		out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(srcPath.Bucket),
			Prefix:            aws.String(srcKey),
			MaxKeys:           aws.Int32(ListPageSize),
			ContinuationToken: marker,
		})
		if err != nil {
			return objferr.Wrap(objferr.Unknown, "rename", "ListObjects failed", err)
		}

		for _, obj := range out.Contents {
			objKey := aws.ToString(obj.Key)
			objTgtKey := tgtKey + strings.TrimPrefix(objKey, srcKey)

			if err := multipartCopy(ctx, client, srcPath.Bucket, objKey, tgtPath.Bucket, objTgtKey, aws.ToInt64(obj.Size)); err != nil {
				return objferr.Wrap(objferr.Unknown, "rename", "copy failed for "+objKey, err)
			}
			if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(srcPath.Bucket), Key: aws.String(objKey)}); err != nil {
				return objferr.Wrap(objferr.Unknown, "rename", "failed to delete source after copy: "+objKey, err)
			}
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		marker = out.NextContinuationToken
	}
	return nil
}
