// Package objfspath parses s3:// URIs into a bucket and key pair.
package objfspath

import (
	"fmt"
	"strings"

	"github.com/objstore/s3vfs/pkg/objferr"
)

// Path is a parsed s3://bucket/key address.
type Path struct {
	Bucket string
	Key    string
}

// String reconstructs the canonical s3:// form.
func (p Path) String() string {
	return "s3://" + p.Bucket + "/" + p.Key
}

// Parse splits path into (bucket, key). When allowEmptyKey is false, a path
// with no key (or a key that is empty once a single leading slash is
// stripped) is rejected. The scheme must be exactly "s3" and the bucket must
// be non-empty and not ".".
func Parse(path string, allowEmptyKey bool) (Path, error) {
	scheme, rest, ok := strings.Cut(path, "://")
	if !ok || scheme != "s3" {
		return Path{}, &objferr.Error{
			Kind:    objferr.InvalidArgument,
			Op:      "parse",
			Message: fmt.Sprintf("S3 path doesn't start with 's3://': %s", path),
		}
	}
	bucket, object, _ := strings.Cut(rest, "/")
	if bucket == "" || bucket == "." {
		return Path{}, &objferr.Error{
			Kind:    objferr.InvalidArgument,
			Op:      "parse",
			Message: fmt.Sprintf("S3 path doesn't contain a bucket name: %s", path),
		}
	}
	// Cut has already consumed the single '/' separating bucket and key;
	// any further leading slash belongs to the key.
	key := object
	if !allowEmptyKey && key == "" {
		return Path{}, &objferr.Error{
			Kind:    objferr.InvalidArgument,
			Op:      "parse",
			Message: fmt.Sprintf("S3 path doesn't contain an object name: %s", path),
		}
	}
	return Path{Bucket: bucket, Key: key}, nil
}
