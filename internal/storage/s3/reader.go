package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/objstore/s3vfs/pkg/objferr"
)

// Reader issues stateless ranged GETs against one (bucket, key). Opening a
// reader does no network I/O; every Read is a fresh request.
type Reader struct {
	bucket, key string
	provider    *ClientProvider
}

// NewReader binds a reader to an object without touching the network.
func NewReader(bucket, key string, provider *ClientProvider) *Reader {
	return &Reader{bucket: bucket, key: key, provider: provider}
}

// Read issues a single ranged GET for bytes [offset, offset+len(out)-1] and
// copies as much of the response body into out as is returned. The read may
// be shorter than len(out); callers must cope.
func (r *Reader) Read(ctx context.Context, offset int64, out []byte) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+int64(len(out))-1)
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		if isRangeNotSatisfiable(err) {
			return 0, objferr.Wrap(objferr.OutOfRange, "read", "range not satisfiable", err)
		}
		return 0, objferr.Wrap(objferr.Unknown, "read", "GetObject failed", err)
	}
	defer result.Body.Close()

	n, err := io.ReadFull(result.Body, out)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return n, objferr.Wrap(objferr.Unknown, "read", "failed reading response body", err)
	}
	return n, nil
}

// isRangeNotSatisfiable reports whether err corresponds to an HTTP 416
// response, S3's conventional end-of-file signal for a ranged GET.
func isRangeNotSatisfiable(err error) bool {
	var respErr *smithyhttp.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	return respErr.HTTPStatusCode() == 416
}
