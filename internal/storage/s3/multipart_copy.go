package s3

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/objstore/s3vfs/pkg/objferr"
)

// multipartCopy copies an object server-side via CreateMultipartUpload /
// UploadPartCopy / CompleteMultipartUpload, splitting it into
// MultipartPartSize parts. Unlike the reference implementation this fixes two defects: the
// part count is rounded up (not down), and PartNumber is indexed from 1
// (S3 rejects 0), not 0.
func multipartCopy(ctx context.Context, client s3API, srcBucket, srcKey string, tgtBucket, tgtKey string, length int64) error {
	partCount := (length + MultipartPartSize - 1) / MultipartPartSize
	if partCount == 0 {
		partCount = 1
	}

	created, err := client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(tgtBucket),
		Key:    aws.String(tgtKey),
	})
	if err != nil {
		return objferr.Wrap(objferr.Unknown, "multipart_copy", "CreateMultipartUpload failed", err)
	}
	uploadID := aws.ToString(created.UploadId)

	copySource := srcBucket + "/" + urlEncodeKey(srcKey)

	completed := make([]s3types.CompletedPart, 0, partCount)
	for i := int64(1); i <= partCount; i++ {
		start := (i - 1) * MultipartPartSize
		end := start + MultipartPartSize - 1
		if end > length-1 {
			end = length - 1
		}

		etag, err := uploadPartCopyWithRetries(ctx, client, copySource, tgtBucket, tgtKey, uploadID, int32(i), start, end)
		if err != nil {
			abortMultipartUpload(ctx, client, tgtBucket, tgtKey, uploadID)
			return objferr.Wrap(objferr.Unknown, "multipart_copy", fmt.Sprintf("part %d failed", i), err)
		}
		completed = append(completed, s3types.CompletedPart{
			ETag:       aws.String(etag),
			PartNumber: aws.Int32(int32(i)),
		})
	}

	_, err = client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(tgtBucket),
		Key:             aws.String(tgtKey),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		abortMultipartUpload(ctx, client, tgtBucket, tgtKey, uploadID)
		return objferr.Wrap(objferr.Unknown, "multipart_copy", "CompleteMultipartUpload failed", err)
	}
	return nil
}

// uploadPartCopyWithRetries makes up to PartCopyRetries attempts at a
// single part, with no backoff, before escalating to failure.
func uploadPartCopyWithRetries(ctx context.Context, client s3API, copySource, tgtBucket, tgtKey, uploadID string, partNumber int32, start, end int64) (string, error) {
	var lastErr error
	for attempt := 0; attempt < PartCopyRetries; attempt++ {
		result, err := client.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
			Bucket:          aws.String(tgtBucket),
			Key:             aws.String(tgtKey),
			UploadId:        aws.String(uploadID),
			PartNumber:      aws.Int32(partNumber),
			CopySource:      aws.String(copySource),
			CopySourceRange: aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
		})
		if err == nil {
			return aws.ToString(result.CopyPartResult.ETag), nil
		}
		lastErr = err
	}
	return "", lastErr
}

func abortMultipartUpload(ctx context.Context, client s3API, bucket, key, uploadID string) {
	_, _ = client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
}

// urlEncodeKey percent-encodes a key for use as a copy-source header,
// segment by segment so that '/' remains a literal separator.
func urlEncodeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		// QueryEscape encodes space as '+'; S3 expects '%20' like the rest
		// of the AWS SDK's URL encoding.
		segments[i] = strings.ReplaceAll(url.QueryEscape(seg), "+", "%20")
	}
	return strings.Join(segments, "/")
}
