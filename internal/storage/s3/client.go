// Package s3 implements the object-store client provider, the
// random-access reader, the writable file, and the filesystem façade that
// together make up the S3-backed virtual filesystem adapter.
package s3

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssdkconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/objstore/s3vfs/pkg/objferr"
)

// s3API is the subset of *s3.Client the façade and multipartCopy call.
// *s3.Client satisfies it structurally; tests substitute a fake.
type s3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPartCopy(ctx context.Context, params *s3.UploadPartCopyInput, optFns ...func(*s3.Options)) (*s3.UploadPartCopyOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// ClientProvider lazily constructs, and then memoizes, the path-style S3
// client and transfer executor shared by every operation against one
// bucket. Construction reads the environment exactly once via LoadConfig.
type ClientProvider struct {
	bucket string
	logger *slog.Logger

	mu          sync.Mutex
	client      s3API
	executor    *Executor
	transporter *cargoships3.Transporter
	buildErr    error
	built       bool
}

// NewClientProvider returns a provider for the given bucket. Nothing is
// constructed until the first call to Client, Executor, or Transporter.
func NewClientProvider(bucket string, logger *slog.Logger) *ClientProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientProvider{bucket: bucket, logger: logger}
}

// Client returns the memoized path-style-addressed S3 client, building it
// on first use.
func (cp *ClientProvider) Client(ctx context.Context) (s3API, error) {
	if err := cp.build(ctx); err != nil {
		return nil, err
	}
	return cp.client, nil
}

// Executor returns the memoized fixed-size transfer executor.
func (cp *ClientProvider) Executor(ctx context.Context) (*Executor, error) {
	if err := cp.build(ctx); err != nil {
		return nil, err
	}
	return cp.executor, nil
}

// Transporter returns the CargoShip multipart transfer manager bound to
// this provider's client and executor concurrency.
func (cp *ClientProvider) Transporter(ctx context.Context) (*cargoships3.Transporter, error) {
	if err := cp.build(ctx); err != nil {
		return nil, err
	}
	return cp.transporter, nil
}

func (cp *ClientProvider) build(ctx context.Context) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if cp.built {
		return cp.buildErr
	}
	cp.built = true

	cfg := LoadConfig()

	opts := []func(*awssdkconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awssdkconfig.WithRegion(cfg.Region))
	}
	if cfg.SharedConfigFile != "" {
		opts = append(opts, awssdkconfig.WithSharedConfigFiles([]string{cfg.SharedConfigFile}))
	}

	awsCfg, err := awssdkconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		cp.buildErr = objferr.Wrap(objferr.Unknown, "build_client", "failed to load AWS configuration", err)
		return cp.buildErr
	}

	httpClient, err := buildHTTPClient(cfg)
	if err != nil {
		cp.buildErr = objferr.Wrap(objferr.Unknown, "build_client", "failed to build HTTP client", err)
		return cp.buildErr
	}

	endpoint := endpointWithScheme(cfg.Endpoint, cfg.UseHTTPS)

	// Always path-style: bucket names containing dots break TLS hostname
	// validation under virtual-hosted addressing.
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
		o.HTTPClient = httpClient
	})

	executor := NewExecutor(ExecutorPoolSize)

	transporter := cargoships3.NewTransporter(client, awsconfig.S3Config{
		Bucket:             cp.bucket,
		MultipartThreshold: MultipartPartSize,
		MultipartChunkSize: MultipartPartSize,
		Concurrency:        executor.Size(),
	})

	cp.client = client
	cp.executor = executor
	cp.transporter = transporter
	cp.logger.Info("s3 client provider initialized",
		"bucket", cp.bucket,
		"region", cfg.Region,
		"endpoint", cfg.Endpoint,
		"executor_size", executor.Size())

	return nil
}

// endpointWithScheme prefixes a scheme-less custom endpoint with http:// or
// https:// per cfg.UseHTTPS (spec §6's S3_USE_HTTPS effect). An endpoint
// that already names a scheme is left untouched.
func endpointWithScheme(endpoint string, useHTTPS bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useHTTPS {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// buildHTTPClient constructs the http.Client used for every S3 request,
// honoring VerifySSL/CAFile/CAPath (TLS trust) and ConnectTimeout/
// RequestTimeout (dial and overall request deadlines) per spec §6.
func buildHTTPClient(cfg Config) (*http.Client, error) {
	tlsConfig := &tls.Config{}
	if !cfg.VerifySSL {
		tlsConfig.InsecureSkipVerify = true
	} else if cfg.CAFile != "" || cfg.CAPath != "" {
		pool, err := loadCAPool(cfg.CAFile, cfg.CAPath)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}

	dialer := &net.Dialer{}
	if cfg.ConnectTimeout > 0 {
		dialer.Timeout = cfg.ConnectTimeout
	}

	transport := &http.Transport{
		DialContext:     dialer.DialContext,
		TLSClientConfig: tlsConfig,
	}

	client := &http.Client{Transport: transport}
	if cfg.RequestTimeout > 0 {
		client.Timeout = cfg.RequestTimeout
	}
	return client, nil
}

// loadCAPool builds a certificate pool from an individual CA file and/or a
// directory of CA files, falling back to the system pool when neither
// yields anything.
func loadCAPool(caFile, caPath string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}

	if caFile != "" {
		data, err := os.ReadFile(caFile)
		if err != nil {
			return nil, objferr.Wrap(objferr.Unknown, "build_client", "failed to read CA file", err)
		}
		pool.AppendCertsFromPEM(data)
	}

	if caPath != "" {
		entries, err := os.ReadDir(caPath)
		if err != nil {
			return nil, objferr.Wrap(objferr.Unknown, "build_client", "failed to read CA directory", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			data, err := os.ReadFile(caPath + string(os.PathSeparator) + entry.Name())
			if err != nil {
				continue
			}
			pool.AppendCertsFromPEM(data)
		}
	}

	return pool, nil
}

// newClientProviderWithClient returns a provider whose Client(ctx) already
// resolves to client, skipping build entirely. Exists only for tests that
// need to substitute a fake s3API without touching the network.
func newClientProviderWithClient(bucket string, client s3API) *ClientProvider {
	return &ClientProvider{bucket: bucket, logger: slog.Default(), client: client, built: true}
}

// HealthCheck confirms the bucket is reachable with the provider's client.
func (cp *ClientProvider) HealthCheck(ctx context.Context) error {
	client, err := cp.Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cp.bucket)})
	if err != nil {
		return objferr.Wrap(objferr.Unavailable, "health_check", "HeadBucket failed", err)
	}
	return nil
}
