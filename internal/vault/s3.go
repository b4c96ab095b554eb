package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"eni-go/internal/config"
	"eni-go/internal/eni"
)

const versionMetaKey = "eni-version"

// s3API is the subset of the S3 client used by S3Vault.
type s3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Vault stores snapshots in an S3 bucket. Objects live under
// <prefix>/metadata/<gatewayID>/<name> and carry their version as user
// metadata.
type S3Vault struct {
	name     string
	bucket   string
	prefix   string
	client   s3API
	uploader *manager.Uploader
}

// NewS3Vault creates an S3 vault from config. Static credentials are used
// when configured, otherwise the default AWS credential chain applies.
// A custom endpoint switches to path-style addressing for S3-compatible
// stores.
func NewS3Vault(ctx context.Context, cfg config.VaultConfig) (*S3Vault, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Vault(cfg.Name, cfg.S3Bucket, cfg.S3Prefix, client), nil
}

func newS3Vault(name, bucket, prefix string, client s3API) *S3Vault {
	return &S3Vault{
		name:     name,
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

func (v *S3Vault) key(gatewayID, name string) string {
	return path.Join(v.prefix, "metadata", gatewayID, name)
}

// PutMetadata uploads a named item for a gateway with its version.
func (v *S3Vault) PutMetadata(gatewayID string, name string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	_, err = v.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket:   aws.String(v.bucket),
		Key:      aws.String(v.key(gatewayID, name)),
		Body:     bytes.NewReader(data),
		Metadata: map[string]string{versionMetaKey: strconv.FormatInt(version, 10)},
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", v.key(gatewayID, name), err)
	}
	return nil
}

// GetMetadataVersion reads the version from the object's metadata.
// Returns 0 if the object does not exist.
func (v *S3Vault) GetMetadataVersion(gatewayID string, name string) (int64, error) {
	out, err := v.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(gatewayID, name)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading %s: %w", v.key(gatewayID, name), err)
	}

	raw, ok := out.Metadata[versionMetaKey]
	if !ok {
		return 0, nil
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// GetMetadata downloads a named item for a gateway and writes it to w.
func (v *S3Vault) GetMetadata(gatewayID string, name string, w io.Writer) error {
	out, err := v.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(gatewayID, name)),
	})
	if err != nil {
		if isNotFound(err) {
			return notFound(gatewayID, name)
		}
		return fmt.Errorf("downloading %s: %w", v.key(gatewayID, name), err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (v *S3Vault) ValidateSetup() error {
	_, err := v.client.HeadBucket(context.Background(), &s3.HeadBucketInput{Bucket: aws.String(v.bucket)})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

var _ eni.Vault = (*S3Vault)(nil)
