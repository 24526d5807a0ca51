package fsys

import (
	"context"
	"io"
	"net"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/subsona/subsona/internal/conf"
	"github.com/subsona/subsona/internal/errors"
	"github.com/subsona/subsona/internal/format"
)

// S3 serves music folders on an S3-compatible object store. Paths take the
// form /bucket/key/inside/bucket.
type S3 struct {
	client           *s3.Client
	presign          *s3.PresignClient
	presignedExpires time.Duration
}

// NewS3 builds the S3 backend from settings. Custom endpoints (MinIO and
// friends) force path-style addressing.
func NewS3(ctx context.Context, cfg conf.S3Settings) (*S3, error) {
	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(cfg.Region))

	if cfg.ConnectTimeout > 0 {
		timeout := time.Duration(cfg.ConnectTimeout) * time.Second
		configOptions = append(configOptions,
			awsConfig.WithHTTPClient(awshttp.NewBuildableClient().
				WithDialerOptions(func(d *net.Dialer) { d.Timeout = timeout })))
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		configOptions = append(configOptions,
			awsConfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, errors.New(err).
			Component("fsys").
			Category(errors.CategoryConfiguration).
			Build()
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3{
		client:           client,
		presign:          s3.NewPresignClient(client),
		presignedExpires: 15 * time.Minute,
	}, nil
}

func (*S3) Backend() Backend {
	return BackendS3
}

// splitPath splits /bucket/key into bucket and key.
func splitPath(p string) (bucket, key string, err error) {
	if !strings.HasPrefix(p, "/") {
		return "", "", errors.New(errors.ErrInvalidFolder).
			Component("fsys").
			Category(errors.CategoryValidation).
			Context("path", p).
			Build()
	}
	trimmed := strings.TrimPrefix(p, "/")
	bucket, key, _ = strings.Cut(trimmed, "/")
	if bucket == "" {
		return "", "", errors.New(errors.ErrInvalidFolder).
			Component("fsys").
			Category(errors.CategoryValidation).
			Context("path", p).
			Build()
	}
	return bucket, key, nil
}

func (f *S3) CheckFolder(ctx context.Context, p string) error {
	bucket, key, err := splitPath(p)
	if err != nil {
		return err
	}
	_, err = f.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return errors.New(err).
			Component("fsys").
			Category(errors.CategoryNetwork).
			Context("path", p).
			Build()
	}
	return nil
}

func (f *S3) Read(ctx context.Context, p string) ([]byte, error) {
	bucket, key, err := splitPath(p)
	if err != nil {
		return nil, err
	}
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("fsys").
			Category(errors.CategoryNetwork).
			Context("path", p).
			Build()
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.New(err).
			Component("fsys").
			Category(errors.CategoryNetwork).
			Context("path", p).
			Build()
	}
	return data, nil
}

// TranscodeInput presigns a GetObject URL so ffmpeg can read the object
// without staging it locally.
func (f *S3) TranscodeInput(ctx context.Context, p string) (string, error) {
	bucket, key, err := splitPath(p)
	if err != nil {
		return "", err
	}
	req, err := f.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(f.presignedExpires))
	if err != nil {
		return "", errors.New(err).
			Component("fsys").
			Category(errors.CategoryNetwork).
			Context("path", p).
			Build()
	}
	return req.URL, nil
}

func (f *S3) Walk(ctx context.Context, root string, minimumSize int64, fn WalkFunc) error {
	bucket, prefix, err := splitPath(root)
	if err != nil {
		return err
	}

	paginator := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return errors.New(err).
				Component("fsys").
				Category(errors.CategoryNetwork).
				Context("root", root).
				Build()
		}
		for _, object := range page.Contents {
			if object.Key == nil {
				continue
			}
			key := *object.Key
			ext := strings.TrimPrefix(path.Ext(key), ".")
			audioFormat, ok := format.AudioFromExtension(ext)
			if !ok {
				continue
			}
			size := aws.ToInt64(object.Size)
			if size < minimumSize {
				continue
			}
			entry := Entry{
				Path:   "/" + bucket + "/" + key,
				Size:   size,
				Format: audioFormat,
			}
			if object.LastModified != nil {
				entry.LastModified = *object.LastModified
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
	}
	return nil
}
