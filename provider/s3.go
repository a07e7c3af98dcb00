package provider

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var _ Provider = (*S3Provider)(nil)

// S3Scheme prefixes locations that live in an S3 bucket.
const S3Scheme = "s3://"

// S3Provider exposes a bucket prefix as a transfer location.
type S3Provider struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Provider creates an S3Provider using the default AWS credential
// chain.
func NewS3Provider(ctx context.Context, bucket string, prefix string) (*S3Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Provider{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

// ParseS3Location splits "s3://bucket/prefix" into bucket and prefix.
func ParseS3Location(location string) (bucket, prefix string, ok bool) {
	if !strings.HasPrefix(location, S3Scheme) {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(strings.TrimPrefix(location, S3Scheme), "/")
	return bucket, prefix, bucket != ""
}

func (p *S3Provider) buildKey(subPath string) string {
	subPath = strings.TrimPrefix(subPath, "/")
	if p.prefix == "" {
		return subPath
	}
	return strings.TrimPrefix(path.Join(p.prefix, subPath), "/")
}

func (p *S3Provider) Stat(ctx context.Context, pth string) (FileInfo, error) {
	key := p.buildKey(pth)

	head, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return &fileInfo{
			name:    path.Base(key),
			size:    aws.ToInt64(head.ContentLength),
			isDir:   strings.HasSuffix(key, "/"),
			modTime: aws.ToTime(head.LastModified),
		}, nil
	}

	// No object under the exact key; a non-empty prefix counts as a directory.
	dirPrefix := key
	if dirPrefix != "" {
		dirPrefix += "/"
	}
	out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		Prefix:  aws.String(dirPrefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("stat failed for %q: %w", pth, err)
	}
	if len(out.Contents) > 0 || len(out.CommonPrefixes) > 0 {
		return &fileInfo{name: path.Base(key), isDir: true}, nil
	}

	return nil, fmt.Errorf("%s: %w", pth, fs.ErrNotExist)
}

// List returns the objects and common prefixes directly under pth, in the
// lexicographic key order S3 returns them.
func (p *S3Provider) List(ctx context.Context, pth string) ([]FileInfo, error) {
	dirPrefix := p.buildKey(pth)
	if dirPrefix != "" && !strings.HasSuffix(dirPrefix, "/") {
		dirPrefix += "/"
	}

	var infos []FileInfo
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucket),
		Prefix:    aws.String(dirPrefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %q: %w", pth, err)
		}

		for _, cp := range out.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), dirPrefix), "/")
			infos = append(infos, &fileInfo{name: name, isDir: true})
		}

		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), dirPrefix)
			if name == "" || strings.HasSuffix(name, "/") {
				continue // the directory marker itself
			}
			infos = append(infos, &fileInfo{
				name:    name,
				size:    aws.ToInt64(obj.Size),
				modTime: aws.ToTime(obj.LastModified),
			})
		}
	}

	return infos, nil
}

func (p *S3Provider) OpenRead(ctx context.Context, pth string) (io.ReadCloser, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.buildKey(pth)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open read %q: %w", pth, err)
	}
	return out.Body, nil
}

// OpenWrite streams the written bytes into a multipart upload. The object
// is only visible once Close returns nil.
func (p *S3Provider) OpenWrite(ctx context.Context, pth string, _ FileInfo) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	errChan := make(chan error, 1)

	go func() {
		_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(p.buildKey(pth)),
			Body:   pr,
		})
		pr.CloseWithError(err)
		errChan <- err
	}()

	return &s3Writer{pw: pw, errChan: errChan}, nil
}

type s3Writer struct {
	pw      *io.PipeWriter
	errChan <-chan error
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *s3Writer) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	if err := <-w.errChan; err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}
