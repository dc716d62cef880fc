// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fawa-io/filedrop/pkg/config"
	"github.com/fawa-io/filedrop/pkg/fault"
	"github.com/fawa-io/filedrop/pkg/fwlog"
)

// S3Store implements Store on AWS S3 through aws-sdk-go-v2.
type S3Store struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	uploader      *manager.Uploader
	bucketName    string
	now           func() time.Time
}

// NewS3Store loads the default AWS credential chain, or static keys when
// cfg.AccessKey is set. A non-empty cfg.Endpoint switches to path-style
// addressing against that endpoint.
func NewS3Store(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
			o.UsePathStyle = true
		}
	})
	fwlog.Infof("Initializing S3 store: region=%s bucket=%s endpoint=%q", cfg.Region, cfg.Bucket, cfg.Endpoint)
	return newS3Store(client, cfg.Bucket, cfg.PartSize), nil
}

func newS3Store(client *s3.Client, bucket string, partSize int64) *S3Store {
	return &S3Store{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = partSize
			u.Concurrency = 1
		}),
		bucketName: bucket,
		now:        time.Now,
	}
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// Put uploads r with the transfer manager. Seekable input of known size is
// handed over as is; anything else is read in PartSize chunks. Failed
// multipart uploads are aborted by the manager.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64) (StoredObject, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		ContentType: aws.String("application/octet-stream"),
	}

	var counter *countingReader
	if _, seekable := r.(io.ReadSeeker); seekable && size >= 0 {
		input.Body = r
		input.ContentLength = aws.Int64(size)
	} else {
		counter = &countingReader{r: r}
		input.Body = counter
	}

	out, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return StoredObject{}, classifyS3("put", err)
	}

	written := size
	if counter != nil {
		written = counter.n
	}
	return StoredObject{
		Key:        key,
		Size:       written,
		ETag:       strings.Trim(aws.ToString(out.ETag), `"`),
		UploadedAt: s.now(),
	}, nil
}

// Abort lists the open multipart sessions for key and aborts each one.
func (s *S3Store) Abort(ctx context.Context, key string) error {
	out, err := s.client.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(key),
	})
	if err != nil {
		return classifyS3("abort", err)
	}
	for _, up := range out.Uploads {
		if aws.ToString(up.Key) != key {
			continue
		}
		_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucketName),
			Key:      aws.String(key),
			UploadId: up.UploadId,
		})
		if err != nil {
			return classifyS3("abort", err)
		}
		fwlog.Infof("Aborted multipart upload %s for key %s", aws.ToString(up.UploadId), key)
	}
	return nil
}

// Sign creates a temporary URL for downloading (GET).
func (s *S3Store) Sign(ctx context.Context, key string, validity time.Duration) (string, error) {
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(validity))
	if err != nil {
		if fault.IsTimeout(err) {
			return "", fault.Wrap(fault.Timeout, "sign", err)
		}
		return "", fault.Wrap(fault.SigningError, "sign", err)
	}
	return req.URL, nil
}

// Stat issues a HEAD request for key.
func (s *S3Store) Stat(ctx context.Context, key string) (StoredObject, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return StoredObject{}, classifyS3("stat", err)
	}
	return StoredObject{
		Key:        key,
		Size:       aws.ToInt64(out.ContentLength),
		ETag:       strings.Trim(aws.ToString(out.ETag), `"`),
		UploadedAt: aws.ToTime(out.LastModified),
	}, nil
}

var _ Store = (*S3Store)(nil)
