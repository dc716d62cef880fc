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
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fawa-io/filedrop/pkg/config"
	"github.com/fawa-io/filedrop/pkg/fault"
	"github.com/fawa-io/filedrop/pkg/fwlog"
)

// MinioStore implements Store against MinIO or any S3-compatible endpoint.
type MinioStore struct {
	client     *minio.Client
	bucketName string
	partSize   uint64
	now        func() time.Time
}

// NewMinioStore creates the client and, when cfg.CreateBucket is set,
// makes sure the bucket exists. The region is always passed to the client so
// presigning never needs a bucket-location round trip.
func NewMinioStore(ctx context.Context, cfg config.StorageConfig) (*MinioStore, error) {
	fwlog.Infof("Initializing MinIO store: endpoint=%s bucket=%s ssl=%v", cfg.Endpoint, cfg.Bucket, cfg.UseSSL)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	s := &MinioStore{
		client:     client,
		bucketName: cfg.Bucket,
		partSize:   uint64(cfg.PartSize),
		now:        time.Now,
	}

	if cfg.CreateBucket {
		if err := s.ensureBucket(ctx, cfg.Region); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context, region string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("check if bucket %q exists: %w", s.bucketName, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucketName, err)
	}
	fwlog.Infof("Successfully created MinIO bucket: %s", s.bucketName)
	return nil
}

// Put streams r into the bucket. minio-go switches to a multipart upload
// above partSize and, for unknown sizes, buffers at most one part at a time.
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64) (StoredObject, error) {
	info, err := s.client.PutObject(ctx, s.bucketName, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
		PartSize:    s.partSize,
	})
	if err != nil {
		return StoredObject{}, classifyMinio("put", err)
	}
	return StoredObject{
		Key:        key,
		Size:       info.Size,
		ETag:       info.ETag,
		UploadedAt: s.now(),
	}, nil
}

// Abort removes the parts of any unfinished multipart upload for key.
func (s *MinioStore) Abort(ctx context.Context, key string) error {
	if err := s.client.RemoveIncompleteUpload(ctx, s.bucketName, key); err != nil {
		return classifyMinio("abort", err)
	}
	return nil
}

// Sign generates a temporary, presigned URL for downloading key.
func (s *MinioStore) Sign(ctx context.Context, key string, validity time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, key, validity, nil)
	if err != nil {
		if fault.IsTimeout(err) {
			return "", fault.Wrap(fault.Timeout, "sign", err)
		}
		return "", fault.Wrap(fault.SigningError, "sign", err)
	}
	return u.String(), nil
}

// Stat reports the size and etag of an existing object.
func (s *MinioStore) Stat(ctx context.Context, key string) (StoredObject, error) {
	info, err := s.client.StatObject(ctx, s.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		return StoredObject{}, classifyMinio("stat", err)
	}
	return StoredObject{
		Key:        info.Key,
		Size:       info.Size,
		ETag:       info.ETag,
		UploadedAt: info.LastModified,
	}, nil
}

var _ Store = (*MinioStore)(nil)
