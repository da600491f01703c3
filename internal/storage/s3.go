// Package storage mirrors downloaded subject directories into S3-compatible
// object storage.
package storage

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"

	"downxnat/internal/download"
	"downxnat/internal/keys"
)

// objectAPI is the subset of *minio.Client used here.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Options holds the connection settings of the object store.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3Service is a client for S3-compatible storage.
type S3Service struct {
	client objectAPI
}

// MirrorResult counts what MirrorSubject did.
type MirrorResult struct {
	Uploaded int
	Skipped  int
	Bytes    int64
}

// NewS3Service connects to the object store described by opts.
func NewS3Service(opts Options) (*S3Service, error) {
	if opts.Endpoint == "" || opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("missing one or more object storage settings: endpoint, access key, secret key")
	}
	minioClient, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	log.Debugf("Using object storage endpoint %s", opts.Endpoint)
	return &S3Service{client: minioClient}, nil
}

// CreateBucket makes bucketName unless it already exists.
func (s *S3Service) CreateBucket(ctx context.Context, bucketName string, location string) (bool, error) {
	exists, err := s.client.BucketExists(ctx, bucketName)
	if err != nil {
		return false, fmt.Errorf("error checking bucket existence: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
			return false, fmt.Errorf("create bucket %s: %w", bucketName, err)
		}
		log.Printf("Created bucket %s", bucketName)
	}
	return true, nil
}

// MirrorSubject uploads every file under subjectDir to bucketName, keyed by
// project and subject label. Files already present with the same size are
// skipped, except the metadata snapshot, which is always replaced.
// Uploads happen one file at a time.
func (s *S3Service) MirrorSubject(ctx context.Context, bucketName, project, subjectDir string) (MirrorResult, error) {
	var result MirrorResult
	label := filepath.Base(subjectDir)

	err := filepath.WalkDir(subjectDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(subjectDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		key := keys.SubjectFile(project, label, rel)

		if rel != download.MetadataFile {
			exists, err := s.sameObject(ctx, bucketName, key, info.Size())
			if err != nil {
				return err
			}
			if exists {
				result.Skipped++
				return nil
			}
		}

		if _, err := s.client.FPutObject(ctx, bucketName, key, path, minio.PutObjectOptions{
			ContentType: contentType(rel),
		}); err != nil {
			return fmt.Errorf("failed to store object %s: %w", key, err)
		}
		result.Uploaded++
		result.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("mirror %s: %w", subjectDir, err)
	}
	log.Printf("Mirrored subject %s to bucket '%s': %d uploaded, %d unchanged", label, bucketName, result.Uploaded, result.Skipped)
	return result, nil
}

// sameObject reports whether key already exists with the given size.
func (s *S3Service) sameObject(ctx context.Context, bucketName, key string, size int64) (bool, error) {
	info, err := s.client.StatObject(ctx, bucketName, key, minio.StatObjectOptions{})
	if err == nil {
		return info.Size == size, nil
	}
	if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return false, fmt.Errorf("failed to check for existing object: %w", err)
	}
	return false, nil
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".dcm":
		return "application/dicom"
	case ".gz":
		return "application/gzip"
	case ".xml":
		return "application/xml"
	}
	return "application/octet-stream"
}
