package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aihub/classroom-rag/internal/config"
	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/logger"
	"github.com/aihub/classroom-rag/internal/retry"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinioStore MinIO/S3 对象存储
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore 创建客户端并确保桶存在，MinIO 启动较慢时会重试
func NewMinioStore(ctx context.Context, cfg config.StorageConfig) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, apperrors.NewInvalidConfiguration("minio endpoint not configured")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "edu-platform"
	}

	// minio.New 不接受协议前缀
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	store := &MinioStore{client: client, bucket: cfg.Bucket}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	log := logger.Named("storage")
	policy := retry.Policy{
		Attempts:  10,
		BaseDelay: 2 * time.Second,
		MaxDelay:  10 * time.Second,
		OnRetry: func(attempt int, err error) {
			log.Warn("minio bucket check failed, retrying",
				zap.String("bucket", s.bucket), zap.Int("attempt", attempt), zap.Error(err))
		},
	}

	return retry.Do(ctx, policy, func(ctx context.Context) error {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			code := minio.ToErrorResponse(err).Code
			if code == "BucketAlreadyExists" || code == "BucketAlreadyOwnedByYou" {
				return nil
			}
			return err
		}
		log.Info("created minio bucket", zap.String("bucket", s.bucket))
		return nil
	})
}

func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeStorageFailed, "failed to store object", err).
			WithDetails(map[string]interface{}{"key": key})
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeStorageFailed, "failed to read object", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, apperrors.NewNotFoundError("object")
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeStorageFailed, "failed to read object", err)
	}
	return data, nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeStorageFailed, "failed to delete object", err)
	}
	return nil
}

// PresignedURL 生成临时下载地址
func (s *MinioStore) PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if expires == 0 {
		expires = 24 * time.Hour
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expires, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *MinioStore) Bucket() string { return s.bucket }

func (s *MinioStore) Ready(ctx context.Context) bool {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err == nil
}
