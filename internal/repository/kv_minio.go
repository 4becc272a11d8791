package repository

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
)

type minioKVStore struct {
	client *minio.Client
	bucket string
	prefix func() string
}

// NewMinioKVStore 将每个键保存为存储桶中的一个对象，适合在多次重装之间保留聊天记录。
// prefix 与 NewRedisKVStore 相同，每次访问时求值。
func NewMinioKVStore(client *minio.Client, bucket string, prefix func() string) KVStore {
	return &minioKVStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *minioKVStore) objectName(key string) string {
	return s.prefix() + key + ".json"
}

func (s *minioKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return "", false, fmt.Errorf("failed to get object for %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		// GetObject 是惰性的，对象不存在的错误在读取时才出现
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read object for %s: %w", key, err)
	}
	return string(data), true, nil
}

func (s *minioKVStore) Set(ctx context.Context, key, value string) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.objectName(key), strings.NewReader(value), int64(len(value)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to put object for %s: %w", key, err)
	}
	return nil
}

func (s *minioKVStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, s.objectName(key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object for %s: %w", key, err)
	}
	return nil
}

func (s *minioKVStore) Close() error {
	return nil
}
