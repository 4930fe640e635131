package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
)

// BlobStore 对象存储的 put/get 契约
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
	Ready(ctx context.Context) bool
}

// ObjectPath 文档原件在桶内的路径
func ObjectPath(classroomID, documentID uint, filename string) string {
	return fmt.Sprintf("classroom_%d/documents/document_%d/original_%s", classroomID, documentID, filename)
}

// MemoryStore 进程内存储，用于测试与本地命令行
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string][]byte
}

func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{bucket: bucket, objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeStorageFailed, "failed to store object", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = buf.Bytes()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, apperrors.NewNotFoundError("object")
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Keys 当前保存的对象数
func (m *MemoryStore) Keys() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func (m *MemoryStore) Bucket() string             { return m.bucket }
func (m *MemoryStore) Ready(context.Context) bool { return true }
