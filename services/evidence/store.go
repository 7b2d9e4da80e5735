package evidence

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"reviewcamp/pkg/errutil"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const MaxFileSize = 10 << 20

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type File struct {
	Name string
	Data []byte
}

// Store persists evidence files and returns a reference to them. The core
// keeps only the reference.
type Store interface {
	Store(ctx context.Context, f File) (string, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type MinioStore struct {
	client  objectPutter
	bucket  string
	baseURL string
}

func NewMinioStore(client objectPutter, bucket, baseURL string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}
}

// Store uploads f under a key derived from its content, so the same file
// uploaded twice maps to one object.
func (s *MinioStore) Store(ctx context.Context, f File) (string, error) {
	key, contentType, err := objectKey(f)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(f.Data), int64(len(f.Data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"original-name": path.Base(f.Name)},
	})
	if err != nil {
		zap.L().Error("failed to upload evidence", zap.String("key", key), zap.Error(err))
		return "", errutil.ServiceUnavailable("evidence store unavailable", err)
	}
	return fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, key), nil
}

func objectKey(f File) (string, string, error) {
	if len(f.Data) == 0 {
		return "", "", errutil.Validation("evidence file is empty",
			errutil.WithDetails(errutil.Detail{Field: "file", Message: "required"}))
	}
	if len(f.Data) > MaxFileSize {
		return "", "", errutil.Validation("evidence file is too large",
			errutil.WithDetails(errutil.Detail{Field: "file", Message: "max 10MiB"}))
	}
	contentType := http.DetectContentType(f.Data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return "", "", errutil.Validation("unsupported evidence type "+contentType,
			errutil.WithDetails(errutil.Detail{Field: "file", Message: "must be an image"}))
	}

	sum := sha256.Sum256(f.Data)
	digest := hex.EncodeToString(sum[:])
	return path.Join("evidence", digest[:2], digest+ext), contentType, nil
}

// MemoryStore keeps files in memory. Used in tests and local runs.
type MemoryStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: map[string][]byte{}}
}

func (s *MemoryStore) Store(ctx context.Context, f File) (string, error) {
	key, _, err := objectKey(f)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = f.Data
	return "memory://" + key, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// StoreAll stores every file, returning references in input order.
func StoreAll(ctx context.Context, store Store, files []File) ([]string, error) {
	refs := make([]string, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, f := range files {
		g.Go(func() error {
			ref, err := store.Store(ctx, f)
			if err != nil {
				return err
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}
