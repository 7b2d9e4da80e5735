package evidence

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"reviewcamp/pkg/errutil"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// png is the smallest header http.DetectContentType recognises as image/png.
var png = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type putRecorder struct {
	bucket, key, contentType string
	body                     []byte
	err                      error
}

func (p *putRecorder) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if p.err != nil {
		return minio.UploadInfo{}, p.err
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	p.bucket, p.key, p.contentType, p.body = bucketName, objectName, opts.ContentType, body
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: size}, nil
}

func TestMinioStoreContentAddressed(t *testing.T) {
	rec := &putRecorder{}
	store := NewMinioStore(rec, "evidence", "https://cdn.example.com/")

	url, err := store.Store(context.Background(), File{Name: "receipt.png", Data: png})
	require.NoError(t, err)
	require.Equal(t, "evidence", rec.bucket)
	require.Equal(t, "image/png", rec.contentType)
	require.Equal(t, png, rec.body)
	require.True(t, strings.HasPrefix(rec.key, "evidence/"))
	require.True(t, strings.HasSuffix(rec.key, ".png"))
	require.Equal(t, "https://cdn.example.com/evidence/"+rec.key, url)

	again, err := store.Store(context.Background(), File{Name: "copy.png", Data: png})
	require.NoError(t, err)
	require.Equal(t, url, again)
}

func TestStoreRejectsInvalidFiles(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Store(ctx, File{Name: "empty.png"})
	require.ErrorIs(t, err, errutil.ErrValidation)

	_, err = store.Store(ctx, File{Name: "notes.txt", Data: []byte("plain text")})
	require.ErrorIs(t, err, errutil.ErrValidation)

	big := make([]byte, MaxFileSize+1)
	copy(big, png)
	_, err = store.Store(ctx, File{Name: "big.png", Data: big})
	require.ErrorIs(t, err, errutil.ErrValidation)
	require.Zero(t, store.Len())
}

func TestMinioStoreUploadFailure(t *testing.T) {
	store := NewMinioStore(&putRecorder{err: errors.New("connection refused")}, "evidence", "http://minio:9000")

	_, err := store.Store(context.Background(), File{Name: "a.png", Data: png})
	require.Error(t, err)
	require.Equal(t, errutil.StatusServiceUnavailable, err.(errutil.BaseError).Code)
}

func TestStoreAll(t *testing.T) {
	store := NewMemoryStore()
	gif := []byte("GIF89a\x01\x00\x01\x00")

	refs, err := StoreAll(context.Background(), store, []File{{Name: "a.png", Data: png}, {Name: "b.gif", Data: gif}})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	require.Equal(t, 2, store.Len())
}
