package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSScheme は GCS オブジェクトを示す URI の接頭辞です。
const GCSScheme = "gs://"

// IsGCSURI はパスが GCS URI かどうかを返します。
func IsGCSURI(path string) bool {
	return strings.HasPrefix(path, GCSScheme)
}

// ParseGCSURI は gs://bucket-name/object-name をバケット名とオブジェクト名に分解します。
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !IsGCSURI(uri) {
		return "", "", fmt.Errorf("GCS URIではありません: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, GCSScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("無効なGCS URI形式です: %s (gs://bucket-name/object-name の形式で指定してください)", uri)
	}
	return parts[0], parts[1], nil
}

// InputReader はローカルファイルまたはリモートオブジェクトを開く能力です。
type InputReader interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// LocalGCSInputReader は InputReader の具象実装であり、
// ローカルファイルと GCS オブジェクトの読み込みを処理します。
type LocalGCSInputReader struct {
	gcsClient *storage.Client
}

// NewLocalGCSInputReader は LocalGCSInputReader の新しいインスタンスを作成します。
// GCSを使用しない場合は nil を渡すことができますが、その場合 gs:// のパスはエラーになります。
func NewLocalGCSInputReader(gcsClient *storage.Client) *LocalGCSInputReader {
	return &LocalGCSInputReader{
		gcsClient: gcsClient,
	}
}

// Open は、ファイルパスを検査し、ローカルファイルまたはGCSからストリームを開きます。
func (r *LocalGCSInputReader) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if IsGCSURI(path) {
		return r.openGCSObject(ctx, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ローカルファイルのオープンに失敗しました: %w", err)
	}
	return file, nil
}

// openGCSObject は、GCS URI からオブジェクトを読み込み、io.ReadCloser を返します。
func (r *LocalGCSInputReader) openGCSObject(ctx context.Context, uri string) (io.ReadCloser, error) {
	if r.gcsClient == nil {
		return nil, fmt.Errorf("GCS URIが指定されましたが、GCSクライアントが初期化されていません。")
	}

	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := r.gcsClient.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCSファイルの読み込みに失敗しました (URI: %s): %w", uri, err)
	}
	return rc, nil
}

var _ InputReader = (*LocalGCSInputReader)(nil)
