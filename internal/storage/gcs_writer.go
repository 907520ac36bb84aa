package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSFileWriter は GCS にテキストを書き込みます。
type GCSFileWriter struct {
	client *storage.Client
}

// NewGCSFileWriter は新しい GCSFileWriter インスタンスを作成します。
func NewGCSFileWriter(client *storage.Client) *GCSFileWriter {
	return &GCSFileWriter{client: client}
}

// Write は gs://bucket/object 形式の URI にコンテンツを書き込みます。
func (w *GCSFileWriter) Write(ctx context.Context, uri, contentType, content string) error {
	if w.client == nil {
		return fmt.Errorf("GCS URIが指定されましたが、GCSクライアントが初期化されていません。")
	}
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return err
	}

	// Writerを取得し、コンテキストを使用してタイムアウトやキャンセルを処理可能にする
	wc := w.client.Bucket(bucket).Object(object).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write([]byte(content)); err != nil {
		wc.Close() // 書き込みエラー時は必ず閉じる
		return fmt.Errorf("GCSへのコンテンツ書き込みに失敗しました: %w", err)
	}

	// Writerを閉じる (これが実際のアップロードをトリガーします)
	if err := wc.Close(); err != nil {
		return fmt.Errorf("GCS Writerのクローズに失敗しました (アップロード失敗): %w", err)
	}

	return nil
}
