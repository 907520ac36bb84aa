package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shouni/go-utils/iohandler"

	"github.com/shouni/code-doc-reducer-go/internal/chunker"
	"github.com/shouni/code-doc-reducer-go/internal/storage"
)

const (
	// StdoutTarget を出力先に指定すると、ファイルの代わりに標準出力へドキュメント全体を書き出します。
	StdoutTarget = "-"

	contentTypeMarkdown = "text/markdown; charset=utf-8"
	contentTypeJSON     = "application/json"
)

// ----------------------------------------------------------------
// 依存関係インターフェースの定義 (DIのため)
// ----------------------------------------------------------------

// RemoteWriter は gs:// 形式の URI にコンテンツを書き込む能力の抽象化です。
type RemoteWriter interface {
	Write(ctx context.Context, uri, contentType, content string) error
}

// ----------------------------------------------------------------
// 具象実装
// ----------------------------------------------------------------

// FileOutputGenerator は OutputGenerator インターフェースの具象実装です。
// ローカルパスは iohandler で、gs:// の URI は RemoteWriter で書き込みます。
type FileOutputGenerator struct {
	remote RemoteWriter
	logger *slog.Logger
}

// NewFileOutputGenerator は FileOutputGenerator の新しいインスタンスを作成します。
// GCS を使用しない場合、remote には nil を渡せます。
func NewFileOutputGenerator(remote RemoteWriter, logger *slog.Logger) *FileOutputGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileOutputGenerator{remote: remote, logger: logger}
}

// snapshotEntry は1バンドル分のスナップショットです。[[metadata...],[text...]] の形で出力されます。
type snapshotEntry [2][]string

// EncodeSnapshot はバンドル一覧をデバッグ用の JSON に変換します。
func EncodeSnapshot(bundles []chunker.Bundle) (string, error) {
	entries := make([]snapshotEntry, len(bundles))
	for i, b := range bundles {
		entries[i] = snapshotEntry{b.Metadata, b.Texts}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("スナップショットのエンコードに失敗しました: %w", err)
	}
	return string(data), nil
}

// WriteSnapshot は初期バンドル一覧を JSON として書き出します。
func (o *FileOutputGenerator) WriteSnapshot(ctx context.Context, path string, bundles []chunker.Bundle) error {
	content, err := EncodeSnapshot(bundles)
	if err != nil {
		return err
	}
	if err := o.write(ctx, path, contentTypeJSON, content); err != nil {
		return fmt.Errorf("スナップショットの書き込みに失敗しました: %w", err)
	}
	o.logger.Debug("スナップショットを書き込みました", slog.String("file", path), slog.Int("bundles", len(bundles)))
	return nil
}

// WriteDocument は最終ドキュメントを書き出します。
// path が StdoutTarget の場合は標準出力に書き出します。
func (o *FileOutputGenerator) WriteDocument(ctx context.Context, path string, content string) error {
	if path == StdoutTarget {
		if err := iohandler.WriteOutputString("", content); err != nil {
			return fmt.Errorf("最終結果の出力に失敗しました: %w", err)
		}
		return nil
	}
	if err := o.write(ctx, path, contentTypeMarkdown, content); err != nil {
		return fmt.Errorf("最終結果の出力に失敗しました: %w", err)
	}
	o.logger.Info("ドキュメントを書き込みました", slog.String("file", path), slog.Int("chars", len([]rune(content))))
	return nil
}

func (o *FileOutputGenerator) write(ctx context.Context, path, contentType, content string) error {
	if storage.IsGCSURI(path) {
		if o.remote == nil {
			return fmt.Errorf("GCS URIが指定されましたが、GCSクライアントが初期化されていません。")
		}
		return o.remote.Write(ctx, path, contentType, content)
	}

	// ディレクトリの作成 (存在しない場合は再帰的に作成)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("ディレクトリの作成に失敗しました (%s): %w", dir, err)
	}
	if err := iohandler.WriteOutputString(path, content); err != nil {
		return fmt.Errorf("ファイルへの書き込みに失敗しました: %w", err)
	}
	return nil
}

var (
	_ OutputGenerator = (*FileOutputGenerator)(nil)
	_ RemoteWriter    = (*storage.GCSFileWriter)(nil)
)
