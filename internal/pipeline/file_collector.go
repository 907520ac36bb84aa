package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileFilter は走査対象を絞り込む条件です。
type FileFilter struct {
	// Extensions はファイル名の末尾と照合する接尾辞です (例: ".go", "Dockerfile")。空の場合はすべてのファイルを対象にします。
	Extensions []string
	// ExcludeFolders は、ディレクトリの相対パスに含まれていれば配下ごと除外する文字列です。
	ExcludeFolders []string
	// ExcludeFiles は完全一致で除外するファイル名です。
	ExcludeFiles []string
}

// excludesDir は相対パスに除外対象の文字列が含まれるかどうかを返します。
func (f FileFilter) excludesDir(rel string) bool {
	for _, fragment := range f.ExcludeFolders {
		if fragment != "" && strings.Contains(rel, fragment) {
			return true
		}
	}
	return false
}

// Accepts はファイル名がフィルタを通過するかどうかを返します。
func (f FileFilter) Accepts(name string) bool {
	for _, excluded := range f.ExcludeFiles {
		if name == excluded {
			return false
		}
	}
	if len(f.Extensions) == 0 {
		return true
	}
	for _, ext := range f.Extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// DirectoryFileCollector は FileCollector インターフェースの具象実装です。
// ローカルディレクトリを再帰的に走査します。
type DirectoryFileCollector struct {
	root   string
	filter FileFilter
	logger *slog.Logger
}

// NewDirectoryFileCollector は DirectoryFileCollector の新しいインスタンスを作成します。
func NewDirectoryFileCollector(root string, filter FileFilter, logger *slog.Logger) *DirectoryFileCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectoryFileCollector{root: root, filter: filter, logger: logger}
}

// Collect はディレクトリを走査し、フィルタを通過したファイルのパスを辞書順で返します。
// 読み込めないサブディレクトリは警告を出して読み飛ばします。
func (c *DirectoryFileCollector) Collect(ctx context.Context) ([]string, error) {
	if c.root == "" {
		return nil, fmt.Errorf("処理対象のディレクトリを指定してください。-d/--dir オプションで指定してください。")
	}

	var files []string
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == c.root {
				return walkErr
			}
			c.logger.Warn("ディレクトリの読み込みに失敗したため読み飛ばします", slog.String("path", path), slog.Any("error", walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			rel, err := filepath.Rel(c.root, path)
			if err != nil {
				return err
			}
			if rel != "." && c.filter.excludesDir(filepath.ToSlash(rel)) {
				c.logger.Debug("除外対象のディレクトリです", slog.String("path", path))
				return fs.SkipDir
			}
			return nil
		}

		if c.filter.Accepts(d.Name()) && isRegularFile(path, d) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ディレクトリの走査に失敗しました (%s): %w", c.root, err)
	}

	c.logger.Info("処理対象のファイルを収集しました", slog.String("dir", c.root), slog.Int("files", len(files)))
	return files, nil
}

// isRegularFile は通常ファイル、または通常ファイルを指すシンボリックリンクかどうかを返します。
// ディレクトリを指すシンボリックリンクはたどりません。
func isRegularFile(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

var _ FileCollector = (*DirectoryFileCollector)(nil)
