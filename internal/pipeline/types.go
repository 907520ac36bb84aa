package pipeline

import (
	"context"

	"github.com/shouni/code-doc-reducer-go/internal/chunker"
	"github.com/shouni/code-doc-reducer-go/internal/reducer"
)

// ----------------------------------------------------------------
// 共通構造体
// ----------------------------------------------------------------

// Options はパイプライン実行全体で必要な出力先の設定です。
type Options struct {
	OutputFile   string
	SnapshotFile string
}

// Corpus は、分割と結合が完了したコーパスの状態です。
type Corpus struct {
	Files   []string
	Total   chunker.Size
	Mode    reducer.Mode
	Chunks  int
	Bundles []chunker.Bundle
}

// ----------------------------------------------------------------
// パイプラインステージのインターフェース (DIの契約)
// ----------------------------------------------------------------

// FileCollector は、処理対象のファイル一覧を生成するステージの契約です。
type FileCollector interface {
	// Collect はディレクトリを走査し、フィルタを通過したファイルのパスを返します。
	Collect(ctx context.Context) ([]string, error)
}

// ChunkGenerator は、ファイル群をチャンクに分割し、バンドルにまとめるステージの契約です。
type ChunkGenerator interface {
	// Generate はコーパスのサイズから処理方式を決め、初期バンドル一覧を返します。
	Generate(ctx context.Context, files []string) (*Corpus, error)
}

// DocumentReducer は、バンドル一覧を1つのドキュメントに縮約するステージの契約です。
type DocumentReducer interface {
	Run(ctx context.Context, bundles []chunker.Bundle, mode reducer.Mode) (string, error)
}

// OutputGenerator は、最終ドキュメントとデバッグ用スナップショットを書き出すステージの契約です。
type OutputGenerator interface {
	WriteSnapshot(ctx context.Context, path string, bundles []chunker.Bundle) error
	WriteDocument(ctx context.Context, path string, content string) error
}

// ----------------------------------------------------------------
// Pipeline コア構造
// ----------------------------------------------------------------

// Pipeline はアプリケーションの実行パイプラインを定義し、DIされた依存関係を保持します。
type Pipeline struct {
	Options   Options
	Collector FileCollector
	Chunker   ChunkGenerator
	Reducer   DocumentReducer
	OutputGen OutputGenerator
}

// NewPipeline は Options とステージの具象実装を受け取り、Pipelineインスタンスを構築します。
func NewPipeline(
	opts Options,
	collector FileCollector,
	chunkGen ChunkGenerator,
	docReducer DocumentReducer,
	outputGen OutputGenerator,
) *Pipeline {
	return &Pipeline{
		Options:   opts,
		Collector: collector,
		Chunker:   chunkGen,
		Reducer:   docReducer,
		OutputGen: outputGen,
	}
}

var _ DocumentReducer = (*reducer.Driver)(nil)
