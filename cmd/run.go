package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/go-cli-base"

	"github.com/shouni/code-doc-reducer-go/internal/builder"
	"github.com/shouni/code-doc-reducer-go/internal/config"
	"github.com/shouni/code-doc-reducer-go/internal/llm"
	"github.com/shouni/code-doc-reducer-go/internal/storage"
)

// processLogFile はログディレクトリに作成する実行ログのファイル名です。
const processLogFile = "process.log"

// runCmd は、メインのCLIコマンド定義です。
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "ソースコードを読み込み、AIで1つの技術ドキュメントを生成します。",
	Long: `
ソースコードのディレクトリを走査し、予算内のチャンクに分割してモデルに送り、
1つの技術ドキュメント (既定では README.md) を生成します。

コーパスが小さい場合は前回の出力を引き継ぎながら逐次処理し、
大きい場合はバッチ単位の並列処理と結合を繰り返して1つにまとめます。

設定は既定値、--config-file の YAML、環境変数 (.env を含む)、明示したフラグの順に上書きされます。
--dry-run を指定すると外部サービスを呼ばずに処理の流れだけを確認できます。
`,
	Run: func(cmd *cobra.Command, args []string) {
		fatalIfError(runMainLogic(cmd, args))
	},
}

// init関数でサブコマンド固有のフラグを定義します。
func init() {
	def := config.Default()
	f := runCmd.Flags()

	f.String("config-file", "", "YAML 設定ファイルのパス (gs:// も指定可能)")
	f.StringP("dir", "d", def.Directory, "処理対象のソースコードのディレクトリ")
	f.StringP("output", "o", def.OutputFile, "生成したドキュメントの出力先 (gs:// も指定可能、- で標準出力)")
	f.String("snapshot", def.SnapshotFile, "初期バンドル一覧の JSON スナップショットの出力先 (省略時は <log-dir>/combined_chunks.json、none で無効)")
	f.String("log-dir", def.LogDir, "実行ログの出力ディレクトリ")

	f.StringP("provider", "p", def.Provider, "テキスト生成サービス (bedrock, gemini, vertex, echo)")
	f.StringP("model", "m", "", "使用するモデルID (省略時はプロバイダの既定値)")
	f.String("region", def.Region, "Bedrock のリージョン")
	f.String("project", "", "Vertex AI のプロジェクトID")
	f.String("location", def.Location, "Vertex AI のロケーション")
	f.StringP("api-key", "k", "", "Gemini APIキー (指定時は環境変数 GEMINI_API_KEY / GOOGLE_API_KEY より優先)")

	f.StringSlice("ext", def.FileExtensions, "処理対象とするファイル名の接尾辞")
	f.StringSlice("exclude-folder", def.ExcludeFolders, "パスに含まれていれば除外するディレクトリ名")
	f.StringSlice("exclude-file", def.ExcludeFiles, "除外するファイル名 (完全一致)")

	f.Int("batch-size", def.BatchSize, "1バッチで同時に発行するリクエスト数")
	f.Duration("cooldown", def.Cooldown, "バッチ間の待機時間")
	f.Int("chunk-limit", def.ChunkLimit, "逐次処理を選ぶコーパスサイズの上限 (予算の倍数)")
	f.Int("max-chars", def.MaxChars, "1リクエストあたりの最大文字数 (指示ブロック込み)")
	f.Int("max-words", def.MaxWords, "1リクエストあたりの最大単語数 (指示ブロック込み)")
	f.Int("max-attempts", def.MaxAttempts, "1回のモデル呼び出しの最大試行回数")
	f.Int("workers", def.FileWorkers, "並列モードでファイルを同時に分割する数")
	f.Bool("dry-run", false, "外部サービスを呼ばずに echo プロバイダで実行します")
}

// newConfigFromFlags は既定値、設定ファイル、環境変数、明示的に指定されたフラグの順に Config を組み立てます。
func newConfigFromFlags(ctx context.Context, cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	configFile, err := flags.GetString("config-file")
	if err != nil {
		return config.Config{}, fmt.Errorf("config-fileフラグの取得に失敗しました: %w", err)
	}

	gcsClient, closer, err := builder.NewGCSClientIfNeeded(ctx, configFile)
	if err != nil {
		return config.Config{}, err
	}
	defer closer()

	cfg, err := config.Load(ctx, storage.NewLocalGCSInputReader(gcsClient), configFile)
	if err != nil {
		return config.Config{}, err
	}
	cfg.ApplyEnv(os.Getenv)

	var errs []error
	setString := func(name string, dst *string) {
		if flags.Changed(name) {
			v, err := flags.GetString(name)
			appendErr(&errs, name, err)
			*dst = v
		}
	}
	setSlice := func(name string, dst *[]string) {
		if flags.Changed(name) {
			v, err := flags.GetStringSlice(name)
			appendErr(&errs, name, err)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if flags.Changed(name) {
			v, err := flags.GetInt(name)
			appendErr(&errs, name, err)
			*dst = v
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if flags.Changed(name) {
			v, err := flags.GetDuration(name)
			appendErr(&errs, name, err)
			*dst = v
		}
	}

	setString("dir", &cfg.Directory)
	setString("output", &cfg.OutputFile)
	setString("snapshot", &cfg.SnapshotFile)
	setString("log-dir", &cfg.LogDir)
	setString("provider", &cfg.Provider)
	setString("model", &cfg.ModelID)
	setString("region", &cfg.Region)
	setString("project", &cfg.Project)
	setString("location", &cfg.Location)
	setString("api-key", &cfg.APIKey)
	setSlice("ext", &cfg.FileExtensions)
	setSlice("exclude-folder", &cfg.ExcludeFolders)
	setSlice("exclude-file", &cfg.ExcludeFiles)
	setInt("batch-size", &cfg.BatchSize)
	setDuration("cooldown", &cfg.Cooldown)
	setInt("chunk-limit", &cfg.ChunkLimit)
	setInt("max-chars", &cfg.MaxChars)
	setInt("max-words", &cfg.MaxWords)
	setInt("max-attempts", &cfg.MaxAttempts)
	setInt("workers", &cfg.FileWorkers)

	if dryRun, err := flags.GetBool("dry-run"); err != nil {
		appendErr(&errs, "dry-run", err)
	} else if dryRun {
		cfg.Provider = llm.ProviderEcho
	}

	if len(errs) > 0 {
		return config.Config{}, errs[0]
	}
	return cfg, cfg.Validate()
}

func appendErr(errs *[]error, name string, err error) {
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%sフラグの取得に失敗しました: %w", name, err))
	}
}

// setupLogger は標準エラー出力とログファイルの両方に書き込む slog のロガーを既定に設定します。
// 返される関数でログファイルを閉じます。
func setupLogger(logDir string) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closer := func() {}
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, closer, fmt.Errorf("ログディレクトリの作成に失敗しました (%s): %w", logDir, err)
		}
		file, err := os.OpenFile(filepath.Join(logDir, processLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, closer, fmt.Errorf("ログファイルのオープンに失敗しました: %w", err)
		}
		w = io.MultiWriter(os.Stderr, file)
		closer = func() { file.Close() }
	}

	logger := slog.New(newLogHandler(w, clibase.Flags.Verbose))
	slog.SetDefault(logger)
	return logger, closer, nil
}

// newLogHandler はログレベルと出力元情報を verbose に合わせたハンドラを作成します。
// Verboseモードではデバッグログとファイル名・行番号を出力します。
func newLogHandler(w io.Writer, verbose bool) slog.Handler {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, AddSource: verbose})
}

// runMainLogicはCLIのメインロジックを実行します。
func runMainLogic(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. 設定の組み立て
	cfg, err := newConfigFromFlags(ctx, cmd)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}

	logger, closeLog, err := setupLogger(cfg.LogDir)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info("設定を読み込みました",
		slog.String("dir", cfg.Directory),
		slog.String("output", cfg.OutputFile),
		slog.String("provider", cfg.Provider),
		slog.Int("max_chars", cfg.MaxChars),
		slog.Int("max_words", cfg.MaxWords))

	// 2. パイプラインの構築
	p, closer, err := builder.BuildPipeline(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("パイプラインの構築に失敗しました: %w", err)
	}
	// GCSクライアントを含むすべてのリソースを確実にクローズする
	defer closer()

	// 3. パイプラインの実行
	if err := p.Execute(ctx); err != nil {
		return fmt.Errorf("パイプラインの実行中にエラーが発生しました: %w", err)
	}
	return nil
}
