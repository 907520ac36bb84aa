package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shouni/code-doc-reducer-go/internal/chunker"
	"github.com/shouni/code-doc-reducer-go/internal/gateway"
	"github.com/shouni/code-doc-reducer-go/internal/llm"
	"github.com/shouni/code-doc-reducer-go/internal/reducer"
	"github.com/shouni/code-doc-reducer-go/internal/storage"
)

// ErrInvalidConfig は設定値の検証に失敗した場合に返されます。
var ErrInvalidConfig = errors.New("設定値が不正です")

const (
	// DefaultOutputFile は最終ドキュメントの既定の出力先です。
	DefaultOutputFile = "README.md"
	// DefaultLogDir はログとスナップショットの既定の出力ディレクトリです。
	DefaultLogDir = "logs"
	// SnapshotFileName は log_dir の下に作成するスナップショットのファイル名です。
	SnapshotFileName = "combined_chunks.json"
	// SnapshotDisabled を snapshot_file に指定するとスナップショットを書き出しません。
	SnapshotDisabled = "none"
	// MaxAttemptsLimit は max_attempts に指定できる上限です。
	MaxAttemptsLimit = 100
)

// 環境変数名
const (
	EnvAWSRegion      = "AWS_REGION"
	EnvGoogleProject  = "GOOGLE_CLOUD_PROJECT"
	EnvGoogleLocation = "GOOGLE_CLOUD_LOCATION"
)

// Config は実行全体の設定です。YAML ファイル、環境変数、CLI フラグの順に上書きされます。
type Config struct {
	Directory      string   `yaml:"directory"`
	FileExtensions []string `yaml:"file_extensions"`
	ExcludeFolders []string `yaml:"exclude_folders"`
	ExcludeFiles   []string `yaml:"exclude_files"`
	OutputFile     string   `yaml:"output_file"`
	SnapshotFile   string   `yaml:"snapshot_file"`
	LogDir         string   `yaml:"log_dir"`

	Provider        string        `yaml:"provider"`
	ModelID         string        `yaml:"model_id"`
	Region          string        `yaml:"region"`
	Project         string        `yaml:"project"`
	Location        string        `yaml:"location"`
	APIKey          string        `yaml:"api_key"`
	Temperature     float64       `yaml:"temperature"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`

	MaxChars         int           `yaml:"max_chars"`
	MaxWords         int           `yaml:"max_words"`
	ChunkLimit       int           `yaml:"chunk_limit"`
	BatchSize        int           `yaml:"batch_size"`
	Cooldown         time.Duration `yaml:"cooldown"`
	MaxAttempts      int           `yaml:"max_attempts"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	BackoffFactor    float64       `yaml:"backoff_factor"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	JitterMin        time.Duration `yaml:"jitter_min"`
	JitterMax        time.Duration `yaml:"jitter_max"`
	MaxStalledRounds int           `yaml:"max_stalled_rounds"`
	FileWorkers      int           `yaml:"file_workers"`
}

// Default は既定値の Config を返します。
func Default() Config {
	return Config{
		Directory: ".",
		FileExtensions: []string{
			".ts", ".js", ".py", ".ksh", ".yaml", ".md", "Dockerfile",
			".yml", ".txt", ".env", ".json", ".sh", ".html", ".go",
		},
		ExcludeFolders: []string{".git", ".venv", "node_modules", "logs", "docs"},
		ExcludeFiles: []string{
			"README.md", "LICENSE", "CONTRIBUTING.md", "CODE_OF_CONDUCT.md", ".DS_Store", ".env",
		},
		OutputFile: DefaultOutputFile,
		LogDir:     DefaultLogDir,

		Provider:        llm.ProviderBedrock,
		Region:          llm.DefaultRegion,
		Location:        "us-central1",
		Temperature:     llm.DefaultTemperature,
		MaxOutputTokens: llm.DefaultMaxOutputTokens,
		ReadTimeout:     llm.DefaultReadTimeout,

		MaxChars:         chunker.DefaultMaxChars,
		MaxWords:         chunker.DefaultMaxWords,
		ChunkLimit:       reducer.DefaultChunkLimit,
		BatchSize:        gateway.DefaultBatchSize,
		Cooldown:         gateway.DefaultCooldown,
		MaxAttempts:      gateway.DefaultMaxAttempts,
		BaseDelay:        gateway.DefaultBaseDelay,
		BackoffFactor:    gateway.DefaultBackoffFactor,
		MaxDelay:         gateway.DefaultMaxDelay,
		JitterMin:        gateway.DefaultJitterMin,
		JitterMax:        gateway.DefaultJitterMax,
		MaxStalledRounds: reducer.DefaultMaxStalledRounds,
		FileWorkers:      runtime.NumCPU(),
	}
}

// Load は既定値の上に YAML 設定ファイルを重ねた Config を返します。
// path が空の場合は既定値をそのまま返します。gs:// のパスは reader 経由で読み込みます。
func Load(ctx context.Context, reader storage.InputReader, path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	rc, err := reader.Open(ctx, path)
	if err != nil {
		return Config{}, fmt.Errorf("設定ファイルのオープンに失敗しました (%s): %w", path, err)
	}
	defer rc.Close()

	dec := yaml.NewDecoder(rc)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("設定ファイルの解析に失敗しました (%s): %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv は .env ファイルを読み込み、プロセスの環境変数に反映します。
// ファイルが存在しない場合は何もしません。既に設定されている環境変数は上書きしません。
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf(".envファイルの読み込みに失敗しました (%s): %w", path, err)
	}
	return nil
}

// ApplyEnv は環境変数で指定されたクラウド設定を Config に反映します。
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvAWSRegion); v != "" {
		c.Region = v
	}
	if v := getenv(EnvGoogleProject); v != "" {
		c.Project = v
	}
	if v := getenv(EnvGoogleLocation); v != "" {
		c.Location = v
	}
}

// Budget は指示ブロック差し引き前の予算を返します。
func (c Config) Budget() chunker.Budget {
	return chunker.Budget{MaxChars: c.MaxChars, MaxWords: c.MaxWords}
}

// SnapshotPath はスナップショットの出力先を返します。
// snapshot_file が空の場合は log_dir の下に作成し、SnapshotDisabled の場合は空文字を返します。
func (c Config) SnapshotPath() string {
	switch c.SnapshotFile {
	case SnapshotDisabled:
		return ""
	case "":
		if c.LogDir == "" {
			return ""
		}
		return filepath.Join(c.LogDir, SnapshotFileName)
	default:
		return c.SnapshotFile
	}
}

// Validate は設定値の整合性を検証します。
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.Directory != "", "directory を指定してください")
	check(c.OutputFile != "", "output_file を指定してください")
	check(c.MaxChars > 0, "max_chars は1以上である必要があります (%d)", c.MaxChars)
	check(c.MaxWords > 0, "max_words は1以上である必要があります (%d)", c.MaxWords)
	check(c.ChunkLimit > 0, "chunk_limit は1以上である必要があります (%d)", c.ChunkLimit)
	check(c.BatchSize > 0, "batch_size は1以上である必要があります (%d)", c.BatchSize)
	check(c.MaxAttempts > 0 && c.MaxAttempts <= MaxAttemptsLimit, "max_attempts は1以上%d以下である必要があります (%d)", MaxAttemptsLimit, c.MaxAttempts)
	check(c.MaxDelay >= 0, "max_delay は0以上である必要があります (%s)", c.MaxDelay)
	check(c.BackoffFactor >= 1, "backoff_factor は1以上である必要があります (%v)", c.BackoffFactor)
	check(c.Cooldown >= 0, "cooldown は0以上である必要があります (%s)", c.Cooldown)
	check(c.BaseDelay >= 0, "base_delay は0以上である必要があります (%s)", c.BaseDelay)
	check(c.JitterMin >= 0 && c.JitterMin <= c.JitterMax, "jitter_min は0以上かつ jitter_max 以下である必要があります (%s, %s)", c.JitterMin, c.JitterMax)
	check(c.FileWorkers > 0, "file_workers は1以上である必要があります (%d)", c.FileWorkers)

	switch c.Provider {
	case llm.ProviderBedrock, llm.ProviderGemini, llm.ProviderVertex, llm.ProviderEcho:
	default:
		check(false, "未対応のプロバイダです: %q", c.Provider)
	}

	return errors.Join(errs...)
}
