package cmd

import (
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shouni/go-cli-base"

	"github.com/shouni/code-doc-reducer-go/internal/config"
)

// dotEnvFile はカレントディレクトリから読み込む .env ファイルです。
const dotEnvFile = ".env"

// Execute は、CLIアプリケーションのルートエントリポイントです。
// 全てのサブコマンドをルートコマンドにアタッチし、実行を開始します。
func Execute() {
	clibase.Execute("code-doc-reducer", nil, createPreRunE(loadDotEnv), runCmd)
}

// createPreRunE は、clibase共通のPersistentPreRunEロジックとアプリケーション固有のロジックを結合した関数を作成します。
func createPreRunE(preRunE func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if clibase.Flags.Verbose {
			// Verboseモードではファイル名と行番号を含む詳細なログを出力
			log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
			slog.SetLogLoggerLevel(slog.LevelDebug)
		} else {
			log.SetFlags(log.Ldate | log.Ltime)
		}

		// アプリケーション固有の PersistentPreRunE 処理を実行
		if preRunE != nil {
			return preRunE(cmd, args)
		}
		return nil
	}
}

// loadDotEnv は .env ファイルの値をプロセスの環境変数に反映します。
func loadDotEnv(cmd *cobra.Command, args []string) error {
	return config.LoadDotEnv(dotEnvFile)
}

// fatalIfError はエラーが発生した場合にログを出力して終了します。
func fatalIfError(err error) {
	if err != nil {
		slog.Error("FATAL", slog.Any("error", err))
		os.Exit(1)
	}
}
