package app

import (
	"strings"

	"github.com/spf13/pflag"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモード（期限切れトークンの削除）で起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// Options はコマンドラインフラグで上書きできる設定。
// 空の値は環境変数の設定をそのまま使う。
type Options struct {
	LogLevel string
	Port     string
}

// ParseOptions はサブコマンド以降のフラグを解析する。
func ParseOptions(args []string) (Options, error) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		args = args[1:]
	}

	var opts Options
	flagSet := pflag.NewFlagSet("skygate", pflag.ContinueOnError)
	flagSet.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	flagSet.StringVarP(&opts.Port, "port", "p", "", "HTTP listen port; overrides SERVER_PORT")

	if err := flagSet.Parse(args); err != nil {
		return Options{}, err
	}
	return opts, nil
}
