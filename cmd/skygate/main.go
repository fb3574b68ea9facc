// Command skygate はフィードジェネレーターとアカウント操作ゲートウェイを起動する。
//
// 使い方:
//
//	skygate [serve|worker|migrate|healthcheck] [--log-level LEVEL] [--port PORT]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/skygate/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "skygate: %v\n", err)
		os.Exit(1)
	}
}
