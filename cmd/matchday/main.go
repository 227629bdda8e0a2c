// Command matchday はサッカー観戦予定管理バックエンドのエントリーポイント。
// サブコマンド: serve（デフォルト）, worker, migrate, healthcheck
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/matchday/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "matchday: %v\n", err)
		os.Exit(1)
	}
}
