package app

import "fmt"

// Command はアプリケーションの起動モード。
type Command string

const (
	// CommandServe はAPIサーバーを起動する。引数なしの場合のデフォルト。
	CommandServe Command = "serve"
	// CommandWorker は期限切れデータのクリーンアップジョブを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーママイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のAPIサーバーのヘルスチェックを行う。
	// シェルを持たないdistrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数をサブコマンドとして解析する。2番目以降の引数は無視する。
// 未知のサブコマンドはタイプミスで意図しないモードが起動しないようエラーにする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return "", fmt.Errorf("unknown command %q (available: serve, worker, migrate, healthcheck)", args[0])
	}
	return cmd, nil
}
