package app

import "fmt"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はスキーマ移行を実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// MigrateAction はmigrateサブコマンドの動作。
type MigrateAction string

const (
	MigrateUp     MigrateAction = "up"
	MigrateDown   MigrateAction = "down"
	MigrateStatus MigrateAction = "status"
)

// Invocation はコマンドライン引数の解析結果。
type Invocation struct {
	Command Command
	// Migrate はCommandMigrateの場合のみ設定される。
	Migrate MigrateAction
}

// ParseCommand はコマンドライン引数（os.Args[1:]）を解析する。
// 引数が空の場合はserveとして扱い、未知のコマンドはエラーを返す。
func ParseCommand(args []string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{Command: CommandServe}, nil
	}

	switch Command(args[0]) {
	case CommandServe, CommandHealthcheck:
		return Invocation{Command: Command(args[0])}, nil
	case CommandMigrate:
		return parseMigrate(args[1:])
	default:
		return Invocation{}, fmt.Errorf("unknown command %q (want serve, migrate or healthcheck)", args[0])
	}
}

func parseMigrate(args []string) (Invocation, error) {
	inv := Invocation{Command: CommandMigrate, Migrate: MigrateUp}
	if len(args) == 0 {
		return inv, nil
	}

	switch a := MigrateAction(args[0]); a {
	case MigrateUp, MigrateDown, MigrateStatus:
		inv.Migrate = a
		return inv, nil
	default:
		return Invocation{}, fmt.Errorf("unknown migrate action %q (want up, down or status)", args[0])
	}
}
