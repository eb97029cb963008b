package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandMonitor は監視APIサーバーとプレゼンスモニタを起動することを示す。
	CommandMonitor Command = "monitor"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandPresence は最新のプレゼンス一覧を表形式で1回出力することを示す。
	CommandPresence Command = "presence"
	// CommandUserAdd はユーザーを登録することを示す。
	CommandUserAdd Command = "user-add"
	// CommandArticleAdd は記事を作成して公開することを示す。
	CommandArticleAdd Command = "article-add"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandMonitorを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandMonitor
	}

	switch args[0] {
	case "monitor":
		return CommandMonitor
	case "migrate":
		return CommandMigrate
	case "presence":
		return CommandPresence
	case "user-add":
		return CommandUserAdd
	case "article-add":
		return CommandArticleAdd
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandMonitor
	}
}
