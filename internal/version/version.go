package version

import "fmt"

// Заполняются при сборке через -ldflags "-X ...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// String возвращает строку версии для логов и health-ответа.
func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
