package imessage

import (
	"fmt"
	"strings"
)

// sqlValues inlines arguments into a statement for fixture setup.
func sqlValues(stmt string, args ...any) string {
	for _, a := range args {
		var lit string
		switch v := a.(type) {
		case string:
			lit = "'" + strings.ReplaceAll(v, "'", "''") + "'"
		default:
			lit = fmt.Sprint(v)
		}
		stmt = strings.Replace(stmt, "?", lit, 1)
	}
	return stmt
}
