// Package policy enforces the --enable-commands allowlist.
package policy

import (
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/clonekit/internal/errors"
)

// CheckCommandAllowed returns a blocked error unless commandPath is listed.
// An entry naming a command group ("cache") allows every command under it.
// An empty allowlist allows everything.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	path := normalize(commandPath)
	for _, allowed := range allowlist {
		entry := normalize(allowed)
		if entry == "" {
			continue
		}
		if entry == path || strings.HasPrefix(path, entry+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, fmt.Sprintf("command %q blocked by --enable-commands policy", path))
}

func normalize(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), " ")
}
