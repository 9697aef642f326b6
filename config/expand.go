package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
)

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandEnv replaces ${VAR} and ${VAR:-default} with environment values. A
// referenced variable that is unset and has no default is an error. $$ is a
// literal $.
func expandEnv(data []byte) ([]byte, error) {
	const dollar = "\x00NODECACHE_DOLLAR\x00"
	data = bytes.ReplaceAll(data, []byte("$$"), []byte(dollar))

	var missing []string
	data = envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		sub := envPattern.FindSubmatch(match)
		name := string(sub[1])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		if len(sub[2]) > 0 {
			return sub[3]
		}
		if !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
		return match
	})
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}
	return bytes.ReplaceAll(data, []byte(dollar), []byte("$")), nil
}
