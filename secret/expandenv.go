package secret

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

const dollarSentinel = "\x00CLIENTOPS_DOLLAR\x00"

// ExpandEnvStrict expands $VAR and ${VAR} using lookup. Unlike os.ExpandEnv
// it fails when a braced ${VAR} is unset. "$$" yields a literal "$".
func ExpandEnvStrict(s string) (string, error) {
	return expandWith(s, os.LookupEnv)
}

func expandWith(s string, lookup func(string) (string, bool)) (string, error) {
	s = strings.ReplaceAll(s, "$$", dollarSentinel)

	var missing []string
	out := os.Expand(s, func(key string) string {
		v, ok := lookup(key)
		if !ok && strings.Contains(s, "${"+key+"}") && !slices.Contains(missing, key) {
			missing = append(missing, key)
		}
		return v
	})
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}
	return strings.ReplaceAll(out, dollarSentinel, "$"), nil
}
