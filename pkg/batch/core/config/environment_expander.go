package config

import (
	"os"
	"regexp"
)

// EnvironmentExpander expands ${VAR} placeholders within configuration bytes.
type EnvironmentExpander interface {
	Expand(input []byte) ([]byte, error)
}

// OsEnvironmentExpander resolves placeholders from the process environment.
// Only the braced ${VAR} and ${VAR:-default} forms are expanded so that a literal "$" in
// a value (an API key, for instance) survives.
type OsEnvironmentExpander struct{}

// NewOsEnvironmentExpander creates an OsEnvironmentExpander.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{}
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// Expand replaces ${VAR} with the value of VAR, or with the default after ":-" when VAR is
// unset or empty. Unset variables without a default expand to "".
func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	return placeholder.ReplaceAllFunc(input, func(m []byte) []byte {
		sub := placeholder.FindSubmatch(m)
		if v, ok := os.LookupEnv(string(sub[1])); ok && v != "" {
			return []byte(v)
		}
		return sub[3]
	}), nil
}
