package vault

import (
	"fmt"
	"strings"
)

// Canonical: /<domain>/<environment>/<name>
func MakeParameterName(domain, env, name string) string {
	if domain == "" {
		domain = "rehabdocs"
	}
	if env == "" {
		env = "dev"
	}
	return fmt.Sprintf("/%s/%s/%s", domain, env, strings.TrimPrefix(name, "/"))
}
