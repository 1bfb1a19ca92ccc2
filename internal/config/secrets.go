package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret returns the credential named by envName, honoring the
// *_FILE convention used by container secret mounts: when envName_FILE
// is set the value is read from that path and trimmed of surrounding
// whitespace, and it wins over a plain envName variable. A secret with
// neither variable set resolves to the empty string; only an unreadable
// secret file is an error.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if path := os.Getenv(fileEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, path, err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	return os.Getenv(envName), nil
}
