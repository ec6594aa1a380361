package config

import "os"

// ExpandEnv substitutes ${VAR}/$VAR references in raw YAML bytes before
// parsing, letting secrets (database DSN, mailer credentials) live in
// the environment rather than the file. Mirrors pkg/config/envexpand.go.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
