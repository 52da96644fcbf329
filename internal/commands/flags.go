package commands

import (
	"os"

	"github.com/spf13/pflag"
)

// stringFlagOrEnv reads a string flag, falling back to an environment
// variable when the flag was not set on the command line.
func stringFlagOrEnv(fs *pflag.FlagSet, name, envKey string) string {
	if fs.Changed(name) {
		v, _ := fs.GetString(name)
		return v
	}
	if env := os.Getenv(envKey); env != "" {
		return env
	}
	v, _ := fs.GetString(name)
	return v
}
