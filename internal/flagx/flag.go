// Package flagx contains helpers for parsing subsets of command-line flags
// without tripping over flags owned by other components.
package flagx

import (
	"flag"
	"io"
	"os"
	"strings"
)

// FilterArgs returns only the arguments belonging to the allowed flags,
// keeping "-f value" pairs and "-f=value" forms intact. It lets a component
// parse its own flags from os.Args without choking on everyone else's.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}
	return filtered
}

// JSONConfigFlags extracts the config-file path from -c / -config flags, if
// either is present. Returns "" when no config file was requested.
func JSONConfigFlags() string {
	args := FilterArgs(os.Args[1:], []string{"-c", "-config", "--config"})

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	short := fs.String("c", "", "path to JSON config file")
	long := fs.String("config", "", "path to JSON config file")

	if err := fs.Parse(args); err != nil {
		return ""
	}
	if *long != "" {
		return *long
	}
	return *short
}
