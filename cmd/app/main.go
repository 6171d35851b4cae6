// Command app serves the ID photo resizer UI and offers the same pipeline on
// the command line.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"idphoto/internal/config"
)

const usage = `Usage:
  app [serve] [--config FILE] [--addr ADDR] [--log-level LEVEL]
  app resize --in FILE [--preset ID | --width W --height H] [--format F]
             [--quality Q] [--background HEX] [--filter K] [--out-dir DIR]
  app presets [--config FILE] [--json]
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "app: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		return runServe(args)
	case "resize":
		return runResize(args, stdout)
	case "presets":
		return runPresets(args, stdout)
	case "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

// loadConfig reads the config file named by --config and binds the flags in
// keys (flag name -> config key).
func loadConfig(fs *pflag.FlagSet, keys map[string]string) (*config.Loader, *config.Config, error) {
	path, _ := fs.GetString("config")
	loader, err := config.NewLoader(path, fs, keys)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	return loader, cfg, nil
}
