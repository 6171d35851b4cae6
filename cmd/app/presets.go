package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/pflag"

	"idphoto/internal/preset"
)

func runPresets(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("presets", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "config file (yaml, toml or json)")
	asJSON := fs.Bool("json", false, "print the catalog as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, cfg, err := loadConfig(fs, nil)
	if err != nil {
		return err
	}
	catalog, err := preset.Load(cfg.Pipeline.PresetsFile)
	if err != nil {
		return err
	}
	return printPresets(stdout, catalog.All(), *asJSON)
}

func printPresets(w io.Writer, presets []preset.Preset, asJSON bool) error {
	if asJSON {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(presets)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSIZE\tLABEL\tNOTE")
	for _, p := range presets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Size(), p.Label, p.Note)
	}
	fmt.Fprintf(tw, "%s\t%dx%d\t%s\t%s\n", preset.CustomID, preset.DefaultDimension, preset.DefaultDimension,
		"Custom", "any width and height; empty fields default to 600")
	return tw.Flush()
}
