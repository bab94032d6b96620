// Package tiertool prints, filters and validates quality tier tables.
package tiertool

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"

	"prism/client/internal/quality"
)

// Options selects the table and the output.
type Options struct {
	// TablePath is a YAML or JSON tier table. Empty uses the built-in defaults.
	TablePath string
	// Tier restricts the output to one tier.
	Tier string
	// OutputPath writes the table to a file instead of stdout.
	OutputPath string
	// Check validates the table and only reports the result.
	Check bool
}

// Execute parses args and runs the tool.
func Execute(stdout io.Writer, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet("tiertable", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts Options
	fs.StringVar(&opts.TablePath, "table", "", "tier table to load (defaults to the built-in table)")
	fs.StringVar(&opts.Tier, "tier", "", "only print this tier")
	fs.StringVar(&opts.OutputPath, "out", "", "write the table to this file")
	fs.BoolVar(&opts.Check, "check", false, "validate the table without printing it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("tiertable: unexpected arguments %v", fs.Args())
	}
	if opts.Check && strings.TrimSpace(opts.TablePath) == "" {
		return errors.New("tiertable: --check requires --table")
	}
	return Run(stdout, opts)
}

// Run loads the table described by opts and prints or writes it.
func Run(stdout io.Writer, opts Options) error {
	table := quality.DefaultSettingsTable()
	if opts.TablePath != "" {
		loaded, err := quality.LoadSettingsTable(opts.TablePath)
		if err != nil {
			return fmt.Errorf("tiertable: %w", err)
		}
		table = loaded
	}
	if opts.Check {
		fmt.Fprintf(stdout, "%s: ok (%d tiers)\n", opts.TablePath, len(table))
		return nil
	}

	var doc any = table
	if opts.Tier != "" {
		tier, err := quality.ParseTier(opts.Tier)
		if err != nil {
			return fmt.Errorf("tiertable: %w", err)
		}
		doc = quality.SettingsTable{tier: table[tier]}
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("tiertable: failed encoding table: %w", err)
	}

	if opts.OutputPath == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o755); err != nil {
		return fmt.Errorf("tiertable: failed creating output directory: %w", err)
	}
	if err := os.WriteFile(opts.OutputPath, data, 0o644); err != nil {
		return fmt.Errorf("tiertable: failed writing output %s: %w", opts.OutputPath, err)
	}
	return nil
}
