// Command ailangc drives the code-generation backend end to end: read a
// parsed AILANG AST, compile it to a raw ELF64 executable, and chmod the
// result so it runs directly. The lexer/parser that produces the AST is
// an external collaborator (spec.md §6); this CLI's input is that tree
// serialized as JSON, one file per compilation unit.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/ailang-lang/ailangc/internal/ast"
	"github.com/ailang-lang/ailangc/internal/compiler"
)

var (
	timers     bool
	debugLevel int
)

func main() {
	root := &cobra.Command{
		Use:   "ailangc <source.ailang> <output>",
		Short: "Compile an AILANG AST to a statically linked ELF64 executable",
		Args:  cobra.ExactArgs(2),
		RunE:  run,
	}
	root.Flags().BoolVarP(&timers, "timers", "P", false, "log per-pass wall-clock timing")
	root.Flags().IntVarP(&debugLevel, "debug", "D", 0, "debug verbosity, 1-4 (e.g. -D3)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	srcPath, outPath := args[0], args[1]

	raw, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", srcPath, err)
	}

	var prog ast.Node
	if err := json.Unmarshal(raw, &prog); err != nil {
		return fmt.Errorf("parsing AST from %s: %w", srcPath, err)
	}

	log := logrus.New()
	opts := compiler.Options{Timers: timers, DebugLevel: debugLevel, Logger: log}

	elf, diags, err := compiler.Compile(string(raw), &prog, opts)
	if err != nil {
		for _, d := range diags {
			fmt.Fprintln(os.Stderr, d.Error())
		}
		return fmt.Errorf("compilation failed: %w", err)
	}

	if err := os.WriteFile(outPath, elf, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	if err := unix.Chmod(outPath, 0755); err != nil {
		return fmt.Errorf("chmod %s: %w", outPath, err)
	}
	return nil
}
