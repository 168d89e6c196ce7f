// Command delua drives the decompiler and formatter from a shell,
// grounded on 256lights-zb's luac command tree: a cobra root with one
// subcommand per operation, each reading a file and writing a file.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	decompile "github.com/lua-family/delua"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "delua",
		Short:         "delua reconstructs and formats Lua-family source from bytecode",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log diagnostics to stderr")
	root.AddCommand(newDecompileCommand(&verbose), newFormatCommand(&verbose))
	return root
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func newDecompileCommand(verbose *bool) *cobra.Command {
	c := &cobra.Command{
		Use:                   "decompile INPUT [OUTPUT]",
		Short:                 "reconstruct source from a bytecode file",
		Args:                  cobra.RangeArgs(1, 2),
		DisableFlagsInUseLine: true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		log := newLogger(*verbose)

		bytecode, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		log.Debug("read bytecode", "path", args[0], "bytes", len(bytecode))

		out, closeOut, err := outputWriter(args)
		if err != nil {
			return err
		}
		defer closeOut()

		if err := decompile.Decompile(bytecode, out); err != nil {
			log.Debug("decompile failed", "error", err)
			return err
		}
		log.Debug("decompile succeeded")
		return nil
	}
	return c
}

func newFormatCommand(verbose *bool) *cobra.Command {
	c := &cobra.Command{
		Use:                   "format INPUT [OUTPUT]",
		Short:                 "pretty-print a source file",
		Args:                  cobra.RangeArgs(1, 2),
		DisableFlagsInUseLine: true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		log := newLogger(*verbose)

		source, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		log.Debug("read source", "path", args[0], "bytes", len(source))

		out, closeOut, err := outputWriter(args)
		if err != nil {
			return err
		}
		defer closeOut()

		if err := decompile.Format(string(source), out); err != nil {
			log.Debug("format failed", "error", err)
			return err
		}
		log.Debug("format succeeded")
		return nil
	}
	return c
}

// outputWriter resolves the optional second positional argument: stdout
// when omitted, a truncated file otherwise.
func outputWriter(args []string) (*os.File, func(), error) {
	if len(args) < 2 {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(args[1])
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
