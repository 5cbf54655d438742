package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orizon-lang/ancl/internal/errors"
)

type compileOptions struct {
	*rootOptions
	Output string
}

func newCompileCommand(root *rootOptions) *cobra.Command {
	opts := &compileOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "compile <file.air>",
		Short: "Compile an IR file to assembly",
		Long: `Compile reads a textual IR file and writes assembly next to it, or to
the file named by --output. An output of - writes to standard output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file, defaults to the input with a .s extension")
	return cmd
}

func runCompile(cmd *cobra.Command, opts *compileOptions, path string) error {
	d, err := opts.driver()
	if err != nil {
		return err
	}
	if opts.Output != "-" {
		res, err := d.CompileFile(cmd.Context(), path, opts.Output)
		if err != nil {
			return err
		}
		opts.logger.Info("compiled %s (%d bytes of assembly)", path, len(res.Assembly))
		return nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return errors.IO(path, err)
	}
	res, err := d.Compile(cmd.Context(), path, src)
	if err != nil {
		return fmt.Errorf("compile %s: %w", path, err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), res.Assembly)
	return err
}
