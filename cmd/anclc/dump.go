package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orizon-lang/ancl/internal/driver"
	"github.com/orizon-lang/ancl/internal/errors"
)

type dumpOptions struct {
	*rootOptions
	Stage string
}

func newDumpCommand(root *rootOptions) *cobra.Command {
	opts := &dumpOptions{rootOptions: root}

	names := make([]string, 0, len(driver.Stages()))
	for _, st := range driver.Stages() {
		names = append(names, string(st))
	}

	cmd := &cobra.Command{
		Use:   "dump <file.air>",
		Short: "Print the program after a pipeline stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := driver.ParseStage(opts.Stage)
			if err != nil {
				return err
			}
			d, err := opts.driver()
			if err != nil {
				return err
			}
			src, err := os.ReadFile(args[0])
			if err != nil {
				return errors.IO(args[0], err)
			}
			res, err := d.Compile(cmd.Context(), args[0], src)
			// A failure after stage still prints it.
			if out, ok := res.Dump(stage); ok {
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Stage, "stage", string(driver.StageMIR),
		"stage to print ("+strings.Join(names, "|")+")")
	return cmd
}
