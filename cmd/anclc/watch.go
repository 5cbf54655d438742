package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/ancl/internal/errors"
)

const irExt = ".air"

type watchOptions struct {
	*rootOptions
	Initial bool
	Jobs    int

	// ready is called once the directory is watched.
	ready func()
}

func newWatchCommand(root *rootOptions) *cobra.Command {
	opts := &watchOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Recompile IR files in a directory whenever they change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Initial, "initial", true, "compile every IR file once before watching")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 4, "parallel compiles for the initial pass")
	return cmd
}

func runWatch(ctx context.Context, opts *watchOptions, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return errors.IO(dir, err)
	}

	if opts.Initial {
		if err := compileAll(ctx, opts, dir); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					return nil
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 || filepath.Ext(ev.Name) != irExt {
					continue
				}
				compileOne(gctx, opts, ev.Name)
			case err, ok := <-w.Errors:
				if !ok {
					return nil
				}
				return err
			}
		}
	})
	opts.logger.Info("watching %s", dir)
	if opts.ready != nil {
		opts.ready()
	}
	return g.Wait()
}

// compileAll compiles every IR file of dir. Compile failures are logged and
// do not stop the others.
func compileAll(ctx context.Context, opts *watchOptions, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.IO(dir, err)
	}
	g, gctx := errgroup.WithContext(ctx)
	if opts.Jobs > 0 {
		g.SetLimit(opts.Jobs)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), irExt) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		g.Go(func() error {
			compileOne(gctx, opts, path)
			return nil
		})
	}
	return g.Wait()
}

func compileOne(ctx context.Context, opts *watchOptions, path string) {
	d, err := opts.driver()
	if err != nil {
		opts.logger.Error("%v", err)
		return
	}
	if _, err := d.CompileFile(ctx, path, ""); err != nil {
		opts.logger.Error("%v", err)
		return
	}
	opts.logger.Info("compiled %s", path)
}
