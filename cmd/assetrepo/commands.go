package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/marmos91/assetrepo/pkg/config"
	"github.com/marmos91/assetrepo/pkg/repository"
	"github.com/marmos91/assetrepo/pkg/store"
)

// env is what a command runs against.
type env struct {
	repo    *repository.Repository
	metrics *config.MetricsResult
}

type command struct {
	usage string
	run   func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"info":     {"<path>  print node info as JSON", cmdInfo},
	"ls":       {"[path]  list a directory", cmdList},
	"mkdir":    {"<path>  create a directory", cmdMkdir},
	"rmdir":    {"<path>  delete a directory and its subtree", cmdRmdir},
	"put":      {"<local> <path>  create an asset from a local file", cmdPut},
	"update":   {"<local> <path>  replace an asset's content", cmdUpdate},
	"get":      {"<path> [local]  read an asset (stdout when local is omitted)", cmdGet},
	"rm":       {"<path>  delete an asset", cmdRemove},
	"find":     {"[-regex] [-under dir] [-limit n] <term>  search asset names", cmdFind},
	"checkout": {"<path> <who>  mark an asset as checked out", cmdCheckout},
	"checkin":  {"<path>  clear an asset's checkout", cmdCheckin},
	"metrics":  {"serve Prometheus metrics until interrupted", cmdMetrics},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// wait blocks until an operation's callback fires or ctx ends.
func wait[T any](ctx context.Context, start func(cb repository.Callback[T])) (T, error) {
	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)
	start(func(v T, err error) { ch <- result{v, err} })

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func requireArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func cmdInfo(ctx context.Context, e *env, args []string) error {
	if err := requireArgs(args, 1, "info <path>"); err != nil {
		return err
	}
	info, err := wait(ctx, func(cb repository.Callback[*store.Info]) {
		e.repo.GetInfo(ctx, repository.Path(args[0]), cb)
	})
	if err != nil {
		return err
	}
	return printJSON(info)
}

func cmdList(ctx context.Context, e *env, args []string) error {
	path := "/"
	if len(args) > 0 {
		path = args[0]
	}
	children, err := wait(ctx, func(cb repository.Callback[[]*store.Info]) {
		e.repo.List(ctx, repository.Path(path), cb)
	})
	if err != nil {
		return err
	}
	printTable(children)
	return nil
}

func cmdMkdir(ctx context.Context, e *env, args []string) error {
	if err := requireArgs(args, 1, "mkdir <path>"); err != nil {
		return err
	}
	_, err := wait(ctx, func(cb repository.Callback[*store.Info]) {
		e.repo.CreateDirectory(ctx, repository.Path(args[0]), cb)
	})
	return err
}

func cmdRmdir(ctx context.Context, e *env, args []string) error {
	if err := requireArgs(args, 1, "rmdir <path>"); err != nil {
		return err
	}
	_, err := wait(ctx, func(cb repository.Callback[*store.Info]) {
		e.repo.DeleteDirectory(ctx, repository.Path(args[0]), cb)
	})
	return err
}

func cmdPut(ctx context.Context, e *env, args []string) error {
	return upload(ctx, args, "put <local> <path>", e.repo.CreateAsset)
}

func cmdUpdate(ctx context.Context, e *env, args []string) error {
	return upload(ctx, args, "update <local> <path>", e.repo.UpdateAsset)
}

type uploadFunc func(ctx context.Context, opts repository.Options, src io.Reader, finished repository.Callback[*store.Info])

func upload(ctx context.Context, args []string, usage string, op uploadFunc) error {
	if err := requireArgs(args, 2, usage); err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := wait(ctx, func(cb repository.Callback[*store.Info]) {
		op(ctx, repository.Path(args[1]), f, cb)
	})
	if err != nil {
		return err
	}
	return printJSON(info)
}

func cmdGet(ctx context.Context, e *env, args []string) error {
	if err := requireArgs(args, 1, "get <path> [local]"); err != nil {
		return err
	}

	reader, err := wait(ctx, func(cb repository.Callback[*repository.AssetReader]) {
		e.repo.GetAsset(ctx, repository.Path(args[0]), cb)
	})
	if err != nil {
		return err
	}
	defer reader.Close()

	var out io.Writer = os.Stdout
	if len(args) > 1 {
		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	_, err = io.Copy(out, reader)
	return err
}

func cmdRemove(ctx context.Context, e *env, args []string) error {
	if err := requireArgs(args, 1, "rm <path>"); err != nil {
		return err
	}
	_, err := wait(ctx, func(cb repository.Callback[*store.Info]) {
		e.repo.DeleteAsset(ctx, repository.Path(args[0]), cb)
	})
	return err
}

func cmdFind(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("find", flag.ContinueOnError)
	useRegex := fs.Bool("regex", false, "Treat the term as a regular expression")
	under := fs.String("under", "", "Only search below this directory")
	limit := fs.Int("limit", 0, "Maximum number of results (0 = unlimited)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireArgs(fs.Args(), 1, "find [-regex] [-under dir] [-limit n] <term>"); err != nil {
		return err
	}

	term := fs.Arg(0)
	opts := repository.Search(term)
	if *useRegex {
		re, err := regexp.Compile(term)
		if err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
		opts = repository.Regex(re)
	}
	opts = opts.Under(*under).WithLimit(*limit)

	found, err := wait(ctx, func(cb repository.Callback[[]*store.Info]) {
		e.repo.FindAssets(ctx, opts, cb)
	})
	if err != nil {
		return err
	}
	printTable(found)
	return nil
}

func cmdCheckout(ctx context.Context, e *env, args []string) error {
	if err := requireArgs(args, 2, "checkout <path> <who>"); err != nil {
		return err
	}
	checkedOut, who := true, args[1]
	return patchInfo(ctx, e, args[0], store.InfoPatch{CheckedOut: &checkedOut, CheckedOutBy: &who})
}

func cmdCheckin(ctx context.Context, e *env, args []string) error {
	if err := requireArgs(args, 1, "checkin <path>"); err != nil {
		return err
	}
	checkedOut, who := false, ""
	return patchInfo(ctx, e, args[0], store.InfoPatch{CheckedOut: &checkedOut, CheckedOutBy: &who})
}

func patchInfo(ctx context.Context, e *env, path string, patch store.InfoPatch) error {
	info, err := wait(ctx, func(cb repository.Callback[*store.Info]) {
		e.repo.UpdateAssetInfo(ctx, repository.Path(path), patch, cb)
	})
	if err != nil {
		return err
	}
	return printJSON(info)
}

func cmdMetrics(ctx context.Context, e *env, _ []string) error {
	if e.metrics == nil || e.metrics.Server == nil {
		return errors.New("metrics are disabled")
	}
	return e.metrics.Server.Start(ctx)
}

// ============================================================================
// Output
// ============================================================================

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(infos []*store.Info) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, info := range infos {
		switch {
		case info.IsDirectory():
			fmt.Fprintf(w, "dir\t-\t%s\t%s/\n", info.Created.Format(time.DateTime), info.Path)
		default:
			mark := ""
			if info.CheckedOut {
				mark = " [checked out by " + info.CheckedOutBy + "]"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s%s\n",
				info.ContentType, info.Size, info.Modified.Format(time.DateTime), info.Path, mark)
		}
	}
	_ = w.Flush()
}

// printProgress reports transfer progress on stderr.
func printProgress(ev repository.Event) {
	if ev.Kind != repository.EventProgress || ev.Progress == nil {
		return
	}
	p := ev.Progress
	fmt.Fprintf(os.Stderr, "%s %s: %d bytes (%d B/ms)\n", p.Type, p.Path, p.BytesRead, p.Rate)
}
