// Command devtree-client connects to a devtree server and prints the
// reports arriving at one or more paths.
//
// Usage:
//
//	devtree-client [flags] <path>...
//
// Flags:
//
//	-addr string      Server address (default "localhost:3883")
//	-discover         Find the server via mDNS instead of -addr
//	-name string      Server name to look for when discovering
//	-tree             Print the path tree once it arrives
//	-log-level string Log level: debug, info, warn, error (default "warn")
//
// Examples:
//
//	devtree-client /me/head /me/trigger
//	devtree-client -discover -name lab -tree /me/head
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devtree-io/devtree-go/pkg/client"
	"github.com/devtree-io/devtree-go/pkg/discovery"
	"github.com/devtree-io/devtree-go/pkg/report"
	"github.com/devtree-io/devtree-go/pkg/transport"
)

func main() {
	addr := flag.String("addr", "localhost"+transport.DefaultAddress, "Server address")
	discover := flag.Bool("discover", false, "Find the server via mDNS instead of -addr")
	name := flag.String("name", "", "Server name to look for when discovering")
	showTree := flag.Bool("tree", false, "Print the path tree once it arrives")
	logLevel := flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: devtree-client [flags] <path>...\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 && !*showTree {
		flag.Usage()
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rc := client.DefaultRemoteConfig()
	rc.Address = *addr
	rc.Log = logger
	if *discover {
		rc.Locate = discovery.NewBrowser(discovery.DefaultBrowserConfig()).Locator(*name)
	}
	remote := client.NewRemote(ctx, rc)
	remote.OnStateChange(func(_, s transport.State) {
		logger.Info("connection", "state", s.String())
	})

	c := client.NewContext("devtree-client", remote, client.DefaultContextConfig())
	if err := run(ctx, c, remote.Notify(), os.Stdout, *showTree, flag.Args()); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "devtree-client: %v\n", err)
		os.Exit(1)
	}
}

// run waits for the tree, subscribes to paths and prints reports until ctx
// ends. notify, if not nil, wakes the loop early when data arrives.
func run(ctx context.Context, c *client.Context, notify <-chan struct{}, w io.Writer, showTree bool, paths []string) error {
	defer c.Close()

	if err := c.WaitForTree(ctx); err != nil {
		return fmt.Errorf("waiting for tree: %w", err)
	}
	if showTree {
		if err := c.Tree().Dump(w); err != nil {
			return err
		}
	}

	for _, path := range paths {
		iface, err := c.GetInterface(path)
		if err != nil {
			return err
		}
		for _, kind := range report.Kinds() {
			iface.RegisterCallback(kind, printReport(w), path)
		}
		if src, ok := iface.Source(); ok {
			fmt.Fprintf(w, "%s -> %s\n", path, src.Path)
		} else {
			fmt.Fprintf(w, "%s does not resolve yet\n", path)
		}
	}
	if len(paths) == 0 {
		return nil
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := c.Update(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-notify:
		case <-ticker.C:
		}
	}
}

func printReport(w io.Writer) client.Callback {
	return func(ts time.Time, r report.Report, userdata any) {
		fmt.Fprintf(w, "%s %-14s %-12s %+v\n", ts.Format("15:04:05.000"), userdata, r.Kind(), r)
	}
}
