// Package interactive provides the interactive command-line interface
// for devtree-server.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/devtree-io/devtree-go/pkg/alias"
	"github.com/devtree-io/devtree-go/pkg/pathtree"
	"github.com/devtree-io/devtree-go/pkg/server"
)

// Server is the part of the server the shell drives.
type Server interface {
	Tree() *pathtree.Tree
	Resolve(path string) (alias.OriginalSource, bool)
	BadPaths() []string
	Aliases() []server.AliasInfo
	AddRuntimeAlias(path, source string) (bool, error)
	TriggerHardwareDetect() error
	Plugins() []string
}

// Shell handles interactive mode for devtree-server.
type Shell struct {
	rl *readline.Instance
}

// New creates a shell reading from the terminal. Its writers can carry log
// output before a server is running.
func New() (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "devtree> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("tree"),
			readline.PcItem("resolve"),
			readline.PcItem("badpaths"),
			readline.PcItem("aliases"),
			readline.PcItem("alias"),
			readline.PcItem("plugins"),
			readline.PcItem("detect"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{rl: rl}, nil
}

// Stdout returns a writer that does not interfere with the prompt. Use it
// for log output.
func (s *Shell) Stdout() io.Writer { return s.rl.Stdout() }

func (s *Shell) Stderr() io.Writer { return s.rl.Stderr() }

// Close releases the terminal. Run closes the shell itself.
func (s *Shell) Close() error { return s.rl.Close() }

// Run reads commands for srv until quit, EOF or ctx ends. cancel is called
// when the user quits.
func (s *Shell) Run(ctx context.Context, srv Server, cancel context.CancelFunc) {
	defer s.rl.Close()

	printHelp(s.rl.Stdout())
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}
		if Exec(srv, s.rl.Stdout(), line) {
			cancel()
			return
		}
	}
}

// Exec runs one command line and reports whether the user asked to quit.
func Exec(srv Server, w io.Writer, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "help", "?":
		printHelp(w)
	case "tree", "t":
		cmdTree(srv, w, args)
	case "resolve", "r":
		cmdResolve(srv, w, args)
	case "badpaths", "b":
		cmdBadPaths(srv, w)
	case "aliases", "a":
		cmdAliases(srv, w)
	case "alias":
		cmdAlias(srv, w, args)
	case "plugins":
		for _, p := range srv.Plugins() {
			fmt.Fprintln(w, p)
		}
	case "detect":
		if err := srv.TriggerHardwareDetect(); err != nil {
			fmt.Fprintf(w, "Hardware detect: %v\n", err)
		} else {
			fmt.Fprintln(w, "Hardware detect done")
		}
	case "quit", "exit", "q":
		fmt.Fprintln(w, "Exiting...")
		return true
	default:
		fmt.Fprintf(w, "Unknown command: %s (type 'help')\n", cmd)
	}
	return false
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `Commands:
  tree [path]            Show the path tree, or the subtree at path
  resolve <path>         Follow aliases from path to its source
  badpaths               List aliases that do not resolve
  aliases                List alias nodes
  alias <path> <source>  Add an alias
  plugins                List loaded plugins
  detect                 Run hardware detection
  quit                   Stop the server
`)
}

func cmdTree(srv Server, w io.Writer, args []string) {
	tree := srv.Tree()
	if len(args) == 0 {
		if err := tree.Dump(w); err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
		}
		return
	}
	n, ok := tree.FindNodeByPath(args[0])
	if !ok {
		fmt.Fprintf(w, "No node at %s\n", args[0])
		return
	}
	printNode(w, n, 0)
}

func printNode(w io.Writer, n pathtree.Node, depth int) {
	fmt.Fprintf(w, "%s%s  %s\n", strings.Repeat("  ", depth), n.FullPath(), n.Kind())
	for _, c := range n.Children() {
		printNode(w, c, depth+1)
	}
}

func cmdResolve(srv Server, w io.Writer, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(w, "Usage: resolve <path>")
		return
	}
	src, ok := srv.Resolve(args[0])
	if !ok {
		fmt.Fprintf(w, "%s does not resolve\n", args[0])
		return
	}
	fmt.Fprintf(w, "%s -> %s\n", args[0], src.Path)
	if src.IsDevice() {
		fmt.Fprintf(w, "  Device:    %s\n", src.DeviceName)
	}
	if src.InterfaceName != "" {
		fmt.Fprintf(w, "  Interface: %s\n", src.InterfaceName)
	}
	if src.HasSensor {
		fmt.Fprintf(w, "  Sensor:    %d\n", src.Sensor)
	}
	if !src.Transform.IsIdentity() {
		fmt.Fprintf(w, "  Transform: %s\n", src.Transform)
	}
}

func cmdBadPaths(srv Server, w io.Writer) {
	bad := srv.BadPaths()
	if len(bad) == 0 {
		fmt.Fprintln(w, "All aliases resolve")
		return
	}
	for _, p := range bad {
		fmt.Fprintln(w, p)
	}
}

func cmdAliases(srv Server, w io.Writer) {
	for _, a := range srv.Aliases() {
		origin := "config"
		if a.Automatic {
			origin = "auto"
		}
		fmt.Fprintf(w, "%-32s %-6s %s\n", a.Path, origin, a.Source)
	}
}

func cmdAlias(srv Server, w io.Writer, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(w, "Usage: alias <path> <source>")
		return
	}
	changed, err := srv.AddRuntimeAlias(args[0], strings.Join(args[1:], " "))
	switch {
	case err != nil:
		fmt.Fprintf(w, "Error: %v\n", err)
	case changed:
		fmt.Fprintf(w, "Alias %s added\n", args[0])
	default:
		fmt.Fprintf(w, "Alias %s unchanged\n", args[0])
	}
}
