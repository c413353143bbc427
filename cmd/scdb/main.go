// scdb is a CLI for interacting with scdb store directories.
//
// Usage:
//
//	scdb [flags] <command> [args...]
//	scdb [flags]                        Start an interactive REPL
//
// Flags:
//
//	-d, --dir string       Store directory (default ".")
//	-c, --config string    Explicit JWCC config file path
//
// Commands:
//
//	set <key> <value> [--ttl seconds]   Insert or update a key
//	get <key>                           Retrieve a key's value
//	delete <key>                        Remove a key
//	search <term> [--skip N] [--limit N]  List keys starting with term
//	clear                               Remove every key
//	compact                             Rewrite data files, dropping dead entries
//	config                              Write effective options to scdb.jsonc in dir
//
// REPL commands (same verbs, space separated, plus):
//
//	help                                Show available commands
//	exit / quit / q                     Exit
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/sopherapps/scdb"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("scdb", flag.ExitOnError)

	dir := fs.StringP("dir", "d", ".", "store directory")
	configPath := fs.StringP("config", "c", "", "explicit JWCC config file path")
	ttl := fs.Uint64("ttl", 0, "time to live in seconds, for the set command (0 = never expires)")
	skip := fs.Int("skip", 0, "number of matches to skip, for the search command")
	limit := fs.Int("limit", 0, "max matches to return, for the search command (0 = unbounded)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: scdb [flags] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands: set, get, delete, search, clear, compact\n")
		fmt.Fprintf(os.Stderr, "With no command, scdb starts an interactive REPL.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	opts, err := scdb.LoadConfig(*dir, *configPath, scdb.Options{})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := scdb.Open(*dir, opts)
	if err != nil {
		return fmt.Errorf("opening store at %q: %w", *dir, err)
	}
	defer store.Close()

	rest := fs.Args()
	if len(rest) == 0 {
		repl := &REPL{store: store, dir: *dir, opts: opts}
		return repl.Run()
	}

	return dispatch(store, rest[0], rest[1:], *dir, opts, *ttl, *skip, *limit)
}

func dispatch(store *scdb.Store, cmd string, args []string, dir string, opts scdb.Options, ttl uint64, skip, limit int) error {
	switch cmd {
	case "set":
		return cmdSet(store, args, ttl, os.Stdout)
	case "get":
		return cmdGet(store, args, os.Stdout)
	case "delete", "del":
		return cmdDelete(store, args, os.Stdout)
	case "search":
		return cmdSearch(store, args, skip, limit, os.Stdout)
	case "clear":
		return store.Clear()
	case "compact":
		return store.Compact()
	case "config":
		return cmdConfig(dir, opts, os.Stdout)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdSet(store *scdb.Store, args []string, ttl uint64, out io.Writer) error {
	if len(args) < 2 {
		return errors.New("usage: set <key> <value>")
	}
	if err := store.Set([]byte(args[0]), []byte(args[1]), ttl); err != nil {
		return err
	}
	fmt.Fprintf(out, "OK\n")
	return nil
}

func cmdGet(store *scdb.Store, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errors.New("usage: get <key>")
	}
	value, err := store.Get([]byte(args[0]))
	if err != nil {
		return err
	}
	if value == nil {
		fmt.Fprintln(out, "(not found)")
		return nil
	}
	fmt.Fprintln(out, string(value))
	return nil
}

func cmdDelete(store *scdb.Store, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errors.New("usage: delete <key>")
	}
	if err := store.Delete([]byte(args[0])); err != nil {
		return err
	}
	fmt.Fprintf(out, "OK\n")
	return nil
}

// cmdConfig writes the store's effective options out as a JWCC config file
// (scdb.jsonc, in dir), so they can be hand-edited and reloaded on the next
// Open.
func cmdConfig(dir string, opts scdb.Options, out io.Writer) error {
	path := filepath.Join(dir, scdb.ConfigFileName)
	if err := scdb.SaveConfig(path, opts); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", path)
	return nil
}

func cmdSearch(store *scdb.Store, args []string, skip, limit int, out io.Writer) error {
	if len(args) < 1 {
		return errors.New("usage: search <term>")
	}
	results, err := store.Search([]byte(args[0]), skip, limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "(no matches)")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(out, "%s = %s\n", r.Key, r.Value)
	}
	return nil
}

// REPL is the interactive command loop.
type REPL struct {
	store *scdb.Store
	liner *liner.State
	dir   string
	opts  scdb.Options
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".scdb_history")
}

// Run starts the REPL loop, reading commands until exit/quit/q or EOF.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("scdb - a hash-indexed key-value store")
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("scdb> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if r.dispatchLine(cmd, args) {
			break
		}
	}

	r.saveHistory()
	return nil
}

// dispatchLine executes one REPL command, reporting errors to stdout rather
// than returning them (so a bad command doesn't end the session). It
// returns true when the REPL should stop.
func (r *REPL) dispatchLine(cmd string, args []string) bool {
	switch cmd {
	case "exit", "quit", "q":
		fmt.Println("Bye!")
		return true

	case "help", "?":
		r.printHelp()

	case "set":
		ttl := uint64(0)
		if len(args) >= 3 {
			if v, err := strconv.ParseUint(args[2], 10, 64); err == nil {
				ttl = v
			}
		}
		if err := cmdSet(r.store, args, ttl, os.Stdout); err != nil {
			fmt.Printf("Error: %v\n", err)
		}

	case "get":
		if err := cmdGet(r.store, args, os.Stdout); err != nil {
			fmt.Printf("Error: %v\n", err)
		}

	case "del", "delete":
		if err := cmdDelete(r.store, args, os.Stdout); err != nil {
			fmt.Printf("Error: %v\n", err)
		}

	case "search":
		if err := cmdSearch(r.store, args, 0, 0, os.Stdout); err != nil {
			fmt.Printf("Error: %v\n", err)
		}

	case "clear":
		if err := r.store.Clear(); err != nil {
			fmt.Printf("Error: %v\n", err)
		} else {
			fmt.Println("OK")
		}

	case "compact":
		if err := r.store.Compact(); err != nil {
			fmt.Printf("Error: %v\n", err)
		} else {
			fmt.Println("OK")
		}

	case "config":
		if err := cmdConfig(r.dir, r.opts, os.Stdout); err != nil {
			fmt.Printf("Error: %v\n", err)
		}

	default:
		fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
	}

	return false
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{"set", "get", "del", "delete", "search", "clear", "compact", "config", "help", "exit", "quit", "q"}

	var completions []string
	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}
	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  set <key> <value> [ttl]   Insert or update a key, ttl in seconds")
	fmt.Println("  get <key>                 Retrieve a key's value")
	fmt.Println("  del <key>                 Delete a key")
	fmt.Println("  search <term>             List keys starting with term")
	fmt.Println("  clear                     Remove every key")
	fmt.Println("  compact                   Rewrite data files, dropping dead entries")
	fmt.Println("  config                    Write effective options to scdb.jsonc in the store dir")
	fmt.Println("  help                      Show this help")
	fmt.Println("  exit / quit / q           Exit")
}
