package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/kir-gadjello/rehash/history"
	"github.com/kir-gadjello/rehash/picker"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func is_interactive(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// app carries what every subcommand resolves once: settings, logger and the
// history manager.
type app struct {
	settings Settings
	logger   *slog.Logger
	mgr      *history.Manager
}

func (a *app) setup(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = defaultConfigPath()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	s, err := resolveSettings(cmd, cfg, configPath)
	if err != nil {
		return err
	}
	a.settings = s
	a.logger = newLogger(cmd.ErrOrStderr(), s.LogLevel)
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) manager() (*history.Manager, error) {
	if a.mgr != nil {
		return a.mgr, nil
	}
	mgr, err := newManager(a.settings, a.logger)
	if err != nil {
		return nil, err
	}
	a.mgr = mgr
	return mgr, nil
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "A lightweight shell history manager with fuzzy search",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		// No subcommand: interactive search over global history
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInteractive(cmd, interactiveOptions{scope: history.ScopeGlobal, newline: true})
		},
	}
	rootCmd.PersistentFlags().String("database", "", "Path to the history database file")
	rootCmd.PersistentFlags().StringArray("source", nil, "Additional read-only history file to merge (repeatable)")
	rootCmd.PersistentFlags().String("config", "", "Path to the config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Debug logging on stderr")

	rootCmd.AddCommand(
		a.addCmd(),
		a.searchCmd(),
		a.interactiveCmd(),
		a.statsCmd(),
		a.clearCmd(),
		a.compactCmd(),
		a.importCmd(),
		sessionIDCmd(),
		initCmd(),
		a.doctorCmd(),
	)
	return rootCmd
}

func (a *app) addCmd() *cobra.Command {
	var exitCode int
	cmd := &cobra.Command{
		Use:   "add [flags] -- <command>",
		Short: "Add a command to history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			return mgr.Add(strings.Join(args, " "), exitCode)
		},
	}
	cmd.Flags().IntVarP(&exitCode, "exit-code", "e", 0, "Exit code of the command")
	return cmd
}

func (a *app) searchCmd() *cobra.Command {
	scope := history.ScopeGlobal
	var maxResults int
	var unique bool
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search history with fuzzy matching",
		Long:  "Prints matching commands best match first. Without a query, prints the most recent commands oldest first.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			if maxResults <= 0 {
				maxResults = a.settings.MaxResults
			}

			var results []history.Entry
			if query := strings.Join(args, " "); query != "" {
				results = mgr.Search(query, scope, 0)
				if unique {
					results = history.Unique(results)
				}
				if len(results) > maxResults {
					results = results[:maxResults]
				}
			} else {
				results = mgr.ListRecent(scope, -1)
				if unique {
					results = reversed(history.Unique(reversed(results)))
				}
				if len(results) > maxResults {
					results = results[len(results)-maxResults:]
				}
			}

			out := cmd.OutOrStdout()
			for _, e := range results {
				fmt.Fprintln(out, e.Command)
			}
			return nil
		},
	}
	cmd.Flags().VarP(&scope, "scope", "s", "Search scope: global, session, or local")
	cmd.Flags().IntVarP(&maxResults, "max-results", "m", 0, fmt.Sprintf("Maximum number of results (default %d)", defaultMaxResults))
	cmd.Flags().BoolVarP(&unique, "unique", "u", false, "Print each command once")
	return cmd
}

// reversed returns a reversed copy of entries.
func reversed(entries []history.Entry) []history.Entry {
	out := make([]history.Entry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}

type interactiveOptions struct {
	scope      history.Scope
	prefix     string
	outputFile string
	clipboard  bool
	newline    bool
}

func (a *app) interactiveCmd() *cobra.Command {
	opts := interactiveOptions{scope: history.ScopeGlobal}
	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Interactive fuzzy search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInteractive(cmd, opts)
		},
	}
	cmd.Flags().VarP(&opts.scope, "scope", "s", "Initial search scope: global, session, or local")
	cmd.Flags().StringVarP(&opts.prefix, "prefix", "p", "", "Prefill the search query with this text")
	cmd.Flags().StringVar(&opts.outputFile, "output-file", "", "Write result to file instead of stdout (for shell integration)")
	cmd.Flags().BoolVarP(&opts.clipboard, "clipboard", "x", false, "Also copy the selected command to the clipboard")
	return cmd
}

func (a *app) runInteractive(cmd *cobra.Command, opts interactiveOptions) error {
	mgr, err := a.manager()
	if err != nil {
		return err
	}

	// Draw on stderr when stdout is captured by the shell
	var screen io.Writer = os.Stdout
	if !is_interactive(os.Stdout.Fd()) {
		screen = os.Stderr
	}
	width, height := terminalSize(screen)

	session := picker.New(mgr.Snapshot(), opts.scope, mgr.Origin(), mgr.Scorer(), opts.prefix, listRows(height))
	choice, ok, err := runPicker(session, screen, width, height)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if opts.clipboard {
		if err := clipboard.WriteAll(choice); err != nil {
			a.logger.Warn("failed to copy to clipboard", "error", err)
		}
	}
	return writeSelection(cmd.OutOrStdout(), opts.outputFile, choice, opts.newline)
}

func writeSelection(w io.Writer, outputFile, choice string, newline bool) error {
	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(choice), 0o600); err != nil {
			return fmt.Errorf("failed to write selection: %w", err)
		}
		return nil
	}
	if newline {
		choice += "\n"
	}
	_, err := io.WriteString(w, choice)
	return err
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			st := mgr.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total commands: %s\n", humanize.Comma(int64(st.Total)))
			fmt.Fprintf(out, "Unique commands: %s\n", humanize.Comma(int64(st.Unique)))
			fmt.Fprintf(out, "Directory-local commands: %s\n", humanize.Comma(int64(st.Local)))
			return nil
		},
	}
}

func (a *app) clearCmd() *cobra.Command {
	scope := history.ScopeGlobal
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear history",
		Long:  "Removes entries from the primary history file. Merge sources are never modified.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			if err := mgr.Clear(scope); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
			return nil
		},
	}
	cmd.Flags().VarP(&scope, "scope", "s", "Clear scope: global, session, or local")
	return cmd
}

func (a *app) compactCmd() *cobra.Command {
	var maxEntries int
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Keep only the most recent entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("max") {
				maxEntries = a.settings.MaxEntries
				if maxEntries <= 0 {
					return errors.New("no limit given: pass --max or set max_entries in the config")
				}
			}
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			before := mgr.Store().Count()
			if err := mgr.Compact(maxEntries); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Kept %d of %d entries\n", mgr.Store().Count(), before)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxEntries, "max", 0, "Number of entries to keep")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import [shell]",
		Short: "Import a shell's own history file (zsh, bash, fish)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := detectShell().Name
			if len(args) == 1 {
				shell = args[0]
			}
			if file == "" {
				p, err := shellHistoryPath(shell)
				if err != nil {
					return err
				}
				file = p
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open %s history: %w", shell, err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			entries, err := history.ParseShellHistory(shell, f, info.ModTime())
			if err != nil {
				return err
			}
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			n, err := mgr.Import(entries)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d commands from %s\n", n, file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "History file to read (default: the shell's usual location)")
	return cmd
}

func sessionIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session-id",
		Short: "Print a new session id for " + history.SessionEnv,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), uuid.NewString())
			return nil
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [shell]",
		Short: "Print shell integration scripts (zsh, bash, fish)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := detectShell().Name
			if len(args) == 1 {
				shell = args[0]
			}
			return printShellIntegration(cmd.OutOrStdout(), shell)
		},
	}
}

func (a *app) doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and history files",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "rehash doctor")
			fmt.Fprintln(out, "=============")

			if _, err := os.Stat(a.settings.ConfigPath); err == nil {
				fmt.Fprintf(out, "✅ Configuration : Found (%s)\n", a.settings.ConfigPath)
			} else {
				fmt.Fprintf(out, "⚠️  Configuration : Missing (%s), using defaults\n", a.settings.ConfigPath)
			}

			if mgr, err := a.manager(); err != nil {
				fmt.Fprintf(out, "❌ History file  : %v\n", err)
			} else if err := checkWritable(mgr.Store().Path()); err != nil {
				fmt.Fprintf(out, "❌ History file  : Not writable (%v)\n", err)
			} else {
				fmt.Fprintf(out, "✅ History file  : %s (%d entries)\n", mgr.Store().Path(), mgr.Store().Count())
			}

			for _, src := range a.settings.Sources {
				if f, err := os.Open(src); err != nil {
					fmt.Fprintf(out, "⚠️  Merge source  : %s unreadable, skipped (%v)\n", src, err)
				} else {
					f.Close()
					fmt.Fprintf(out, "✅ Merge source  : %s\n", src)
				}
			}

			if os.Getenv(history.SessionEnv) != "" {
				fmt.Fprintf(out, "✅ %s: Set\n", history.SessionEnv)
			} else {
				fmt.Fprintf(out, "⚠️  %s: Not set (run '%s init' in your shell rc)\n", history.SessionEnv, appName)
			}
		},
	}
}

// checkWritable opens path for appending without writing to it.
func checkWritable(path string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	return f.Close()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
