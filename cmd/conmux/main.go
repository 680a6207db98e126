package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"conmux/internal/config"
	"conmux/internal/follow"
	"conmux/internal/runner"
	"conmux/pkg/ansi"
	"conmux/pkg/console"

	"github.com/spf13/cobra"
)

var (
	cfgFile string

	logPath       string
	prefix        string
	colourMode    string
	userMode      bool
	logStderr     bool
	stderrHeader  bool
	announceLog   bool
	batchInterval time.Duration

	usePTY        bool
	showStats     bool
	statsInterval time.Duration
	listenAddr    string
	workDir       string
	extraEnv      []string
)

// exitCode is the child's exit code, handed to os.Exit after cobra has
// unwound and all defers have run.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "conmux",
	Short: "Conmux - console output multiplexer",
	Long: `Conmux multiplexes program output onto the screen and an append-only
log file. Normal output passes straight through; error output is held
back briefly and printed as one visually delimited block, so errors
never shred the surrounding lines.`,
}

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Run a command with its output multiplexed",
	Long: `Run a command with stdout and stderr fanned into the multiplexer.

The child's stdout passes through as it arrives. Its stderr is batched:
writes arriving within the batch interval of each other are collected
and printed as one delimited block once the stream goes quiet. With
--log every byte of both streams is also appended, uncolourized, to the
log file.

--pty runs the child on a pseudo-terminal so programs that check for a
terminal keep their colours and interactive prompts. --stats prints
periodic resource usage of the child and a closing summary. --listen
starts a small HTTP server where browsers can follow the output live.

The child's exit code becomes conmux's exit code.`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChild(cmd, args)
	},
}

func runChild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	overlayFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	colour := cfg.ColourEnabled()
	pal := ansi.NewPalette(colour)
	con, err := console.New(console.Config{
		Colour:            colour,
		LogPath:           cfg.Log,
		Prefix:            cfg.Prefix,
		LogStderr:         cfg.LogStderr,
		PrintStderrHeader: cfg.StderrHeader,
		BatchInterval:     cfg.BatchInterval,
		AnnounceLog:       cfg.AnnounceLog,
		Highlights:        resolveHighlights(pal, cfg.Highlights),
	})
	if err != nil {
		return err
	}
	defer func() { _ = con.Close() }()
	con.SetUserMode(cfg.UserMode)
	console.Install(con)

	var out io.Writer = con.Out()
	var errW io.Writer = con.Err()
	if cfg.Listen != "" {
		hub := follow.NewHub()
		srv, err := follow.NewServer(hub, follow.Options{
			Addr:    cfg.Listen,
			Prefix:  cfg.Prefix,
			LogPath: cfg.Log,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Start(); err != nil {
				slog.Error("follow server failed", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		out = follow.NewTap(out, hub, follow.StreamOut)
		errW = follow.NewTap(errW, hub, follow.StreamErr)
	}

	opts := runner.Options{
		PTY:    cfg.PTY,
		Stdout: out,
		Stderr: errW,
		Stdin:  os.Stdin,
		Dir:    workDir,
		Env:    extraEnv,
	}
	var stopStats func()
	if cfg.Stats {
		opts.OnStart = func(pid int) {
			stopStats = runner.Watch(con, pid, cfg.StatsInterval)
		}
	}

	res, err := runner.Run(cmd.Context(), args[0], args[1:], opts)
	if stopStats != nil {
		stopStats()
	}
	if err != nil {
		return err
	}
	if res.Signal != "" {
		con.Statf(console.StatusWarn, "child killed by signal: %s", res.Signal)
	}
	exitCode = res.ExitCode
	return nil
}

// overlayFlags copies every flag the user set on the command line over
// the loaded configuration, so explicit flags beat the config file.
func overlayFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log") {
		cfg.Log = logPath
	}
	if flags.Changed("prefix") {
		cfg.Prefix = prefix
	}
	if flags.Changed("colour") {
		cfg.Colour = colourMode
	}
	if flags.Changed("user-mode") {
		cfg.UserMode = userMode
	}
	if flags.Changed("log-stderr") {
		cfg.LogStderr = logStderr
	}
	if flags.Changed("stderr-header") {
		cfg.StderrHeader = stderrHeader
	}
	if flags.Changed("announce-log") {
		cfg.AnnounceLog = announceLog
	}
	if flags.Changed("batch-interval") {
		cfg.BatchInterval = batchInterval
	}
	if flags.Changed("pty") {
		cfg.PTY = usePTY
	}
	if flags.Changed("stats") {
		cfg.Stats = showStats
	}
	if flags.Changed("stats-interval") {
		cfg.StatsInterval = statsInterval
	}
	if flags.Changed("listen") {
		cfg.Listen = listenAddr
	}
}

// resolveHighlights turns the config's word to colour-name map into the
// word to escape-sequence map the console expects. Unknown or empty
// colour names fall back to the default highlight colour.
func resolveHighlights(pal *ansi.Palette, words map[string]string) map[string]string {
	if len(words) == 0 {
		return nil
	}
	resolved := make(map[string]string, len(words))
	for word, name := range words {
		if seq, ok := pal.Named(name); ok {
			resolved[word] = seq
		} else {
			resolved[word] = ""
		}
	}
	return resolved
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default: ./conmux.yaml if present)")

	runCmd.Flags().StringVarP(&logPath, "log", "l", "", "Append raw output to this file")
	runCmd.Flags().StringVar(&prefix, "prefix", "conmux", "Prefix for timestamped lines and error-block headers")
	runCmd.Flags().StringVar(&colourMode, "colour", config.ColourAuto, "Colour output: auto, always, or never")
	runCmd.Flags().BoolVar(&userMode, "user-mode", false, "Show only user-directed output on screen")
	runCmd.Flags().BoolVar(&logStderr, "log-stderr", true, "Mirror error output into the log file")
	runCmd.Flags().BoolVar(&stderrHeader, "stderr-header", true, "Open each error block with a delimiter and timestamp")
	runCmd.Flags().BoolVar(&announceLog, "announce-log", false, "Print one line naming the log file on startup")
	runCmd.Flags().DurationVar(&batchInterval, "batch-interval", 20*time.Millisecond, "Quiet period before an error block is flushed")
	runCmd.Flags().BoolVar(&usePTY, "pty", false, "Run the command on a pseudo-terminal (merges stderr into stdout)")
	runCmd.Flags().BoolVar(&showStats, "stats", false, "Print periodic resource usage of the child")
	runCmd.Flags().DurationVar(&statsInterval, "stats-interval", 2*time.Second, "Sampling period for --stats")
	runCmd.Flags().StringVar(&listenAddr, "listen", "", "Serve a live follow page on this host:port")
	runCmd.Flags().StringVar(&workDir, "dir", "", "Working directory for the command")
	runCmd.Flags().StringArrayVar(&extraEnv, "env", nil, "Extra environment for the command, KEY=VALUE (repeatable)")

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
