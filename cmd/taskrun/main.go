// Command taskrun plays tasktree scripts, either headless for a bounded
// number of pumps or in an Ebitengine window with the task tree drawn on
// screen.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/phanxgames/tasktree"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// checkWorkers bounds how many scripts check loads at once.
const checkWorkers = 4

var (
	verbose    bool
	frames     int
	configPath string
	window     bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "taskrun",
	Short: "Run tasktree scripts",
	Long: `taskrun drives a tasktree scheduler from a YAML script.

Each script declares tasks and scenes and lists the steps to perform, one
step per pump. Scripted tasks trace their lifecycle and messages to stdout.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		config.Encoding = "console"
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run <script.yaml>",
	Short: "Run a script",
	Long: `Run a script until every step has executed.

Headless runs stop with an error if the script has not finished after
--frames pumps. With --window the scheduler is pumped by Ebitengine until
the window is closed.`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

var checkCmd = &cobra.Command{
	Use:   "check <script.yaml>...",
	Short: "Validate scripts without running them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  checkScripts,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	runCmd.Flags().IntVar(&frames, "frames", 1000, "maximum number of pumps when headless")
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "run configuration file (YAML)")
	runCmd.Flags().BoolVar(&window, "window", false, "open a window instead of running headless")

	rootCmd.AddCommand(runCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadScript(path string) (*tasktree.Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	sc, err := tasktree.LoadScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

func loadRunConfig(path string) (tasktree.RunConfig, error) {
	if path == "" {
		return tasktree.LoadRunConfig(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return tasktree.RunConfig{}, fmt.Errorf("read run config: %w", err)
	}
	return tasktree.LoadRunConfig(data)
}

func runScript(cmd *cobra.Command, args []string) error {
	sc, err := loadScript(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadRunConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Title == "" {
		cfg.Title = "taskrun: " + filepath.Base(args[0])
	}
	runLog := logger.With(zap.String("run", uuid.NewString()))
	cfg.Scheduler.Logger = runLog

	s := tasktree.NewScheduler(cfg.Scheduler)
	r := tasktree.NewScriptRunner(s, sc, cmd.OutOrStdout())

	if window {
		runLog.Info("opening window", zap.String("title", cfg.Title), zap.Int("tps", cfg.TPS))
		return tasktree.Run(s, cfg)
	}

	n := runHeadless(s, r, cfg, frames)
	runLog.Debug("script finished",
		zap.String("script", args[0]),
		zap.Int("pumps", n),
		zap.Int("tasks", s.Len()))
	if !r.Done() {
		return fmt.Errorf("script %s did not finish within %d frames", args[0], frames)
	}
	return nil
}

// runHeadless pumps s until the runner is done or limit pumps have run and
// returns the number of pumps.
func runHeadless(s *tasktree.Scheduler, r *tasktree.ScriptRunner, cfg tasktree.RunConfig, limit int) int {
	delta := 1.0
	if cfg.Delta == tasktree.DeltaSeconds {
		delta = 1 / float64(cfg.TPS)
	}
	n := 0
	for n < limit && !r.Done() {
		s.Pump(delta)
		n++
	}
	return n
}

// checkScripts loads every script concurrently and reports them in argument
// order. The first failure is returned.
func checkScripts(cmd *cobra.Command, args []string) error {
	scripts := make([]*tasktree.Script, len(args))
	var g errgroup.Group
	g.SetLimit(checkWorkers)
	for i, path := range args {
		g.Go(func() error {
			sc, err := loadScript(path)
			if err != nil {
				return err
			}
			scripts[i] = sc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, sc := range scripts {
		fmt.Fprintf(cmd.OutOrStdout(), "ok  %s: %d tasks, %d scenes, %d steps\n",
			args[i], len(sc.Tasks), len(sc.Scenes), len(sc.Steps))
	}
	return nil
}
