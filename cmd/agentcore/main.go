package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"agentcore/client"
	"agentcore/config"
	"agentcore/engine"
	"agentcore/trace"
)

var (
	version     = "0.1.0"
	cfgFile     string
	backendKind string
	model       string
	session     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "agentcore",
		Short: "Tool-calling agent runtime",
		Long: `Agentcore runs a turn-based agent loop against a configurable backend
(hosted API, local Ollama model, or an external decision script), dispatching
file capabilities inside a bound workspace.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&backendKind, "backend", "", "backend kind (anthropic, openai, ollama, script)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "model name override")

	runCmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run one prompt through the agent loop",
		Args:  cobra.ExactArgs(1),
		RunE:  runPrompt,
	}
	runCmd.Flags().StringVar(&session, "session", "", "session id to resume or create")
	rootCmd.AddCommand(runCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "trace [operation-id]",
		Short: "Show execution state for an operation, or list retained history",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showTrace,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentcore version %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if backendKind != "" {
		cfg.Backend.Kind = backendKind
	}
	if model != "" {
		cfg.Backend.Model = model
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// sharedEngine keeps one engine per process so `trace` after `run` sees the
// same tracker when used programmatically; as separate CLI invocations it
// simply reports the current process state.
var sharedEngine *engine.Engine

func getEngine() (*engine.Engine, error) {
	if sharedEngine != nil {
		return sharedEngine, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	sharedEngine = eng
	return eng, nil
}

func runPrompt(cmd *cobra.Command, args []string) error {
	eng, err := getEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := eng.Run(ctx, session, args[0])
	if err != nil {
		return err
	}

	switch outcome.Reason {
	case client.ReasonCompleted:
		fmt.Println(outcome.FinalText)
	case client.ReasonCancelled:
		fmt.Fprintln(os.Stderr, "run cancelled; session saved for resume")
	case client.ReasonTurnLimit:
		fmt.Fprintf(os.Stderr, "run stopped: turn limit (%d) reached\n", outcome.Turns)
	}

	if snap, ok := eng.Tracker().Snapshot(outcome.OperationID); ok {
		fmt.Fprintln(os.Stderr, trace.Summarize(snap))
	}
	return nil
}

func showTrace(cmd *cobra.Command, args []string) error {
	eng, err := getEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if len(args) == 1 {
		snap, ok := eng.Tracker().Snapshot(args[0])
		if !ok {
			return fmt.Errorf("no state for operation %s", args[0])
		}
		out, err := trace.ExportJSON(snap)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	for _, snap := range eng.Tracker().ActiveSnapshot() {
		fmt.Println(trace.Summarize(snap))
	}
	for _, snap := range eng.Tracker().History() {
		fmt.Println(trace.Summarize(snap))
	}
	return nil
}
