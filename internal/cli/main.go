package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := newRootCmd()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "shortify",
		Short:        "Caption segmentation and highlight clip windowing for long videos",
		SilenceUsage: true,
	}
	root.SilenceErrors = true

	root.PersistentFlags().String("config", "", "Engine config YAML (tokenizer, captions, windows, style, retry)")
	root.PersistentFlags().String("log", getenvDefault("LOG_MODE", "dev"), "Log mode: dev or prod")

	root.AddCommand(newRunCmd(), newPlanCmd(), newServeCmd(), newWorkerCmd())
	return root
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <input>",
		Short: "Cut captioned highlight clips from a local MP4",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}
	cmd.Flags().String("out", "out", "Output directory")
	cmd.Flags().Int("clips", 0, "Max number of clips (0 keeps the config value)")
	cmd.Flags().String("transcript", "", "Use this JSON transcript instead of transcribing")
	cmd.Flags().Bool("burn-subtitles", true, "Burn styled captions into the clips")
	cmd.Flags().Bool("no-render", false, "Plan clips and write the manifest without rendering video")
	addStyleFlags(cmd)
	return cmd
}

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <transcript.json>",
		Short: "Print captions and clip windows for a transcript as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return plan(cmd, args[0])
		},
	}
	cmd.Flags().String("out", filepath.Join(os.TempDir(), "shortify-plan"), "Where the manifest copy is written")
	cmd.Flags().Int("clips", 0, "Max number of clips (0 keeps the config value)")
	addStyleFlags(cmd)
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and execute submitted jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd)
		},
	}
	cmd.Flags().String("addr", getenvDefault("HTTP_ADDR", ":8080"), "Listen address")
	cmd.Flags().String("work-dir", getenvDefault("SHORTIFY_WORK_DIR", "out"), "Per-job output root")
	cmd.Flags().Int("concurrency", 2, "Jobs executed at once in this process")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume jobs from Kafka and execute them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return worker(cmd)
		},
	}
	cmd.Flags().String("work-dir", getenvDefault("SHORTIFY_WORK_DIR", "out"), "Per-job output root")
	return cmd
}

func addStyleFlags(cmd *cobra.Command) {
	cmd.Flags().String("style", "", "Caption style preset (classic, modern, bold, minimal, neon, tiktok)")
	cmd.Flags().String("animation", "", "Caption animation override")
	cmd.Flags().String("position", "", "Caption position override (top, center, bottom)")
}
