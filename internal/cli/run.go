package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/shortify/internal/pipeline"
)

func run(cmd *cobra.Command, input string) error {
	outDir, _ := cmd.Flags().GetString("out")
	transcript, _ := cmd.Flags().GetString("transcript")
	burn, _ := cmd.Flags().GetBool("burn-subtitles")
	noRender, _ := cmd.Flags().GetBool("no-render")

	engine, err := loadEngine(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 3*time.Hour)
	defer cancel()

	cfg := pipeline.Config{
		InputMP4:       absIn,
		TranscriptPath: transcript,
		OutDir:         outDir,
		Render:         !noRender,
		BurnSubtitles:  burn,
		Style:          styleFromFlags(cmd, engine),
		Engine:         engine,
		Providers:      providersFromEnv(),
		Log:            log,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if fi, err := os.Stat(outDir); err == nil && !fi.IsDir() {
		return fmt.Errorf("out %s: not a directory", outDir)
	}

	_, runDir, err := pipeline.Run(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(runDir, "manifest.json"))
	return nil
}

func plan(cmd *cobra.Command, transcriptPath string) error {
	outDir, _ := cmd.Flags().GetString("out")
	engine, err := loadEngine(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := pipeline.Config{
		TranscriptPath: transcriptPath,
		OutDir:         outDir,
		Style:          styleFromFlags(cmd, engine),
		Engine:         engine,
		Providers:      providersFromEnv(),
		Log:            log,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	res, _, err := pipeline.Run(ctx, cfg)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res.Manifest)
}
