// Command uploader publishes one video to several YouTube and TikTok
// accounts in parallel.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"multiupload/internal/auth"
	"multiupload/internal/config"
	"multiupload/internal/logging"
	"multiupload/internal/orchestrator"
	"multiupload/internal/validator"
)

var errUploadsFailed = errors.New("one or more uploads failed")

type options struct {
	configFile string
	envFile    string
	metadata   string
	platforms  string
	retries    int
	setup      bool
	showLogs   bool
	validate   string
	verbose    bool
	logFile    string
}

func main() {
	var opts options
	flag.StringVar(&opts.configFile, "config", "config.json", "Configuration file (JSON, or YAML by extension)")
	flag.StringVar(&opts.envFile, "env", ".env", "Environment file holding TikTok client credentials")
	flag.StringVar(&opts.metadata, "metadata", "", "Video metadata file to upload")
	flag.StringVar(&opts.platforms, "platforms", "", "Targets overriding the metadata list, e.g. youtube_english,tiktok_japanese")
	flag.IntVar(&opts.retries, "retries", -1, "Retry attempts for transient failures (default from config)")
	flag.BoolVar(&opts.setup, "setup", false, "Write starter configuration and .env files")
	flag.BoolVar(&opts.showLogs, "logs", false, "Print the upload log")
	flag.StringVar(&opts.validate, "validate", "", "Validate a video file without uploading")
	flag.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	flag.StringVar(&opts.logFile, "log-file", "logs/uploader.log", "Diagnostic log file (empty to disable)")
	flag.Parse()

	logger, closer := logging.New(logging.Options{File: opts.logFile, Verbose: opts.verbose})
	err := run(opts, logger)
	closer.Close()

	switch {
	case errors.Is(err, errUploadsFailed):
		os.Exit(1)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case opts.setup:
		return setup(opts, os.Stdin, os.Stdout)
	case opts.showLogs:
		return showLogs(opts, os.Stdout)
	case opts.validate != "":
		return validate(ctx, opts.validate, logger, os.Stdout)
	case opts.metadata != "":
		return upload(ctx, opts, logger, os.Stdout)
	}
	flag.Usage()
	return nil
}

func upload(ctx context.Context, opts options, logger *slog.Logger, out io.Writer) error {
	if err := config.LoadEnv(opts.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	md, err := config.LoadMetadata(opts.metadata)
	if err != nil {
		return err
	}

	store := auth.NewStore(cfg, logger)
	orch := orchestrator.New(cfg, store, validator.New(nil, logger), logger)
	if opts.retries >= 0 {
		orch.MaxRetries = opts.retries
	}

	targets := strings.FieldsFunc(opts.platforms, func(r rune) bool { return r == ',' || r == ' ' })
	fmt.Fprintf(out, "Video: %s\n", md.VideoFile)

	report, err := orch.Run(ctx, md, targets)
	if err != nil {
		return err
	}
	printVideoInfo(out, report.Info, report.Warnings)
	report.WriteSummary(out)
	if !report.OK() {
		return errUploadsFailed
	}
	return nil
}

func validate(ctx context.Context, path string, logger *slog.Logger, out io.Writer) error {
	res := validator.New(nil, logger).Validate(ctx, path)
	if !res.Valid {
		fmt.Fprintf(out, "✗ %s is not valid: %v\n", path, res.Err)
		return errUploadsFailed
	}
	fmt.Fprintf(out, "✓ %s is valid\n", path)
	printVideoInfo(out, res.Info, res.Warnings)
	return nil
}

func printVideoInfo(out io.Writer, info *validator.VideoInfo, warnings []string) {
	if info != nil {
		duration := fmt.Sprintf("%.1fs", info.Duration)
		if info.Degraded {
			duration = "unknown"
		}
		vertical := "no"
		if info.Vertical() {
			vertical = "yes"
		}
		fmt.Fprintf(out, "\nVideo Info:\n")
		fmt.Fprintf(out, "  Resolution: %dx%d\n", info.Width, info.Height)
		fmt.Fprintf(out, "  Duration: %s\n", duration)
		fmt.Fprintf(out, "  Codec: %s\n", info.Codec)
		fmt.Fprintf(out, "  Size: %.1fMB\n", float64(info.Size)/(1<<20))
		fmt.Fprintf(out, "  Vertical: %s\n", vertical)
	}
	if len(warnings) > 0 {
		fmt.Fprintf(out, "\nWarnings:\n")
		for _, w := range warnings {
			fmt.Fprintf(out, "  - %s\n", w)
		}
	}
}

func showLogs(opts options, out io.Writer) error {
	logFile := config.DefaultLogFile
	if cfg, err := config.Load(opts.configFile); err == nil {
		logFile = cfg.LogFile
	}
	text, err := (&orchestrator.RunLog{Path: logFile}).Read()
	if errors.Is(err, orchestrator.ErrNoLog) {
		fmt.Fprintln(out, "No upload log yet.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprint(out, text)
	return nil
}

func setup(opts options, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	confirm := func(prompt string) bool {
		fmt.Fprintf(out, "%s [y/N]: ", prompt)
		if !scanner.Scan() {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		return answer == "y" || answer == "yes"
	}

	if _, err := os.Stat(opts.configFile); err != nil || confirm(opts.configFile+" exists. Overwrite?") {
		if err := config.Template().Save(opts.configFile); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.configFile, err)
		}
		fmt.Fprintf(out, "Wrote %s\n", opts.configFile)
	}

	if _, err := os.Stat(opts.envFile); err != nil {
		if err := config.WriteEnvTemplate(opts.envFile); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.envFile, err)
		}
		fmt.Fprintf(out, "Wrote %s\n", opts.envFile)
	}

	fmt.Fprintf(out, `
Next steps:
  1. Download the OAuth client file from the Google Cloud console to %s
  2. Put your TikTok client key and secret in %s
  3. Run: uploader -metadata video_metadata.json
`, config.DefaultYouTubeClientSecrets, opts.envFile)
	return nil
}
