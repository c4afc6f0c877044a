package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pgvet-io/pgvet-engine/pkg/apperrors"
	"github.com/pgvet-io/pgvet-engine/pkg/config"
	"github.com/pgvet-io/pgvet-engine/pkg/database"
	"github.com/pgvet-io/pgvet-engine/pkg/logging"
	"github.com/pgvet-io/pgvet-engine/pkg/manifestio"
	"github.com/pgvet-io/pgvet-engine/pkg/models"
	"github.com/pgvet-io/pgvet-engine/pkg/session"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	flagConfig   string
	flagManifest string
	flagJSON     bool
	flagVerbose  bool
)

func main() {
	root := &cobra.Command{
		Use:           "pgvet",
		Short:         "Validate SQL statements against a disposable sandbox database",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (default "+config.DefaultFileName+")")
	root.PersistentFlags().StringVarP(&flagManifest, "manifest", "m", "manifest.json", "manifest file produced by the extraction layer")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit diagnostics as JSON")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(checkCmd(), watchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one validation pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			sess, err := newSession(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = sess.Close(context.Background()) }()

			manifest, err := loadManifest(cfg)
			if err != nil {
				return err
			}

			diags, err := sess.Check(ctx, manifest)
			if err != nil {
				return err
			}
			printDiagnostics(diags)
			if len(diags) > 0 {
				os.Exit(1)
			}
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Revalidate whenever the manifest or migrations change",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			sess, err := newSession(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = sess.Close(context.Background()) }()

			source := session.ManifestSourceFunc(func(context.Context) (*models.Manifest, error) {
				return loadManifest(cfg)
			})
			dirs := []string{cfg.MigrationsDir, filepath.Dir(flagManifest)}
			watcher := session.NewWatcher(sess, source, dirs, 0, func(diags []models.Diagnostic, err error) {
				if err != nil {
					logger.Error("Validation run failed", zap.Error(err))
					return
				}
				printDiagnostics(diags)
			}, logger)

			err = watcher.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		if errors.Is(err, apperrors.ErrMalformedConfig) {
			// A broken config file gets a whole-file diagnostic so editors
			// can surface it like any other finding.
			path := flagConfig
			if path == "" {
				path = config.DefaultFileName
			}
			printDiagnostics([]models.Diagnostic{{
				FileName: path,
				Span:     models.FileSpan(),
				Messages: []string{err.Error()},
			}})
			os.Exit(1)
		}
		return nil, nil, err
	}
	env := "production"
	if flagVerbose {
		env = "local"
	}
	logger, err := logging.NewLogger(env, flagVerbose)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newSession(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*session.Session, error) {
	logger.Info("Connecting to sandbox",
		zap.String("postgres_version", cfg.PostgresVersion),
		zap.String("migrations_dir", cfg.MigrationsDir))

	sb, err := database.Connect(ctx, cfg.SandboxURL, logger)
	if err != nil {
		return nil, err
	}
	return session.NewSession(sb, cfg.MigrationsDir, logger), nil
}

// loadManifest reads the extraction layer's manifest and attaches the run
// config and branded-type bindings from the config file.
func loadManifest(cfg *config.Config) (*models.Manifest, error) {
	manifest, err := manifestio.Load(flagManifest)
	if err != nil {
		return nil, err
	}
	manifest.Config = cfg.RunConfig()
	manifest.BrandedTypes = cfg.BrandedBindings()
	return manifest, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type jsonSpan struct {
	Kind      string `json:"kind"`
	StartLine int    `json:"startLine,omitempty"`
	StartCol  int    `json:"startCol,omitempty"`
	EndLine   int    `json:"endLine,omitempty"`
	EndCol    int    `json:"endCol,omitempty"`
}

type jsonDiagnostic struct {
	FileName string           `json:"fileName"`
	Span     jsonSpan         `json:"span"`
	Messages []string         `json:"messages"`
	Epilogue string           `json:"epilogue,omitempty"`
	QuickFix *models.QuickFix `json:"quickFix,omitempty"`
}

func printDiagnostics(diags []models.Diagnostic) {
	if flagJSON {
		out := make([]jsonDiagnostic, 0, len(diags))
		for _, d := range diags {
			out = append(out, jsonDiagnostic{
				FileName: d.FileName,
				Span:     toJSONSpan(d.Span),
				Messages: d.Messages,
				Epilogue: d.Epilogue,
				QuickFix: d.QuickFix,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}

	for _, d := range diags {
		fmt.Println(formatDiagnostic(d))
	}
	if len(diags) > 0 {
		fmt.Printf("%d problem(s) found\n", len(diags))
	}
}

func toJSONSpan(s models.Span) jsonSpan {
	switch s.Kind {
	case models.SpanPoint:
		return jsonSpan{Kind: "point", StartLine: s.StartLine, StartCol: s.StartCol}
	case models.SpanRange:
		return jsonSpan{Kind: "range", StartLine: s.StartLine, StartCol: s.StartCol, EndLine: s.EndLine, EndCol: s.EndCol}
	default:
		return jsonSpan{Kind: "file"}
	}
}

func formatDiagnostic(d models.Diagnostic) string {
	var b strings.Builder

	switch d.Span.Kind {
	case models.SpanPoint:
		fmt.Fprintf(&b, "%s:%d:%d", d.FileName, d.Span.StartLine, d.Span.StartCol)
	case models.SpanRange:
		fmt.Fprintf(&b, "%s:%d:%d-%d:%d", d.FileName, d.Span.StartLine, d.Span.StartCol, d.Span.EndLine, d.Span.EndCol)
	default:
		b.WriteString(d.FileName)
	}
	b.WriteString(":")

	for _, msg := range d.Messages {
		b.WriteString("\n  " + msg)
	}
	if d.Epilogue != "" {
		for _, line := range strings.Split(d.Epilogue, "\n") {
			b.WriteString("\n  " + line)
		}
	}
	if d.QuickFix != nil {
		b.WriteString("\n  fix (" + d.QuickFix.Name + "):")
		for _, line := range strings.Split(d.QuickFix.ReplacementText, "\n") {
			b.WriteString("\n    " + line)
		}
	}
	return b.String()
}
