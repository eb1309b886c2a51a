// Command taskindexd is a minimal bootstrap binary: it loads
// configuration, builds the composition root, runs one scan +
// reconstruction pass, and exits. It is not a CLI -- argument parsing,
// remote tool wrappers, and terminal formatting are out of scope.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/taskindex/taskindex/internal/app"
	"github.com/taskindex/taskindex/internal/skeleton"
	"github.com/taskindex/taskindex/pkg/config"
	"github.com/taskindex/taskindex/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := logger.NewLogger(nil)
	ctx = logger.ContextWithLogger(ctx, log)

	cfg, err := loadConfig(ctx)
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	root, err := app.New(cfg, afero.NewOsFs(), nil, log, reg)
	if err != nil {
		log.Error("composition root build failed", "error", err)
		os.Exit(1)
	}

	scanReport, recReport := root.RunOnce(ctx, skeleton.ScanOptions{})
	log.Info("pass complete",
		"built", scanReport.Built, "skipped", scanReport.Skipped, "invalid", scanReport.Invalid,
		"resolved", recReport.Phase2Resolved, "unresolved", recReport.Phase2Unresolved,
	)
	if len(scanReport.Errors) > 0 {
		os.Exit(1)
	}
}

func loadConfig(ctx context.Context) (*config.Config, error) {
	mgr := config.NewManager(config.NewService())
	return mgr.Load(ctx, config.NewDefaultProvider(), config.NewEnvProvider())
}
