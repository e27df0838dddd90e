package cmd

import (
	"fmt"

	"github.com/intexuraos/orchestrator/internal/config"
	"github.com/intexuraos/orchestrator/internal/logging"
	"github.com/intexuraos/orchestrator/internal/orchestrator"
	"github.com/intexuraos/orchestrator/internal/session"
	"github.com/intexuraos/orchestrator/internal/state"
	"github.com/intexuraos/orchestrator/internal/webhook"
	"github.com/intexuraos/orchestrator/internal/worktree"
)

// app bundles the wired collaborators every command needs.
type app struct {
	cfg        *config.Config
	log        *logging.Logger
	store      *state.Store
	sessions   *session.Manager
	webhooks   *webhook.Client
	worktrees  *worktree.Manager
	controller *orchestrator.Controller
}

// newApp loads configuration and wires the orchestrator's collaborators.
// Callers must Close when done.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logDir := ""
	if cfg.Logging.Enabled {
		logDir = config.ConfigDir()
	}
	log, err := logging.New(logDir, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}

	store := state.NewStore(cfg.Paths.ResolveStateFile(), log)
	sessions := session.NewManager(nil, session.Config{
		LogDir:              cfg.Paths.ResolveLogDir(),
		AgentBinary:         cfg.Session.AgentBinary,
		WorkerArgs:          cfg.Session.WorkerArgs,
		MachineArgs:         cfg.Session.MachineArgs,
		HistoryLimit:        cfg.Session.TmuxHistoryLimit,
		GracefulStopTimeout: cfg.Session.GracefulStopTimeout(),
	}, log)
	webhooks := webhook.NewClient(store, log)
	webhooks.SetRequestTimeout(cfg.Webhook.RequestTimeout())

	var worktrees *worktree.Manager
	if repoDir := cfg.Paths.ResolveRepoDir(); repoDir != "" {
		worktrees, err = worktree.NewManager(repoDir, cfg.Paths.ResolveWorktreeDir())
		if err != nil {
			_ = log.Close()
			return nil, fmt.Errorf("initializing worktree manager: %w", err)
		}
	}

	return &app{
		cfg:        cfg,
		log:        log,
		store:      store,
		sessions:   sessions,
		webhooks:   webhooks,
		worktrees:  worktrees,
		controller: orchestrator.NewController(store, sessions, webhooks, worktrees, cfg, log),
	}, nil
}

func (a *app) Close() {
	_ = a.log.Close()
}
