package custos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/stroller-protocol/custos/internal/blockchain"
	"github.com/stroller-protocol/custos/internal/config"
	"github.com/stroller-protocol/custos/internal/metrics"
	"github.com/stroller-protocol/custos/internal/models"
	"github.com/stroller-protocol/custos/pkg/logger"
)

var (
	// ErrCreateWallet is returned when a first top-up could not be stored
	// together with its new wallet.
	ErrCreateWallet = errors.New("couldn't create new wallet")
	// ErrAppendTopUp is returned when a top-up could not be added to an
	// existing wallet.
	ErrAppendTopUp = errors.New("couldn't push new top-up data")
	// ErrRemoveTopUp is returned when a top-up could not be deleted.
	ErrRemoveTopUp = errors.New("error while deleting top-up")
)

// Custos is the main struct for the application.
// It owns the top-up and watch registries and the rules checker.
type Custos struct {
	logger *logger.Logger
	config *config.Config

	repo        models.Repository
	chains      *blockchain.Chains
	notificator models.NotificationService
	metrics     *metrics.Metrics

	scheduler gocron.Scheduler
	now       func() time.Time

	// lastState remembers the last checked state per top-up id so that
	// watchers are told about a transition once.
	stateMu   sync.Mutex
	lastState map[string]models.TopUpState
}

// NewCustos creates a new Custos instance
func NewCustos(
	repo models.Repository,
	chains *blockchain.Chains,
	notificator models.NotificationService,
	metrics *metrics.Metrics,
	logger *logger.Logger,
	config *config.Config,
) *Custos {
	if chains == nil {
		chains = blockchain.NewChains()
	}
	return &Custos{
		repo:        repo,
		chains:      chains,
		notificator: notificator,
		metrics:     metrics,
		logger:      logger,
		config:      config,
		now:         time.Now,
		lastState:   make(map[string]models.TopUpState),
	}
}

var _ models.CustosI = (*Custos)(nil)

// Start schedules the periodic rules sweep when an interval is configured.
func (c *Custos) Start() error {
	if c.config.RulesCheckInterval <= 0 {
		c.logger.Info("Periodic rules check disabled")
		return nil
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(c.config.RulesCheckInterval),
		gocron.NewTask(func() {
			c.Sweep(context.Background())
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule rules check: %w", err)
	}
	s.Start()
	c.scheduler = s

	c.logger.Info("Periodic rules check scheduled", "interval", c.config.RulesCheckInterval)
	return nil
}

// Stop shuts the scheduler down and waits for a running sweep.
func (c *Custos) Stop() error {
	if c.scheduler == nil {
		return nil
	}
	return c.scheduler.Shutdown()
}

// Sweep runs the rules checker for every known wallet. A completed sweep
// forgets the state of top-ups that no longer belong to any wallet.
func (c *Custos) Sweep(ctx context.Context) {
	tracked := c.trackedTopUps()
	addresses, err := c.repo.ListWalletAddresses(ctx)
	if err != nil {
		c.logger.Error("Failed to list wallets", "error", err)
		return
	}
	c.logger.Debug("Running rules check", "wallets", len(addresses))
	live := make(map[string]bool)
	for _, address := range addresses {
		if ctx.Err() != nil {
			return
		}
		wallet, _, err := c.checkWallet(ctx, address)
		if wallet != nil {
			for _, topUp := range wallet.TopUps {
				live[topUp.ID] = true
			}
		}
		if err != nil {
			c.logger.Warn("Rules check failed", "address", address, "error", err)
		}
	}
	if pruned := c.pruneState(tracked, live); pruned > 0 {
		c.logger.Debug("Forgot state of removed top-ups", "count", pruned)
	}
}

func (c *Custos) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.config.RequestTimeout)
}
