// Package rebaser drives periodic rebases: on every tick it pushes the oracle
// price to the ledger and then requests a rebase, both as operator-signed ops.
package rebaser

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chronodrachma/elastic/pkg/core/ledger"
	"github.com/chronodrachma/elastic/pkg/core/types"
	"github.com/chronodrachma/elastic/pkg/node"
	"github.com/chronodrachma/elastic/pkg/wallet"
)

// DefaultSchedule checks every five minutes; the ledger's own interval gate
// decides whether a rebase actually happens.
const DefaultSchedule = "0 */5 * * * *"

// Submitter is the part of node.Node the rebaser needs.
type Submitter interface {
	Submit(op *types.Op) (*node.Receipt, error)
	Nonce(caller types.Address) uint64
	RebaseDue(t time.Time) bool
}

// Config configures a Rebaser.
type Config struct {
	Schedule string // Six-field cron spec (with seconds) or a descriptor such as "@every 1h".
	Key      ed25519.PrivateKey
	Prices   PriceSource
	Clock    ledger.Clock
	Log      *zap.Logger
}

// Result reports what a single run did.
type Result struct {
	Rebased     bool
	Price       string
	TotalSupply string
}

type Rebaser struct {
	cron     *cron.Cron
	schedule string
	node     Submitter
	prices   PriceSource
	key      ed25519.PrivateKey
	operator types.Address
	clock    ledger.Clock
	log      *zap.Logger

	runMu sync.Mutex
	ctx   context.Context
}

func New(n Submitter, cfg Config) (*Rebaser, error) {
	if len(cfg.Key) != ed25519.PrivateKeySize {
		return nil, wallet.ErrInvalidKey
	}
	if cfg.Prices == nil {
		return nil, errors.New("rebaser: price source is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Clock == nil {
		cfg.Clock = ledger.SystemClock{}
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	cronLog := cron.PrintfLogger(zap.NewStdLog(cfg.Log.Named("cron")))
	return &Rebaser{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		schedule: cfg.Schedule,
		node:     n,
		prices:   cfg.Prices,
		key:      cfg.Key,
		operator: wallet.AddressOf(cfg.Key),
		clock:    cfg.Clock,
		log:      cfg.Log,
		ctx:      context.Background(),
	}, nil
}

// Start registers the job and starts the scheduler. Scheduled runs use ctx.
func (r *Rebaser) Start(ctx context.Context) error {
	r.ctx = ctx
	if _, err := r.cron.AddFunc(r.schedule, r.tick); err != nil {
		return fmt.Errorf("register rebase job %q: %w", r.schedule, err)
	}
	r.cron.Start()
	r.log.Info("rebaser started",
		zap.String("schedule", r.schedule),
		zap.String("operator", r.operator.Hex()))
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (r *Rebaser) Stop() {
	<-r.cron.Stop().Done()
	r.log.Info("rebaser stopped")
}

// RunNow performs one run immediately, outside the schedule.
func (r *Rebaser) RunNow(ctx context.Context) (*Result, error) {
	return r.run(ctx)
}

func (r *Rebaser) tick() {
	res, err := r.run(r.ctx)
	if err != nil {
		r.log.Error("rebase run failed", zap.Error(err))
		return
	}
	if res.Rebased {
		r.log.Info("rebase run complete",
			zap.String("price", res.Price),
			zap.String("total_supply", res.TotalSupply))
	}
}

func (r *Rebaser) run(ctx context.Context) (*Result, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if !r.node.RebaseDue(r.clock.Now()) {
		r.log.Debug("rebase not due yet")
		return &Result{}, nil
	}

	price, err := r.prices.Price(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch price: %w", err)
	}

	if _, err := r.submit(&types.Op{Kind: types.OpUpdatePrice, Amount: *price}); err != nil {
		return nil, fmt.Errorf("update price: %w", err)
	}

	rcpt, err := r.submit(&types.Op{Kind: types.OpRebase})
	if errors.Is(err, ledger.ErrRebaseTooEarly) {
		// Another operator rebased between the due check and our op.
		r.log.Debug("rebase too early", zap.Error(err))
		return &Result{Price: price.Dec()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}

	return &Result{
		Rebased:     true,
		Price:       price.Dec(),
		TotalSupply: rcpt.TotalSupply.Dec(),
	}, nil
}

func (r *Rebaser) submit(op *types.Op) (*node.Receipt, error) {
	op.Timestamp = r.clock.Now()
	op.Nonce = r.node.Nonce(r.operator)
	if err := wallet.SignOp(op, r.key); err != nil {
		return nil, err
	}
	return r.node.Submit(op)
}
