package worker

import (
	"context"
	"fmt"
	"time"

	"listing-service/internal/gateway"
	"listing-service/internal/models"
	"listing-service/internal/service"
	"listing-service/internal/store"
	"listing-service/internal/util"

	"go.uber.org/zap"
)

const expiredReason = "expired"

// Settler applies a terminal payment decision
type Settler interface {
	Settle(ctx context.Context, req service.SettleRequest) (*service.CallbackResult, error)
}

// SweepStats summarises one reconciliation pass
type SweepStats struct {
	Checked   int
	Recovered int
	Expired   int
}

// SweeperConfig tunes the reconciliation pass
type SweeperConfig struct {
	BatchSize    int
	Expiry       time.Duration
	QueryTimeout time.Duration
}

// ReconciliationSweeper recovers payments whose callbacks never arrived.
// Gateways that can be polled are asked first; records still pending past
// the expiry window are failed so the seller can retry.
type ReconciliationSweeper struct {
	repo     store.Repository
	gateways gateway.Registry
	settler  Settler
	clock    util.Clock
	cfg      SweeperConfig
	logger   *zap.Logger
}

// NewReconciliationSweeper creates a new reconciliation sweeper
func NewReconciliationSweeper(
	repo store.Repository,
	gateways gateway.Registry,
	settler Settler,
	clock util.Clock,
	cfg SweeperConfig,
) *ReconciliationSweeper {
	return &ReconciliationSweeper{
		repo:     repo,
		gateways: gateways,
		settler:  settler,
		clock:    clock,
		cfg:      cfg,
		logger:   util.GetLogger(),
	}
}

// Sweep runs one pass over the oldest pending payments
func (s *ReconciliationSweeper) Sweep(ctx context.Context) (SweepStats, error) {
	ctx, span := util.StartSpan(ctx, "ReconciliationSweeper.Sweep")
	defer span.End()

	var stats SweepStats
	pending, err := s.repo.ListPendingPayments(ctx, s.cfg.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to list pending payments: %w", err)
	}

	for i := range pending {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		p := &pending[i]
		stats.Checked++

		if req, ok := s.poll(ctx, p); ok {
			if s.settle(ctx, p, req) {
				stats.Recovered++
			}
			continue
		}

		if s.clock.Now().Sub(p.CreatedAt) < s.cfg.Expiry {
			continue
		}
		if s.settle(ctx, p, service.SettleRequest{PaymentID: p.ID, Success: false, Reason: expiredReason}) {
			stats.Expired++
		}
	}

	s.logger.Info("Reconciliation sweep finished",
		zap.Int("checked", stats.Checked),
		zap.Int("recovered", stats.Recovered),
		zap.Int("expired", stats.Expired))
	return stats, nil
}

// poll asks the gateway for a terminal status. It reports false when the
// gateway cannot be polled, failed to answer or still sees the payment open.
func (s *ReconciliationSweeper) poll(ctx context.Context, p *models.PaymentRecord) (service.SettleRequest, bool) {
	client, err := s.gateways.Get(p.Gateway)
	if err != nil {
		return service.SettleRequest{}, false
	}
	querier, ok := client.(gateway.StatusQuerier)
	if !ok {
		return service.SettleRequest{}, false
	}

	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	st, err := querier.QueryStatus(qctx, p)
	if err != nil {
		s.logger.Warn("Gateway status query failed",
			zap.String("payment_id", p.ID.String()),
			zap.String("gateway", string(p.Gateway)),
			zap.Error(err))
		return service.SettleRequest{}, false
	}
	if !st.Terminal {
		return service.SettleRequest{}, false
	}

	if st.Success && st.Amount != p.Amount {
		s.logger.Error("Gateway reports a different paid amount",
			zap.String("payment_id", p.ID.String()),
			zap.Int64("expected", p.Amount),
			zap.Int64("reported", st.Amount))
		return service.SettleRequest{}, false
	}

	return service.SettleRequest{
		PaymentID: p.ID,
		Success:   st.Success,
		TxnID:     st.TxnID,
		Reason:    st.Reason,
	}, true
}

func (s *ReconciliationSweeper) settle(ctx context.Context, p *models.PaymentRecord, req service.SettleRequest) bool {
	res, err := s.settler.Settle(ctx, req)
	if err != nil {
		s.logger.Warn("Failed to settle swept payment",
			zap.String("payment_id", p.ID.String()),
			zap.Error(err))
		return false
	}
	if res.Outcome != service.OutcomeApplied {
		return false
	}

	result := "failed"
	if req.Success {
		result = "completed"
	}
	util.SweeperRecoveredTotal.WithLabelValues(string(p.Gateway), result).Inc()
	return true
}
