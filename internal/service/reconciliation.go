package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/qaddoumi/tahweel/internal/observability"
)

// ReconciliationService verifies the core ledger invariant: every exchange's
// stored balance equals the net of its ledger entries. It only observes;
// a drift is an alert, never an automatic correction.
type ReconciliationService struct {
	store QueryStore
}

func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run checks all exchanges and reports drift.
func (s *ReconciliationService) Run(ctx context.Context) error {
	nets, err := s.store.Queries().GetExchangeLedgerNets(ctx)
	if err != nil {
		return fmt.Errorf("load exchange ledger nets: %w", err)
	}

	drifted := 0
	for _, n := range nets {
		if n.Balance.Equal(n.Net) {
			continue
		}
		drifted++
		observability.IncrementLedgerDrift()
		zap.L().Error("CRITICAL: exchange balance does not match ledger",
			zap.String("exchange_id", n.ExchangeID.String()),
			zap.String("balance", n.Balance.String()),
			zap.String("ledger_net", n.Net.String()),
		)
	}

	if drifted == 0 {
		zap.L().Info("ledger consistent", zap.Int("exchanges", len(nets)))
	}
	return nil
}
