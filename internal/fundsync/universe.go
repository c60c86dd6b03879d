package fundsync

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/model"
	"github.com/sells-group/fund-cli/internal/store"
)

// UniverseSource lists every fund class EDGAR knows about. *edgar.Client
// satisfies it.
type UniverseSource interface {
	Universe(ctx context.Context, etfOnly bool) ([]model.Fund, error)
}

// SyncUniverse refreshes the fund registry from src. Funds missing from the
// listing are deactivated, never deleted.
func SyncUniverse(ctx context.Context, src UniverseSource, st store.Store, etfOnly bool) (*store.SyncResult, error) {
	log := zap.L().With(zap.String("component", "universe"))
	start := time.Now()

	funds, err := src.Universe(ctx, etfOnly)
	if err != nil {
		return nil, eris.Wrap(err, "fundsync: fetch universe")
	}
	if len(funds) == 0 {
		return nil, eris.New("fundsync: universe listing is empty")
	}

	res, err := st.SyncFunds(ctx, funds)
	if err != nil {
		return nil, eris.Wrap(err, "fundsync: sync funds")
	}

	log.Info("universe synced",
		zap.Int("classes", len(funds)),
		zap.Int64("upserted", res.Upserted),
		zap.Int64("deactivated", res.Deactivated),
		zap.Bool("etf_only", etfOnly),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}
