package validate

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/longbox-labs/pricefeed-cli/internal/model"
)

// BatchValidate validates a slice of raw listings concurrently and
// returns results in input order. A panic inside one validation is
// confined to that listing's result so the rest of the batch still
// completes.
func (e *Engine) BatchValidate(ctx context.Context, listings []model.RawListing, mkt model.Marketplace, concurrency int) []model.ValidationResult {
	if concurrency <= 0 {
		concurrency = 8
	}

	results := make([]model.ValidationResult, len(listings))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, raw := range listings {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = e.validateRecovering(raw, mkt)
			return nil
		})
	}

	// Workers never return errors, so Wait only synchronizes.
	_ = g.Wait()

	return results
}

func (e *Engine) validateRecovering(raw model.RawListing, mkt model.Marketplace) (res model.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("validate: panic during validation",
				zap.String("marketplace", string(mkt)),
				zap.String("external_id", raw.ExternalID),
				zap.Any("panic", r))
			res = model.ValidationResult{
				Valid:  false,
				Errors: []string{fmt.Sprintf("internal validation failure: %v", r)},
				Meta: model.ValidationMeta{
					Marketplace: mkt,
					CheckedAt:   e.nowFunc().UTC(),
					Version:     model.ValidatorVersion,
				},
			}
		}
	}()
	return e.Validate(raw, mkt)
}
