package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartExpiredTokenCleaner clears expired session tokens with interval.
// Token validation already revokes expired tokens lazily; the cleaner covers
// sessions that were simply abandoned without another request.
func StartExpiredTokenCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := db.ExecContext(ctx, `
                    UPDATE "user"
                       SET token = NULL, token_expiration_date = NULL
                     WHERE token_expiration_date IS NOT NULL
                       AND token_expiration_date <= $1
                `, time.Now())
				if err != nil {
					log.Error("failed to clean expired tokens", zap.Error(err))
					continue
				}
				if rows, _ := res.RowsAffected(); rows > 0 {
					log.Info("cleaned expired tokens", zap.Int64("sessions", rows))
				}
			}
		}
	}()
}
