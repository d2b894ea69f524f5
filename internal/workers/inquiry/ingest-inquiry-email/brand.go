// internal/workers/inquiry/ingest-inquiry-email/brand.go
package ingestinquiryemail

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"inquiry-workers/internal/common/logger"
	"inquiry-workers/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

const aliasCachePrefix = "brand_alias:"

// BrandResolver maps a free-text, upper-cased brand string to its canonical
// form via the brand_alias table, with a read-through Redis cache in front.
// Cache failures are warnings; the database stays authoritative.
type BrandResolver struct {
	db       *sql.DB
	cache    *redis.Client
	cacheTTL time.Duration
	logger   logger.Logger
}

func NewBrandResolver(db *sql.DB, cache *redis.Client, cacheTTL time.Duration, log logger.Logger) *BrandResolver {
	return &BrandResolver{
		db:       db,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   log.WithFields(map[string]interface{}{"component": "brand-resolver"}),
	}
}

// Resolve returns the canonical brand for brandInput. No alias row means the
// input itself is the answer; duplicate aliases resolve to the lowest id. A
// lookup transport error is returned as STORE_LOOKUP_FAILED instead of being
// folded into "no match", so a store outage stays distinguishable from a
// genuine absence.
func (r *BrandResolver) Resolve(ctx context.Context, brandInput string) (string, error) {
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, aliasCachePrefix+brandInput).Result()
		if err == nil && cached != "" {
			metrics.BrandAliasLookups.WithLabelValues("cache").Inc()
			return cached, nil
		}
		if err != nil && err != redis.Nil {
			r.logger.Warn("alias cache read failed", map[string]interface{}{
				"brand": brandInput,
				"error": err.Error(),
			})
		}
	}

	var standard string
	err := r.db.QueryRowContext(ctx,
		`SELECT standard_brand FROM brand_alias WHERE alias = $1 ORDER BY id ASC LIMIT 1`,
		brandInput,
	).Scan(&standard)

	if err == sql.ErrNoRows {
		metrics.BrandAliasLookups.WithLabelValues("fallback").Inc()
		return brandInput, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: brand_alias lookup: %v", ErrStoreLookupFailed, err)
	}

	resolved := strings.ToUpper(strings.TrimSpace(standard))
	metrics.BrandAliasLookups.WithLabelValues("database").Inc()

	if r.cache != nil {
		if err := r.cache.Set(ctx, aliasCachePrefix+brandInput, resolved, r.cacheTTL).Err(); err != nil {
			r.logger.Warn("alias cache write failed", map[string]interface{}{
				"brand": brandInput,
				"error": err.Error(),
			})
		}
	}

	return resolved, nil
}
