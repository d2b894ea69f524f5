// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquiry-workers/internal/common/config"
	"inquiry-workers/internal/common/database"
	"inquiry-workers/internal/common/genai"
	commonhttp "inquiry-workers/internal/common/http"
	"inquiry-workers/internal/common/logger"
	"inquiry-workers/internal/common/mail"

	iie "inquiry-workers/internal/workers/inquiry/ingest-inquiry-email"
)

// TestPipelineEndToEnd runs the full pipeline against real infrastructure.
// It needs a reachable IMAP account, GenAI endpoint, Postgres and Redis, so
// it only runs when E2E_TESTS=true.
func TestPipelineEndToEnd(t *testing.T) {
	if os.Getenv("E2E_TESTS") != "true" {
		t.Skip("set E2E_TESTS=true to run end-to-end tests")
	}

	cfg, err := config.Load()
	require.NoError(t, err, "configuration must be valid for e2e runs")

	log := logger.NewTestLogger(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err)
	defer pg.Close()
	require.NoError(t, pg.Ping(ctx))

	redis, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err)
	defer redis.Close()
	require.NoError(t, redis.Ping(ctx))

	mailSource := mail.NewIMAPSource(cfg.Mail.IMAP, log)
	extractor := genai.NewClient(
		&genai.Config{
			BaseURL: cfg.APIs.GenAI.BaseURL,
			APIKey:  cfg.APIs.GenAI.APIKey,
			Timeout: cfg.APIs.GenAI.Timeout,
		},
		commonhttp.NewClient(config.GetDuration(cfg.APIs.GenAI.Timeout)),
		log,
	)

	workerCfg := iie.LoadConfig()
	brands := iie.NewBrandResolver(pg.DB, redis.Client, workerCfg.AliasCacheTTL, log)
	store := iie.NewStore(pg.DB, brands, workerCfg.CompensateOnFailure, log)
	service := iie.NewService(iie.ServiceDependencies{
		Mail:      mailSource,
		Extractor: extractor,
		Store:     store,
		Logger:    log,
	}, workerCfg)

	t.Run("dry run produces a draft without writing", func(t *testing.T) {
		output, err := service.Execute(ctx, &iie.Input{
			OwnerID: "e2e-owner",
			Save:    false,
		})
		require.NoError(t, err)

		assert.NotEmpty(t, output.Mail.Subject)
		assert.NotNil(t, output.Draft)
		assert.Nil(t, output.Saved)
	})

	t.Run("save run persists the inquiry graph", func(t *testing.T) {
		if os.Getenv("E2E_ALLOW_WRITES") != "true" {
			t.Skip("set E2E_ALLOW_WRITES=true to run tests that write to the database")
		}

		output, err := service.Execute(ctx, &iie.Input{
			OwnerID: "e2e-owner",
			Save:    true,
		})
		require.NoError(t, err)

		require.NotNil(t, output.Saved)
		assert.Greater(t, output.Saved.InquiryID, int64(0))
		assert.Greater(t, output.Saved.QuotationID, int64(0))

		var status string
		err = pg.DB.QueryRowContext(ctx,
			"SELECT status FROM inquiries WHERE id = $1", output.Saved.InquiryID,
		).Scan(&status)
		require.NoError(t, err)
		assert.Equal(t, "draft", status)
	})
}
