// internal/workers/inquiry/ingest-inquiry-email/service.go
package ingestinquiryemail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	commonerrors "inquiry-workers/internal/common/errors"
	"inquiry-workers/internal/common/genai"
	"inquiry-workers/internal/common/logger"
	"inquiry-workers/internal/common/mail"
	"inquiry-workers/internal/common/metrics"

	"github.com/google/uuid"
)

// MailSource yields the single most recent message of a mailbox.
type MailSource interface {
	FetchLatest(ctx context.Context, mailbox string) (*mail.Message, error)
}

// Extractor turns an email into the AI service's raw extraction JSON.
type Extractor interface {
	ExtractInquiry(ctx context.Context, req genai.ExtractionRequest) (json.RawMessage, error)
}

// Notifier sends the post-persist ops email. Optional.
type Notifier interface {
	SendPlainText(ctx context.Context, from, to, subject, body string) error
}

// Indexer writes the persisted inquiry into the search index. Optional.
type Indexer interface {
	IndexDocument(ctx context.Context, index, id string, doc interface{}) error
}

type ServiceDependencies struct {
	Mail      MailSource
	Extractor Extractor
	Store     *Store
	Indexer   Indexer
	Notifier  Notifier
	Logger    logger.Logger
}

// Service runs the ingestion pipeline: fetch mail, extract, normalize,
// persist. One strictly sequential flow per invocation, no internal
// parallelism, no retries.
type Service struct {
	config    *Config
	mail      MailSource
	extractor Extractor
	store     *Store
	indexer   Indexer
	notifier  Notifier
	logger    logger.Logger
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config:    config,
		mail:      deps.Mail,
		extractor: deps.Extractor,
		store:     deps.Store,
		indexer:   deps.Indexer,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
	}
}

// Execute performs one pipeline run. With input.Save false the run stops
// after normalization and returns the draft with Saved nil. On a persistence
// failure after the first insert, earlier writes stay committed unless
// compensation is enabled; the caller must not assume the store is unchanged.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	runID := uuid.New().String()
	log := s.logger.With(map[string]interface{}{
		"runId":   runID,
		"ownerId": input.OwnerID,
	})

	// Collaborators are constructed from validated config at process start;
	// a nil one means the credential set for it was never provided.
	if s.mail == nil || s.extractor == nil || s.store == nil {
		metrics.PipelineRuns.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: pipeline collaborators not configured", ErrConfigMissing)
	}

	mailbox := input.Mailbox
	if mailbox == "" {
		mailbox = s.config.DefaultMailbox
	}

	msg, err := s.mail.FetchLatest(ctx, mailbox)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("failed").Inc()
		return nil, err
	}

	rawJSON, err := s.extractor.ExtractInquiry(ctx, genai.ExtractionRequest{
		Subject:       msg.Subject,
		SenderAddress: msg.SenderAddress,
		BodyText:      msg.PlainTextBody,
	})
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("failed").Inc()
		return nil, err
	}

	var raw RawExtraction
	if err := json.Unmarshal(rawJSON, &raw); err != nil {
		metrics.PipelineRuns.WithLabelValues("failed").Inc()
		return nil, commonerrors.NewExtractionSchemaInvalidError(err.Error())
	}

	draft, rejected := NormalizeDraft(&raw)
	metrics.DraftLinesNormalized.WithLabelValues("kept").Add(float64(len(draft.Lines)))
	metrics.DraftLinesNormalized.WithLabelValues("rejected").Add(float64(len(rejected)))
	for _, rj := range rejected {
		log.Debug("dropped extraction item", map[string]interface{}{
			"index":  rj.Index,
			"reason": rj.Reason,
		})
	}

	output := &Output{
		Mail: MailSummary{
			Subject:       msg.Subject,
			SenderAddress: msg.SenderAddress,
			SentAt:        msg.SentAt.UTC().Format(time.RFC3339),
		},
		Extraction: rawJSON,
		Draft:      draft,
	}

	if !input.Save {
		log.Info("dry run, skipping persistence", map[string]interface{}{
			"lines": len(draft.Lines),
		})
		metrics.PipelineRuns.WithLabelValues("dry_run").Inc()
		return output, nil
	}

	result, err := s.store.Persist(ctx, draft, input.OwnerID)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("failed").Inc()
		return nil, err
	}
	output.Saved = &SavedIDs{
		InquiryID:   result.InquiryID,
		QuotationID: result.QuotationID,
	}

	s.indexInquiry(ctx, log, runID, input.OwnerID, draft, result)
	s.notify(ctx, log, msg, result)

	metrics.PipelineRuns.WithLabelValues("success").Inc()
	return output, nil
}

// indexInquiry mirrors the persisted graph into the search index.
// Non-critical: a failure is logged, never surfaced.
func (s *Service) indexInquiry(ctx context.Context, log logger.Logger, runID, ownerID string, draft *Draft, result *PersistResult) {
	if s.indexer == nil {
		return
	}

	doc := map[string]interface{}{
		"runId":           runID,
		"ownerId":         ownerID,
		"inquiryId":       result.InquiryID,
		"quotationId":     result.QuotationID,
		"customerName":    draft.CustomerName,
		"customerCountry": draft.CustomerCountry,
		"lineCount":       len(draft.Lines),
		"createdAt":       time.Now().UTC().Format(time.RFC3339),
	}

	docID := fmt.Sprintf("inquiry-%d", result.InquiryID)
	if err := s.indexer.IndexDocument(ctx, s.config.SearchIndex, docID, doc); err != nil {
		log.Warn("search indexing failed", map[string]interface{}{
			"inquiryId": result.InquiryID,
			"error":     err.Error(),
		})
	}
}

// notify emails ops that a draft quotation was created. Non-critical.
func (s *Service) notify(ctx context.Context, log logger.Logger, msg *mail.Message, result *PersistResult) {
	if s.notifier == nil || !s.config.NotifyEnabled {
		return
	}

	subject := fmt.Sprintf("Draft quotation %d created", result.QuotationID)
	body := fmt.Sprintf(
		"Inquiry %d and draft quotation %d were created from %q (%s).",
		result.InquiryID, result.QuotationID, msg.Subject, msg.SenderAddress,
	)
	if err := s.notifier.SendPlainText(ctx, s.config.NotifyFrom, s.config.NotifyTo, subject, body); err != nil {
		log.Warn("ops notification failed", map[string]interface{}{
			"quotationId": result.QuotationID,
			"error":       err.Error(),
		})
	}
}
