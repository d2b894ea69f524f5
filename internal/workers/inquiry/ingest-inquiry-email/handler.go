// internal/workers/inquiry/ingest-inquiry-email/handler.go
package ingestinquiryemail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	commonerrors "inquiry-workers/internal/common/errors"
	"inquiry-workers/internal/common/logger"
	"inquiry-workers/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "ingest-inquiry-email"
)

var (
	ErrConfigMissing        = errors.New("CONFIG_MISSING")
	ErrNoValidLines         = errors.New("NO_VALID_LINES")
	ErrDatabaseInsertFailed = errors.New("DATABASE_INSERT_FAILED")
	ErrStoreLookupFailed    = errors.New("STORE_LOOKUP_FAILED")
)

type Handler struct {
	config  *Config
	service *Service
	logger  logger.Logger
}

func NewHandler(config *Config, service *Service, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		service: service,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	input, err := parseInput(job)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.service.Execute(ctx, input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.completeJob(client, job, output)
}

// parseInput unmarshals and validates the job variables.
func parseInput(job entities.Job) (*Input, error) {
	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return nil, &commonerrors.StandardError{
			Code:      "PARSE_ERROR",
			Message:   "Failed to parse job variables",
			Details:   err.Error(),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	}

	if input.OwnerID == "" {
		return nil, &commonerrors.StandardError{
			Code:      "INVALID_INPUT",
			Message:   "ownerId is required",
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	}

	return &input, nil
}

// classifyError maps pipeline errors to workflow error codes.
func classifyError(err error) string {
	var se *commonerrors.StandardError
	if errors.As(err, &se) {
		return string(se.Code)
	}

	switch {
	case errors.Is(err, ErrNoValidLines):
		return string(commonerrors.ErrCodeNoValidLines)
	case errors.Is(err, ErrDatabaseInsertFailed):
		return string(commonerrors.ErrCodeDatabaseInsertFailed)
	case errors.Is(err, ErrStoreLookupFailed):
		return string(commonerrors.ErrCodeStoreLookupFailed)
	case errors.Is(err, ErrConfigMissing):
		return string(commonerrors.ErrCodeConfigMissing)
	}
	return "UNKNOWN_ERROR"
}

// convertToStandardError lifts sentinel and unknown errors into the
// structured form used by the BPMN error bridge.
func convertToStandardError(err error) *commonerrors.StandardError {
	var se *commonerrors.StandardError
	if errors.As(err, &se) {
		return se
	}
	return &commonerrors.StandardError{
		Code:      commonerrors.ErrorCode(classifyError(err)),
		Message:   "Inquiry ingestion failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	} else {
		h.logger.Info("job completed successfully", map[string]interface{}{
			"jobKey": job.Key,
		})
	}
}

// failJob reports the failure without retries: a rerun after a mid-sequence
// persistence failure would create a duplicate inquiry graph for the same
// source email. The structured error is attached as job variables so the
// workflow can branch on errorCode/retryable.
func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	bpmnErr := convertToStandardError(err).ToBPMN(0)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()

	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    bpmnErr.Code,
		"errorMessage": bpmnErr.Message,
		"retryable":    bpmnErr.Retryable,
	})

	failCmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(int32(bpmnErr.Retries)).
		ErrorMessage(fmt.Sprintf("[%s] %s", bpmnErr.Code, bpmnErr.Message))

	var finalCmd interface {
		Send(context.Context) (*pb.FailJobResponse, error)
	} = failCmd

	varCmd, varErr := failCmd.VariablesFromMap(bpmnErr.ToErrorVariables())
	if varErr != nil {
		h.logger.Error("failed to set error variables, sending without them", map[string]interface{}{
			"error": varErr.Error(),
		})
	} else {
		finalCmd = varCmd
	}

	if _, sendErr := finalCmd.Send(context.Background()); sendErr != nil {
		h.logger.Error("failed to fail job", map[string]interface{}{
			"error": sendErr.Error(),
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.service.Execute(ctx, input)
}
