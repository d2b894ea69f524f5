// internal/common/genai/client.go
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"inquiry-workers/internal/common/errors"
	commonhttp "inquiry-workers/internal/common/http"
	"inquiry-workers/internal/common/logger"

	"github.com/xeipuuv/gojsonschema"
)

// extractionSchema pins the allowed response shape: only customer, delivery
// and items may appear at the top level. Anything else is a parse failure.
const extractionSchema = `{
	"type": "object",
	"properties": {
		"customer": {"type": ["object", "null"]},
		"delivery": {"type": ["object", "null"]},
		"items": {"type": ["array", "null"]}
	},
	"additionalProperties": false
}`

// ExtractionRequest carries the mail fields handed to the AI service.
type ExtractionRequest struct {
	Subject       string `json:"subject"`
	SenderAddress string `json:"senderAddress"`
	BodyText      string `json:"bodyText"`
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout int // milliseconds
}

// Client calls the GenAI extraction endpoint and validates the response shape.
type Client struct {
	config *Config
	client *commonhttp.Client
	logger logger.Logger
}

func NewClient(cfg *Config, httpClient *commonhttp.Client, log logger.Logger) *Client {
	return &Client{
		config: cfg,
		client: httpClient,
		logger: log.WithFields(map[string]interface{}{"component": "genai"}),
	}
}

// ExtractInquiry posts the email to the AI service and returns the raw,
// shape-validated extraction JSON. Field-level validation happens later in
// the normalizer; only the top-level shape is enforced here.
func (c *Client) ExtractInquiry(ctx context.Context, req ExtractionRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.NewExtractionFailedError(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/api/ai/extract-inquiry", bytes.NewBuffer(body))
	if err != nil {
		return nil, errors.NewExtractionFailedError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.NewExtractionFailedError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewExtractionFailedError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewExtractionFailedError(
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	if err := validateShape(respBody); err != nil {
		return nil, err
	}

	c.logger.Info("extraction response accepted", map[string]interface{}{
		"bytes": len(respBody),
	})

	return json.RawMessage(respBody), nil
}

func validateShape(body []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(extractionSchema)
	documentLoader := gojsonschema.NewBytesLoader(body)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return errors.NewExtractionSchemaInvalidError(fmt.Sprintf("not a JSON object: %v", err))
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return errors.NewExtractionSchemaInvalidError(strings.Join(details, "; "))
	}

	return nil
}
