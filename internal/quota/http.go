package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/epam/syndicate-rule-engine-sub000/internal/model"
)

// HTTPBroker is the production Broker: bearer-token-authenticated JSON over
// HTTP against the license manager's post_job/update_job endpoints.
type HTTPBroker struct {
	baseURL    string
	token      string
	httpClient *http.Client
	debug      bool
}

func NewHTTPBroker(baseURL, token string, debug bool) *HTTPBroker {
	return &HTTPBroker{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		debug: debug,
	}
}

// ResolveBrokerURL returns the license manager base URL.
// Priority: config > env var LM_API_URL.
func ResolveBrokerURL() string {
	if url := strings.TrimSpace(viper.GetString("quota.url")); url != "" {
		return url
	}
	return strings.TrimSpace(os.Getenv("LM_API_URL"))
}

// ResolveBrokerToken returns the license manager auth token.
// Priority: config > env var LM_API_TOKEN.
func ResolveBrokerToken() string {
	if token := strings.TrimSpace(viper.GetString("quota.token")); token != "" {
		return token
	}
	return strings.TrimSpace(os.Getenv("LM_API_TOKEN"))
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Denied  bool            `json:"denied,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (b *HTTPBroker) doRequest(ctx context.Context, method, path string, body interface{}) (apiEnvelope, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apiEnvelope{}, fmt.Errorf("quota: marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bodyReader)
	if err != nil {
		return apiEnvelope{}, fmt.Errorf("quota: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	req.Header.Set("Content-Type", "application/json")

	if b.debug {
		fmt.Printf("[quota] %s %s\n", method, path)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return apiEnvelope{}, fmt.Errorf("quota: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiEnvelope{}, fmt.Errorf("quota: read response: %w", err)
	}

	var env apiEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return apiEnvelope{}, fmt.Errorf("quota: parse response: %w", err)
		}
	}

	if resp.StatusCode == http.StatusForbidden || env.Denied {
		msg := env.Error
		if msg == "" {
			msg = "ruleset not authorized"
		}
		return apiEnvelope{}, &ErrDenied{Message: msg}
	}
	if resp.StatusCode >= 400 {
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return apiEnvelope{}, fmt.Errorf("quota: broker error: %s", msg)
	}
	return env, nil
}

func (b *HTTPBroker) PreAuthorize(ctx context.Context, req PreAuthorizeRequest) (PreAuthorizeResponse, error) {
	env, err := b.doRequest(ctx, http.MethodPost, "/jobs", req)
	if err != nil {
		return PreAuthorizeResponse{}, err
	}
	var data PreAuthorizeResponse
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return PreAuthorizeResponse{}, fmt.Errorf("quota: parse authorizations: %w", err)
		}
	}
	return data, nil
}

func (b *HTTPBroker) UpdateJob(ctx context.Context, job *model.Job) error {
	body := struct {
		JobID      string          `json:"job_id"`
		Customer   string          `json:"customer"`
		CreatedAt  time.Time       `json:"created_at"`
		StartedAt  *time.Time      `json:"started_at,omitempty"`
		StoppedAt  *time.Time      `json:"stopped_at,omitempty"`
		Status     model.JobStatus `json:"status"`
	}{
		JobID:     job.ID,
		Customer:  job.CustomerName,
		CreatedAt: job.SubmittedAt,
		StartedAt: job.StartedAt,
		StoppedAt: job.StoppedAt,
		Status:    job.Status,
	}
	_, err := b.doRequest(ctx, http.MethodPut, "/jobs/"+job.ID, body)
	return err
}
