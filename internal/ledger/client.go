package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scraper/internal/export"
	"github.com/sells-group/lead-scraper/internal/model"
	"github.com/sells-group/lead-scraper/internal/resilience"
)

const defaultTimeout = 15 * time.Second

// Protocol actions.
const (
	actionCreateJob     = "createJob"
	actionUpdateJob     = "updateJob"
	actionUploadResults = "uploadResults"
	actionUploadCSV     = "uploadCsv"
	actionGetJobState   = "getJobState"
	actionListJobs      = "listJobs"
)

type request struct {
	Action string `json:"action"`
	JobID  string `json:"jobId,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	JobID   string `json:"jobId,omitempty"`
	CSVURL  string `json:"csvUrl,omitempty"`
	Job     *Job   `json:"job,omitempty"`
	Jobs    []Job  `json:"jobs,omitempty"`
}

type updateData struct {
	Status       string          `json:"status,omitempty"`
	Progress     *model.Progress `json:"progress,omitempty"`
	TotalResults *int            `json:"totalResults,omitempty"`
	CSVURL       *string         `json:"csvUrl,omitempty"`
}

// Option configures the client.
type Option func(*Client)

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// Client posts protocol requests to a single ledger endpoint. Calls are not
// retried; after repeated failures the breaker rejects calls until the
// endpoint has had time to recover.
type Client struct {
	url     string
	http    *http.Client
	breaker *resilience.CircuitBreaker
}

// NewClient creates a ledger client for url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:  url,
		http: &http.Client{Timeout: defaultTimeout},
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     time.Minute,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("ledger: circuit state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Enabled implements Ledger.
func (c *Client) Enabled() bool { return true }

func (c *Client) post(ctx context.Context, req request) (*response, error) {
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*response, error) {
		body, err := json.Marshal(req)
		if err != nil {
			return nil, eris.Wrapf(err, "ledger: marshal %s", req.Action)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, eris.Wrapf(err, "ledger: create %s request", req.Action)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, eris.Wrapf(err, "ledger: %s", req.Action)
		}
		defer resp.Body.Close() //nolint:errcheck

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrapf(err, "ledger: read %s response", req.Action)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, resilience.NewStatusError("ledger", resp.StatusCode, respBody)
		}

		var out response
		if len(bytes.TrimSpace(respBody)) == 0 {
			return &out, nil
		}
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, eris.Wrapf(err, "ledger: decode %s response", req.Action)
		}
		return &out, nil
	})
}

// CreateJob implements Ledger.
func (c *Client) CreateJob(ctx context.Context, niche, region string) (string, error) {
	resp, err := c.post(ctx, request{
		Action: actionCreateJob,
		Data:   map[string]string{"niche": niche, "region": region},
	})
	if err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", eris.Errorf("ledger: createJob returned no job id: %s", resp.Error)
	}
	return resp.JobID, nil
}

// UpdateJob implements Ledger. It is a no-op without a job id.
func (c *Client) UpdateJob(ctx context.Context, jobID string, u Update) error {
	if jobID == "" {
		return nil
	}
	data := updateData{
		Progress:     u.Progress,
		TotalResults: u.TotalResults,
		CSVURL:       u.ExportURL,
	}
	if u.Status != nil {
		data.Status = u.Status.String()
	}
	_, err := c.post(ctx, request{Action: actionUpdateJob, JobID: jobID, Data: data})
	return err
}

// UploadResults implements Ledger.
func (c *Client) UploadResults(ctx context.Context, jobID string, rows []export.Row) error {
	if jobID == "" {
		return nil
	}
	_, err := c.post(ctx, request{
		Action: actionUploadResults,
		JobID:  jobID,
		Data:   map[string]any{"results": rows},
	})
	return err
}

// UploadCSV implements Ledger. It returns the hosted file URL, if any.
func (c *Client) UploadCSV(ctx context.Context, jobID string, content []byte, fileName string) (string, error) {
	if jobID == "" {
		return "", nil
	}
	resp, err := c.post(ctx, request{
		Action: actionUploadCSV,
		JobID:  jobID,
		Data:   map[string]string{"csv": string(content), "fileName": fileName},
	})
	if err != nil {
		return "", err
	}
	return resp.CSVURL, nil
}

// GetJob implements Ledger.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, nil
	}
	resp, err := c.post(ctx, request{Action: actionGetJobState, JobID: jobID})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, nil
	}
	return resp.Job, nil
}

// ListJobs implements Ledger.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	resp, err := c.post(ctx, request{Action: actionListJobs})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, eris.Errorf("ledger: listJobs failed: %s", resp.Error)
	}
	return resp.Jobs, nil
}
