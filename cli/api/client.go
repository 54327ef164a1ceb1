package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rewind/api/model"
	"rewind/api/saga"
)

// Client talks to a running rewind API server.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type HealthStatus struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

type Deployment struct {
	Directory string    `json:"directory"`
	Timestamp time.Time `json:"timestamp"`
	Millis    int64     `json:"millis"`
	Complete  bool      `json:"complete"`
	Files     []string  `json:"files"`
}

type DeploymentList struct {
	Service     string       `json:"service"`
	Stage       string       `json:"stage"`
	Bucket      string       `json:"bucket"`
	Deployments []Deployment `json:"deployments"`
}

type Accepted struct {
	SagaID      string `json:"sagaId"`
	Status      string `json:"status"`
	StackName   string `json:"stackName"`
	Directory   string `json:"directory"`
	TemplateURL string `json:"templateUrl"`
}

// Error is a non-2xx API response. Kind carries the rollback error kind
// when the server reported one.
type Error struct {
	StatusCode int
	Message    string          `json:"error"`
	Kind       model.ErrorKind `json:"kind"`
	Hint       string          `json:"hint"`
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (c *Client) Health() (*HealthStatus, error) {
	var h HealthStatus
	if err := c.do(http.MethodGet, "/api/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) Deployments(service, stage, region string) (*DeploymentList, error) {
	path := fmt.Sprintf("/api/services/%s/stages/%s/deployments", url.PathEscape(service), url.PathEscape(stage))
	if region != "" {
		path += "?region=" + url.QueryEscape(region)
	}
	var list DeploymentList
	if err := c.do(http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Rollback starts a rollback on the server. A zero interval or timeout
// leaves the server's setting in place.
func (c *Client) Rollback(service, stage, region, timestamp string, interval, timeout time.Duration) (*Accepted, error) {
	body, _ := json.Marshal(rollbackRequest{
		Timestamp:        timestamp,
		Region:           region,
		PollIntervalMs:   interval.Milliseconds(),
		MonitorTimeoutMs: timeout.Milliseconds(),
	})
	path := fmt.Sprintf("/api/services/%s/stages/%s/rollback", url.PathEscape(service), url.PathEscape(stage))
	var a Accepted
	if err := c.do(http.MethodPost, path, strings.NewReader(string(body)), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

type rollbackRequest struct {
	Timestamp        string `json:"timestamp"`
	Region           string `json:"region,omitempty"`
	PollIntervalMs   int64  `json:"pollIntervalMs,omitempty"`
	MonitorTimeoutMs int64  `json:"monitorTimeoutMs,omitempty"`
}

func (c *Client) SagaEvents(sagaID string) ([]saga.Event, error) {
	var events []saga.Event
	if err := c.do(http.MethodGet, "/api/saga/"+url.PathEscape(sagaID), nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) do(method, path string, body io.Reader, v any) error {
	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &Error{StatusCode: resp.StatusCode}
		if json.Unmarshal(b, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(b))
		}
		return apiErr
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) WebSocketURL() string {
	base := c.BaseURL
	base = strings.Replace(base, "http://", "ws://", 1)
	base = strings.Replace(base, "https://", "wss://", 1)
	return base + "/ws"
}
