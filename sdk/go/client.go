package bluepulsesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal BluePulse HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	timeout := 10 * time.Second
	return &Client{
		BaseURL:    baseURL,
		Timeout:    timeout,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Health reports service availability.
type Health struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
}

// Stats mirrors the dashboard headline numbers.
type Stats struct {
	TotalSpecies       int     `json:"totalSpecies"`
	AIModels           int     `json:"aiModels"`
	MonitoringStations int     `json:"monitoringStations"`
	PredictionsToday   int     `json:"predictionsToday"`
	DataQuality        float64 `json:"dataQuality"`
	SystemUptime       string  `json:"systemUptime"`
}

// Forecast is a historical+predicted parameter series.
type Forecast struct {
	Parameter  string    `json:"parameter"`
	Timestamps []string  `json:"timestamps"`
	Historical []float64 `json:"historical"`
	Forecast   []float64 `json:"forecast"`
	Accuracy   float64   `json:"accuracy"`
	Model      string    `json:"model"`
}

// AnalysisStarted acknowledges a submitted eDNA analysis.
type AnalysisStarted struct {
	AnalysisID    string `json:"analysis_id"`
	Status        string `json:"status"`
	EstimatedTime string `json:"estimated_time"`
	GeneTarget    string `json:"gene_target"`
	AnalysisType  string `json:"analysis_type"`
}

// AnalysisResults is a progress or completion snapshot.
type AnalysisResults struct {
	AnalysisID   string `json:"analysis_id"`
	Status       string `json:"status"`
	CurrentStage int    `json:"current_stage"`
	TotalStages  int    `json:"total_stages"`
	StageName    string `json:"stage_name"`
}

// TrainingStatus is a live training snapshot.
type TrainingStatus struct {
	TrainingID      string  `json:"training_id"`
	Status          string  `json:"status"`
	CurrentEpoch    int     `json:"current_epoch"`
	TotalEpochs     int     `json:"total_epochs"`
	CurrentLoss     float64 `json:"current_loss"`
	CurrentAccuracy float64 `json:"current_accuracy"`
	BestAccuracy    float64 `json:"best_accuracy"`
}

// ChatReply is the assistant's answer.
type ChatReply struct {
	Response   string  `json:"response"`
	Timestamp  string  `json:"timestamp"`
	Model      string  `json:"model"`
	Confidence float64 `json:"confidence"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health checks service availability.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var resp Health
	err := c.do(ctx, http.MethodGet, "api/health", nil, &resp)
	return resp, err
}

// DashboardStats returns the headline dashboard numbers.
func (c *Client) DashboardStats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "api/dashboard/stats", nil, &resp)
	return resp, err
}

// Forecast generates a parameter series. Pass hours <= 0 for the server
// default horizon.
func (c *Client) Forecast(ctx context.Context, parameter string, hours int) (Forecast, error) {
	endpoint := fmt.Sprintf("api/oceanographic/forecast/%s", url.PathEscape(parameter))
	if hours > 0 {
		endpoint = fmt.Sprintf("%s?hours=%d", endpoint, hours)
	}
	var resp Forecast
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// StartAnalysis submits an eDNA analysis job.
func (c *Client) StartAnalysis(ctx context.Context, geneTarget, analysisType string) (AnalysisStarted, error) {
	q := url.Values{}
	if geneTarget != "" {
		q.Set("gene_target", geneTarget)
	}
	if analysisType != "" {
		q.Set("analysis_type", analysisType)
	}
	endpoint := "api/edna/analyze"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp AnalysisStarted
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// AnalysisResults returns progress for a submitted analysis.
func (c *Client) AnalysisResults(ctx context.Context, analysisID string) (AnalysisResults, error) {
	var resp AnalysisResults
	endpoint := fmt.Sprintf("api/edna/results/%s", url.PathEscape(analysisID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// TrainingStatus returns progress for a submitted training run.
func (c *Client) TrainingStatus(ctx context.Context, trainingID string) (TrainingStatus, error) {
	var resp TrainingStatus
	endpoint := fmt.Sprintf("api/ml/training/%s/status", url.PathEscape(trainingID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Chat sends a message to the assistant.
func (c *Client) Chat(ctx context.Context, message string) (ChatReply, error) {
	var resp ChatReply
	err := c.do(ctx, http.MethodPost, "api/ai/chat", map[string]any{"message": message}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	client := c.HTTPClient
	if client == nil {
		// Zero-value clients get a throwaway default; do never mutates c,
		// so concurrent calls stay safe.
		client = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
