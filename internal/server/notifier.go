package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/thermokinetics/kinetics-core/internal/engine"
	"github.com/thermokinetics/kinetics-core/pkg/logger"
	"github.com/thermokinetics/kinetics-core/pkg/models"
	"github.com/thermokinetics/kinetics-core/pkg/utils"
)

// NotificationPayload is the JSON body posted to the callback URL when a
// calculation reaches a terminal state.
type NotificationPayload struct {
	RunID       string  `json:"run_id"`
	Status      string  `json:"status"`
	BestFun     float64 `json:"best_fun"`
	Iterations  int     `json:"iterations"`
	Evaluations int     `json:"evaluations"`
	Converged   bool    `json:"converged"`
	Message     string  `json:"message,omitempty"`
	Timestamp   int64   `json:"timestamp"`
}

// Notifier posts terminal run states to a configured callback URL with
// retries. A Notifier with an empty URL is a no-op.
type Notifier struct {
	url        string
	secret     string
	httpClient *http.Client
	maxRetries int
	backoff    utils.BackoffStrategy
}

// NewNotifier creates a callback notifier. The URL may contain a {run_id}
// template.
func NewNotifier(url, secret string) *Notifier {
	return &Notifier{
		url:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    utils.NewExponentialBackoff(time.Second, 2, 30*time.Second),
	}
}

// NotifyFinished implements the engine's finish hook. It returns
// immediately; delivery happens on its own goroutine.
func (n *Notifier) NotifyFinished(runID string, status models.RunStatus, result *engine.DEResult) {
	if n.url == "" {
		return
	}
	payload := NotificationPayload{
		RunID:     runID,
		Status:    string(status),
		Timestamp: time.Now().UTC().UnixMilli(),
	}
	if result != nil {
		payload.BestFun = result.Fun
		payload.Iterations = result.Iterations
		payload.Evaluations = result.Evaluations
		payload.Converged = result.Converged
		payload.Message = result.Message
	}
	url := strings.ReplaceAll(n.url, "{run_id}", runID)
	go n.send(url, payload)
}

func (n *Notifier) send(url string, payload NotificationPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to encode callback payload", "run_id", payload.RunID, "error", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(n.backoff.NextDelay(attempt - 1))
		}

		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "kinetics-core/1.0")
		if n.secret != "" {
			req.Header.Set("X-Kinetics-Callback-Secret", n.secret)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = err
			logger.Warn("callback attempt failed",
				"url", url, "run_id", payload.RunID, "attempt", attempt+1, "error", err)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("callback delivered",
				"run_id", payload.RunID, "status", payload.Status, "status_code", resp.StatusCode)
			return
		}
		lastErr = &callbackStatusError{code: resp.StatusCode}
		logger.Warn("callback returned non-2xx status",
			"url", url, "run_id", payload.RunID, "status_code", resp.StatusCode, "attempt", attempt+1)
	}

	logger.Error("callback delivery failed after retries",
		"url", url, "run_id", payload.RunID, "max_retries", n.maxRetries, "last_error", lastErr)
}

type callbackStatusError struct {
	code int
}

func (e *callbackStatusError) Error() string {
	return "unexpected callback status code " + strconv.Itoa(e.code)
}
