package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/riverqueue/river"
)

// MaxAttempts bounds lead-sync delivery retries. Exhausted batches are only
// logged; lead registration itself already succeeded.
const MaxAttempts = 4

// LeadSyncWorker delivers lead batches to the configured lead-processing
// webhook.
type LeadSyncWorker struct {
	river.WorkerDefaults[LeadSyncJobArgs]
	webhookURL string
	httpClient *http.Client
	log        *slog.Logger
}

func NewLeadSyncWorker(webhookURL string, timeout time.Duration, log *slog.Logger) *LeadSyncWorker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &LeadSyncWorker{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (w *LeadSyncWorker) Work(ctx context.Context, job *river.Job[LeadSyncJobArgs]) error {
	if w.webhookURL == "" {
		w.log.Debug("lead webhook not configured, dropping batch", "partner_id", job.Args.PartnerID)
		return nil
	}

	body, err := json.Marshal(job.Args)
	if err != nil {
		return fmt.Errorf("marshal lead batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create lead sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver lead batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("lead webhook returned %d", resp.StatusCode)
	}
	w.log.Info("lead batch delivered", "partner_id", job.Args.PartnerID, "leads", len(job.Args.Leads))
	return nil
}
