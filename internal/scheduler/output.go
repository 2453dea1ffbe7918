package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loopgateway/core/pkg/models"
)

const (
	defaultChannelLimit   = 4000
	defaultOutputFileMode = 0o644
)

// OutputRouter delivers a ScheduledJob's result to its configured
// destination (spec §4.9 Output Router).
type OutputRouter struct {
	Channel    ChannelSender
	HTTPClient *http.Client
	Email      EmailSender
	FileRoot   string
}

// NewOutputRouter constructs a router with stdlib defaults for the
// collaborators that are nil.
func NewOutputRouter(channel ChannelSender, httpClient *http.Client, email EmailSender, fileRoot string) *OutputRouter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OutputRouter{Channel: channel, HTTPClient: httpClient, Email: email, FileRoot: fileRoot}
}

// Route delivers result to job's output destination.
func (r *OutputRouter) Route(ctx context.Context, job *models.ScheduledJob, result string) error {
	switch job.Output.Kind {
	case models.OutputChannel:
		return r.routeChannel(ctx, job.Output.ChannelID, result)
	case models.OutputWebhook:
		return r.routeWebhook(ctx, job, result)
	case models.OutputFile:
		return r.routeFile(job, result)
	case models.OutputEmail:
		return r.routeEmail(ctx, job, result)
	default:
		return fmt.Errorf("unsupported output kind %q", job.Output.Kind)
	}
}

func (r *OutputRouter) routeChannel(ctx context.Context, channelID, result string) error {
	if r.Channel == nil {
		return fmt.Errorf("no channel sender configured")
	}
	for _, chunk := range splitForChannel(result, defaultChannelLimit) {
		if err := r.Channel.Send(ctx, channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// splitForChannel breaks text into chunks no longer than limit, splitting on
// the nearest newline at or after half the limit when one is available.
func splitForChannel(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := limit
		half := limit / 2
		if idx := strings.LastIndexByte(text[half:limit], '\n'); idx >= 0 {
			cut = half + idx + 1
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func (r *OutputRouter) routeWebhook(ctx context.Context, job *models.ScheduledJob, result string) error {
	if strings.TrimSpace(job.Output.WebhookURL) == "" {
		return fmt.Errorf("webhook output missing url")
	}
	payload, err := json.Marshal(map[string]any{
		"job":       job.Name,
		"result":    result,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, job.Output.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		// Non-2xx and transport failures are logged by the caller, never retried.
		return fmt.Errorf("output webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("output webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (r *OutputRouter) routeFile(job *models.ScheduledJob, result string) error {
	path := sanitizeOutputPath(r.FileRoot, job.Output.FilePath)
	if path == "" {
		return fmt.Errorf("file output missing path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	content := fmt.Sprintf("# %s\n\nGenerated: %s\n\n---\n\n%s", job.Name, time.Now().UTC().Format(time.RFC3339), result)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), defaultOutputFileMode); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize output file: %w", err)
	}
	return nil
}

// sanitizeOutputPath confines filePath to root, rejecting absolute paths and
// traversal segments.
func sanitizeOutputPath(root, filePath string) string {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" || root == "" {
		return ""
	}
	cleaned := filepath.Clean("/" + filePath)
	return filepath.Join(root, cleaned)
}

func (r *OutputRouter) routeEmail(ctx context.Context, job *models.ScheduledJob, result string) error {
	if r.Email == nil {
		return fmt.Errorf("no email sender configured")
	}
	if strings.TrimSpace(job.Output.EmailTo) == "" {
		return fmt.Errorf("email output missing recipient")
	}
	subject := fmt.Sprintf("Scheduled job: %s", job.Name)
	return r.Email.Send(ctx, job.Output.EmailTo, subject, result)
}
