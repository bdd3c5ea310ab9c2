package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stemsplit/internal/config"
)

const userAgent = "stemsplit/0.1.0"

// Service defines the notification surface used by batch runs.
type Service interface {
	NotifyBatchStarted(ctx context.Context, source string, items int) error
	NotifyBatchCompleted(ctx context.Context, succeeded, failed, needsUpload int, duration time.Duration) error
	NotifyItemFailed(ctx context.Context, item, stage string, err error) error
	NotifyPublishIncomplete(ctx context.Context, item string, undelivered int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
	}
}

// Enabled reports whether svc delivers anything.
func Enabled(svc Service) bool {
	_, noop := svc.(noopService)
	return svc != nil && !noop
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyBatchStarted(ctx context.Context, source string, items int) error {
	noun := "items"
	if items == 1 {
		noun = "item"
	}
	data := payload{
		title:   "stemsplit - Batch Started",
		message: fmt.Sprintf("Processing %d %s from %s", items, noun, strings.TrimSpace(source)),
		tags:    []string{"stemsplit", "batch", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, succeeded, failed, needsUpload int, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	data := payload{
		title:   "stemsplit - Batch Complete",
		message: fmt.Sprintf("%d items processed in %s", succeeded, durationText),
		tags:    []string{"stemsplit", "batch", "completed"},
	}
	if failed > 0 || needsUpload > 0 {
		data.title = "stemsplit - Batch Complete (with errors)"
		data.message = fmt.Sprintf("%d succeeded, %d failed, %d need upload in %s", succeeded, failed, needsUpload, durationText)
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyItemFailed(ctx context.Context, item, stage string, err error) error {
	var builder strings.Builder
	builder.WriteString("❌ ")
	builder.WriteString(strings.TrimSpace(item))
	if stage = strings.TrimSpace(stage); stage != "" {
		builder.WriteString(" failed during ")
		builder.WriteString(stage)
	} else {
		builder.WriteString(" failed")
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "stemsplit - Item Failed",
		message:  builder.String(),
		tags:     []string{"stemsplit", "item", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPublishIncomplete(ctx context.Context, item string, undelivered int) error {
	data := payload{
		title:   "stemsplit - Upload Incomplete",
		message: fmt.Sprintf("%s: %d output(s) not uploaded, reupload needed", strings.TrimSpace(item), undelivered),
		tags:    []string{"stemsplit", "publish", "failed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "stemsplit - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"stemsplit", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyBatchStarted(context.Context, string, int) error { return nil }
func (noopService) NotifyBatchCompleted(context.Context, int, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyItemFailed(context.Context, string, string, error) error { return nil }
func (noopService) NotifyPublishIncomplete(context.Context, string, int) error    { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
