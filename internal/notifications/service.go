// Package notifications delivers human-readable push messages for pipeline
// events. Delivery runs outside state-mutating transactions; a failure is
// logged by the caller and never rolls back committed state.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"greenroom/internal/config"
)

const userAgent = "Greenroom/0.1.0"

// Service defines the notification surface exposed to the engines and the
// scheduler. The handle identifies the recipient in the message body; ntfy
// has no per-user addressing, so all messages land on the configured topic.
type Service interface {
	NotifyTopicAssigned(ctx context.Context, handle, topicTitle string, dueAt time.Time) error
	NotifyReviewAssigned(ctx context.Context, handle, topicTitle string, dueAt time.Time) error
	NotifyExtensionOffered(ctx context.Context, handle, topicTitle string, dueAt time.Time) error
	NotifyWorkItemExpired(ctx context.Context, handle, topicTitle string) error
	NotifyReviewExpired(ctx context.Context, handle, topicTitle string) error
	NotifyQuorumReached(ctx context.Context, handle, topicTitle string, finalScore float64, accepted bool) error
	NotifyNoWorkAvailable(ctx context.Context, handle string) error
	NotifyReviewerPoolExhausted(ctx context.Context, topicTitle string) error
	NotifyError(ctx context.Context, err error, context string) error
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
		endpoint:    topic,
		client:      client,
		assignments: cfg.Notifications.Assignments,
		reviews:     cfg.Notifications.Reviews,
		deadlines:   cfg.Notifications.Deadlines,
		errors:      cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

// ntfyService posts to an ntfy topic URL. The category toggles suppress
// whole event classes without touching the call sites.
type ntfyService struct {
	endpoint    string
	client      *http.Client
	assignments bool
	reviews     bool
	deadlines   bool
	errors      bool
}

func (n *ntfyService) NotifyTopicAssigned(ctx context.Context, handle, topicTitle string, dueAt time.Time) error {
	if !n.assignments {
		return nil
	}
	data := payload{
		title:   "Greenroom - Topic Assigned",
		message: fmt.Sprintf("@%s picked up: %s (due %s)", handle, topicTitle, dueAt.Format("Jan 2 15:04")),
		tags:    []string{"greenroom", "assignment", "created"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReviewAssigned(ctx context.Context, handle, topicTitle string, dueAt time.Time) error {
	if !n.reviews {
		return nil
	}
	data := payload{
		title:   "Greenroom - Review Assigned",
		message: fmt.Sprintf("@%s to review: %s (due %s)", handle, topicTitle, dueAt.Format("Jan 2 15:04")),
		tags:    []string{"greenroom", "review", "created"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyExtensionOffered(ctx context.Context, handle, topicTitle string, dueAt time.Time) error {
	if !n.deadlines {
		return nil
	}
	data := payload{
		title:   "Greenroom - Deadline Approaching",
		message: fmt.Sprintf("@%s: %s is due %s. A one-time extension is available.", handle, topicTitle, dueAt.Format("Jan 2 15:04")),
		tags:    []string{"greenroom", "deadline", "extension"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyWorkItemExpired(ctx context.Context, handle, topicTitle string) error {
	if !n.deadlines {
		return nil
	}
	data := payload{
		title:    "Greenroom - Assignment Expired",
		message:  fmt.Sprintf("@%s missed the deadline for: %s. The topic is back in the pool.", handle, topicTitle),
		tags:     []string{"greenroom", "deadline", "expired"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReviewExpired(ctx context.Context, handle, topicTitle string) error {
	if !n.deadlines {
		return nil
	}
	data := payload{
		title:   "Greenroom - Review Expired",
		message: fmt.Sprintf("@%s let a review lapse for: %s", handle, topicTitle),
		tags:    []string{"greenroom", "review", "expired"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQuorumReached(ctx context.Context, handle, topicTitle string, finalScore float64, accepted bool) error {
	if !n.reviews {
		return nil
	}
	verdict := "accepted for publication"
	if !accepted {
		verdict = "sent back for revision"
	}
	data := payload{
		title:    "Greenroom - Verdict In",
		message:  fmt.Sprintf("@%s: %s scored %.2f and was %s", handle, topicTitle, finalScore, verdict),
		tags:     []string{"greenroom", "review", "judged"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyNoWorkAvailable(ctx context.Context, handle string) error {
	if !n.assignments {
		return nil
	}
	data := payload{
		title:    "Greenroom - No Work Available",
		message:  fmt.Sprintf("@%s: no free topics match your subscriptions right now", handle),
		tags:     []string{"greenroom", "assignment", "empty"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReviewerPoolExhausted(ctx context.Context, topicTitle string) error {
	if !n.reviews {
		return nil
	}
	data := payload{
		title:   "Greenroom - Reviewer Pool Exhausted",
		message: fmt.Sprintf("No eligible reviewer for: %s", topicTitle),
		tags:    []string{"greenroom", "review", "exhausted"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" in ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Greenroom - Error",
		message:  builder.String(),
		tags:     []string{"greenroom", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Greenroom - Test",
		message:  "Notification system test",
		tags:     []string{"greenroom", "test"},
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

func (noopService) NotifyTopicAssigned(context.Context, string, string, time.Time) error  { return nil }
func (noopService) NotifyReviewAssigned(context.Context, string, string, time.Time) error { return nil }
func (noopService) NotifyExtensionOffered(context.Context, string, string, time.Time) error {
	return nil
}
func (noopService) NotifyWorkItemExpired(context.Context, string, string) error { return nil }
func (noopService) NotifyReviewExpired(context.Context, string, string) error   { return nil }
func (noopService) NotifyQuorumReached(context.Context, string, string, float64, bool) error {
	return nil
}
func (noopService) NotifyNoWorkAvailable(context.Context, string) error       { return nil }
func (noopService) NotifyReviewerPoolExhausted(context.Context, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error          { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }
