package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"greenroom/internal/config"
	"greenroom/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyTopicAssigned(context.Background(), "alice", "Sourdough Basics", time.Now()); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsHeaders(t *testing.T) {
	var (
		gotTitle    string
		gotTags     string
		gotPriority string
		gotBody     string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		gotPriority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyQuorumReached(context.Background(), "alice", "Sourdough Basics", 0.8, true); err != nil {
		t.Fatalf("NotifyQuorumReached failed: %v", err)
	}

	if gotTitle != "Greenroom - Verdict In" {
		t.Fatalf("unexpected title: %q", gotTitle)
	}
	if gotTags != "greenroom,review,judged" {
		t.Fatalf("unexpected tags: %q", gotTags)
	}
	if gotPriority != "high" {
		t.Fatalf("unexpected priority: %q", gotPriority)
	}
	want := "@alice: Sourdough Basics scored 0.80 and was accepted for publication"
	if gotBody != want {
		t.Fatalf("unexpected body: %q want %q", gotBody, want)
	}
}

func TestCategoryTogglesSuppressDelivery(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Assignments = false
	cfg.Notifications.Deadlines = false
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifyTopicAssigned(ctx, "alice", "Sourdough Basics", time.Now()); err != nil {
		t.Fatalf("NotifyTopicAssigned failed: %v", err)
	}
	if err := svc.NotifyNoWorkAvailable(ctx, "alice"); err != nil {
		t.Fatalf("NotifyNoWorkAvailable failed: %v", err)
	}
	if err := svc.NotifyWorkItemExpired(ctx, "alice", "Sourdough Basics"); err != nil {
		t.Fatalf("NotifyWorkItemExpired failed: %v", err)
	}
	if requests != 0 {
		t.Fatalf("expected disabled categories to send nothing, got %d requests", requests)
	}

	// Reviews stay enabled.
	if err := svc.NotifyReviewerPoolExhausted(ctx, "Sourdough Basics"); err != nil {
		t.Fatalf("NotifyReviewerPoolExhausted failed: %v", err)
	}
	if requests != 1 {
		t.Fatalf("expected one request for the enabled category, got %d", requests)
	}
}

func TestNtfyServiceSurfacesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
