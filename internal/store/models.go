package store

import (
	"strings"
	"time"
)

// Role names recognized by the role gate.
const (
	RoleProducer = "producer"
	RoleReviewer = "reviewer"
	RoleAdmin    = "admin"
)

// Status represents the lifecycle of a work item.
type Status string

const (
	StatusIssued              Status = "issued"
	StatusSubmitted           Status = "submitted"
	StatusAwaitingPublication Status = "awaiting_publication"
	StatusPublished           Status = "published"
	StatusRejected            Status = "rejected"
	StatusAbandoned           Status = "abandoned"
	StatusExpired             Status = "expired"
)

var allStatuses = []Status{
	StatusIssued,
	StatusSubmitted,
	StatusAwaitingPublication,
	StatusPublished,
	StatusRejected,
	StatusAbandoned,
	StatusExpired,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// activeStatuses are the statuses in which a producer is considered busy.
var activeStatuses = map[Status]struct{}{
	StatusIssued:    {},
	StatusSubmitted: {},
}

// occupyingStatuses are the statuses in which a work item keeps its topic
// unavailable for reassignment.
var occupyingStatuses = map[Status]struct{}{
	StatusIssued:              {},
	StatusSubmitted:           {},
	StatusAwaitingPublication: {},
	StatusPublished:           {},
}

// ReviewStatus represents the lifecycle of a review assignment.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewCompleted ReviewStatus = "completed"
	ReviewExpired   ReviewStatus = "expired"
)

// AllStatuses returns the ordered list of known work-item statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsActiveStatus reports whether a status counts the producer as busy.
func IsActiveStatus(status Status) bool {
	_, ok := activeStatuses[status]
	return ok
}

// IsOccupyingStatus reports whether a status keeps the topic occupied.
func IsOccupyingStatus(status Status) bool {
	_, ok := occupyingStatuses[status]
	return ok
}

// User is a participant. The same user row carries both producer and
// reviewer reputation; role rows decide which pools they belong to.
type User struct {
	ID             int64
	Handle         string
	DisplayName    string
	Banned         bool
	ProducerRating float64
	ProducerPoints float64
	ReviewerRating float64
	ReviewerPoints float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Collection groups topics a producer can subscribe to.
type Collection struct {
	ID        int64
	Title     string
	CreatedAt time.Time
}

// Topic is a unit of work within a collection.
type Topic struct {
	ID               int64
	CollectionID     int64
	Title            string
	ExternalRef      string
	ComplexityWeight float64
	CreatedAt        time.Time
}

// WorkItem links a producer to a topic with a deadline and lifecycle status.
type WorkItem struct {
	ID               int64
	ProducerID       int64
	TopicID          int64
	Status           Status
	CreatedAt        time.Time
	DueAt            time.Time
	UpdatedAt        time.Time
	FinalScore       *float64
	JudgedAt         *time.Time
	ExtensionOffered bool
}

// IsActive reports whether the work item counts its producer as busy.
func (w WorkItem) IsActive() bool {
	return IsActiveStatus(w.Status)
}

// Artifact is the submitted deliverable for a work item.
type Artifact struct {
	ID              int64
	WorkItemID      int64
	ExternalRef     string
	DurationSeconds float64
	CreatedAt       time.Time
}

// ReviewAssignment links a reviewer to an artifact with a deadline.
type ReviewAssignment struct {
	ID          int64
	ReviewerID  int64
	ArtifactID  int64
	Status      ReviewStatus
	CreatedAt   time.Time
	DueAt       time.Time
	Extended    bool
	CompletedAt *time.Time
}

// Verdict is a reviewer's score and comment, one per review assignment.
type Verdict struct {
	ID                 int64
	ReviewAssignmentID int64
	Score              float64
	Comment            string
	CreatedAt          time.Time
}

// JudgedWorkItem is a judged work item with the fields the rating engine
// needs, in chronological judgment order.
type JudgedWorkItem struct {
	WorkItemID       int64
	FinalScore       float64
	ComplexityWeight float64
	JudgedAt         time.Time
}

// SubjectValue pairs a user with one aggregate value for population
// normalization.
type SubjectValue struct {
	UserID int64
	Value  float64
}

// BacklogEntry is a submitted artifact still short of quorum, carrying the
// context the review dispatcher orders and guards by.
type BacklogEntry struct {
	Artifact       Artifact
	WorkItemID     int64
	TopicID        int64
	ProducerID     int64
	ProducerRating float64
	ReviewCount    int
}
