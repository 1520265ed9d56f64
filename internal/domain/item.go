package domain

import (
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes the two marketplace record families sharing one lifecycle.
type Kind string

const (
	KindFeedback Kind = "feedback"
	KindQuestion Kind = "question"
)

// Kinds lists every known kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindFeedback, KindQuestion}
}

// ParseKind accepts the singular and plural spellings used by operators.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "feedback", "feedbacks":
		return KindFeedback, nil
	case "question", "questions":
		return KindQuestion, nil
	default:
		return "", fmt.Errorf("unknown item kind %q", value)
	}
}

// Status enumerates the reply lifecycle milestones.
type Status string

const (
	StatusLoaded    Status = "loaded"
	StatusGenerated Status = "generated"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
)

var transitions = map[Status][]Status{
	StatusLoaded:    {StatusGenerated},
	StatusGenerated: {StatusSent, StatusFailed},
	StatusFailed:    {StatusGenerated, StatusLoaded},
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Payload is the kind-specific part of an Item. The set of implementations is closed.
type Payload interface {
	Kind() Kind
	isPayload()
}

// FeedbackPayload carries the review-only fields.
type FeedbackPayload struct {
	Rating   *int
	Reviewer string
}

func (FeedbackPayload) Kind() Kind { return KindFeedback }
func (FeedbackPayload) isPayload() {}

// QuestionPayload marks a customer question; it has no extra fields.
type QuestionPayload struct{}

func (QuestionPayload) Kind() Kind { return KindQuestion }
func (QuestionPayload) isPayload() {}

// Item is a single customer record moving through ingest, generate and deliver.
type Item struct {
	ID           int64
	ExternalID   string
	ProductID    *int64
	ProductTitle string
	Text         string
	CreatedAt    time.Time
	Status       Status
	AnswerText   string
	Payload      Payload
}

// Kind returns the payload kind, defaulting to feedback for a bare item.
func (i Item) Kind() Kind {
	if i.Payload == nil {
		return KindFeedback
	}
	return i.Payload.Kind()
}

// Rating returns the star rating for feedback items.
func (i Item) Rating() (int, bool) {
	if fb, ok := i.Payload.(FeedbackPayload); ok && fb.Rating != nil {
		return *fb.Rating, true
	}
	return 0, false
}

// Reviewer returns the buyer display name for feedback items.
func (i Item) Reviewer() string {
	if fb, ok := i.Payload.(FeedbackPayload); ok {
		return fb.Reviewer
	}
	return ""
}

// Eligible reports whether an automatic reply may be generated.
// Only five-star feedback qualifies.
func (i Item) Eligible() bool {
	switch p := i.Payload.(type) {
	case FeedbackPayload:
		return p.Rating != nil && *p.Rating == 5
	case QuestionPayload:
		return false
	default:
		return false
	}
}

// PromptText returns the text handed to generation, substituting a placeholder
// sentence when the buyer left no text.
func (i Item) PromptText() string {
	if text := strings.TrimSpace(i.Text); text != "" {
		return text
	}

	switch p := i.Payload.(type) {
	case QuestionPayload:
		return QuestionNoTextMarker
	case FeedbackPayload:
		var b strings.Builder
		b.WriteString(FeedbackNoTextMarker)
		if p.Rating != nil {
			fmt.Fprintf(&b, " Оценка: %d/5.", *p.Rating)
		}
		if name := strings.TrimSpace(p.Reviewer); name != "" {
			fmt.Fprintf(&b, " Покупатель: %s.", name)
		}
		return b.String()
	default:
		return FeedbackNoTextMarker
	}
}

// Placeholder sentences used when a record arrives without text.
const (
	FeedbackNoTextMarker = "Отзыв без текста."
	QuestionNoTextMarker = "Вопрос без текста."
)

// CatalogEntry is one product row from the catalog file.
type CatalogEntry struct {
	ID          string
	Title       string
	Description string
}

// RemoteRecord is a marketplace record as returned by the listing endpoints.
type RemoteRecord struct {
	ID           string
	Text         string
	CreatedDate  string
	UserName     string
	Rating       *int
	ProductID    *int64
	ProductTitle string
	AnswerText   string
}

// Answered reports whether the marketplace already holds a reply.
func (r RemoteRecord) Answered() bool {
	return strings.TrimSpace(r.AnswerText) != ""
}

// ReplyRequest is everything the generation backend sees for one item.
type ReplyRequest struct {
	Kind         Kind
	ProductTitle string
	Text         string
	Rating       *int
	Available    []string
	Preferred    []string
	Exclude      []string
}
