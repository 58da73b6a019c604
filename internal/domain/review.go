package domain

import (
	"time"
)

// ReviewKind says what a moderation review is about.
type ReviewKind string

const (
	ReviewExecutorRegistration ReviewKind = "executor_registration"
	ReviewClientRegistration   ReviewKind = "client_registration"
	ReviewExecutorEdit         ReviewKind = "executor_edit"
	ReviewClientEdit           ReviewKind = "client_edit"
)

// IsEdit reports whether the review concerns changes to an approved profile.
func (k ReviewKind) IsEdit() bool {
	return k == ReviewExecutorEdit || k == ReviewClientEdit
}

// Subject returns the profile kind the review targets: "executor" or "client".
func (k ReviewKind) Subject() string {
	switch k {
	case ReviewExecutorRegistration, ReviewExecutorEdit:
		return "executor"
	default:
		return "client"
	}
}

// ReviewStatus is the state of a review card.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewSelecting ReviewStatus = "selecting"
	ReviewApproved  ReviewStatus = "approved"
	ReviewRejected  ReviewStatus = "rejected"
)

// Open reports whether a moderator can still act on the review.
func (s ReviewStatus) Open() bool {
	return s == ReviewPending || s == ReviewSelecting
}

// Review is a submission awaiting or past moderation. Fields and Payload
// carry a pending edit; registrations leave them empty.
type Review struct {
	ID            string              `json:"id"`
	SubjectID     int64               `json:"subject_id"`
	Kind          ReviewKind          `json:"kind"`
	Status        ReviewStatus        `json:"status"`
	Fields        []string            `json:"fields,omitempty"`
	Payload       map[string][]string `json:"payload,omitempty"`
	CardText      string              `json:"card_text"`
	Reasons       []string            `json:"reasons,omitempty"`
	CardChatID    int64               `json:"card_chat_id"`
	CardMessageID int                 `json:"card_message_id"`
	ModeratorID   int64               `json:"moderator_id,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	DecidedAt     time.Time           `json:"decided_at,omitempty"`
}

// Block prevents a user from registering or editing until ExpiresAt.
type Block struct {
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Reasons   []string  `json:"reasons"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActiveAt reports whether the block is in force at t.
func (b *Block) ActiveAt(t time.Time) bool {
	return b != nil && t.Before(b.ExpiresAt)
}

// Decision is the audit record of a moderation outcome.
type Decision struct {
	ID          int64        `json:"id"`
	ReviewID    string       `json:"review_id"`
	SubjectID   int64        `json:"subject_id"`
	Kind        ReviewKind   `json:"kind"`
	Decision    ReviewStatus `json:"decision"`
	Reasons     []string     `json:"reasons,omitempty"`
	ModeratorID int64        `json:"moderator_id"`
	DecidedAt   time.Time    `json:"decided_at"`
}

// Stats is a snapshot of marketplace counters.
type Stats struct {
	Users             int `json:"users"`
	Executors         int `json:"executors"`
	VerifiedExecutors int `json:"verified_executors"`
	Clients           int `json:"clients"`
	VerifiedClients   int `json:"verified_clients"`
	Orders            int `json:"orders"`
	PendingReviews    int `json:"pending_reviews"`
	ActiveBlocks      int `json:"active_blocks"`
	ApprovedDecisions int `json:"approved_decisions"`
	RejectedDecisions int `json:"rejected_decisions"`
}

// DailyDecisions counts moderation outcomes for one day.
type DailyDecisions struct {
	Day      string `json:"day"`
	Approved int    `json:"approved"`
	Rejected int    `json:"rejected"`
}
