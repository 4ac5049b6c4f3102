package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/lib/pq"
)

type User struct {
	ID            string         `db:"id"`
	Username      string         `db:"username"`
	Email         string         `db:"email"`
	Role          domain.Role    `db:"role"`
	Skills        pq.StringArray `db:"skills"`
	WalletAddress string         `db:"wallet_address"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

type Job struct {
	ID             string           `db:"id"`
	Title          string           `db:"title"`
	Description    string           `db:"description"`
	Skills         pq.StringArray   `db:"skills"`
	Budget         float64          `db:"budget"`
	Deadline       time.Time        `db:"deadline"`
	Domain         string           `db:"domain"`
	Status         domain.JobStatus `db:"status"`
	EmployerID     string           `db:"employer_id"`
	FreelancerID   *string          `db:"freelancer_id"`
	EscrowContract *string          `db:"escrow_contract"`
	CreatedAt      time.Time        `db:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at"`
	CompletedAt    *time.Time       `db:"completed_at"`
}

// IsParticipant reports whether userID is the employer or the assigned freelancer.
func (j *Job) IsParticipant(userID string) bool {
	return j.EmployerID == userID || j.HasFreelancer(userID)
}

// HasFreelancer reports whether userID is the assigned freelancer.
func (j *Job) HasFreelancer(userID string) bool {
	return j.FreelancerID != nil && *j.FreelancerID == userID
}

type Application struct {
	ID           string                   `db:"id"`
	JobID        string                   `db:"job_id"`
	FreelancerID string                   `db:"freelancer_id"`
	Proposal     string                   `db:"proposal"`
	Price        float64                  `db:"price"`
	Status       domain.ApplicationStatus `db:"status"`
	CreatedAt    time.Time                `db:"created_at"`
	UpdatedAt    time.Time                `db:"updated_at"`
}

type Attachment struct {
	Name string `json:"name" validate:"notblank,max=255"`
	URL  string `json:"url" validate:"required,max=2048"`
	Type string `json:"type" validate:"max=255"`
}

// Attachments is stored as a jsonb array.
type Attachments []Attachment

func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

func (a *Attachments) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*a = Attachments{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported attachments type %T", src)
	}
	return json.Unmarshal(data, a)
}

type Submission struct {
	ID           string                  `db:"id"`
	JobID        string                  `db:"job_id"`
	FreelancerID string                  `db:"freelancer_id"`
	Title        string                  `db:"title"`
	Description  string                  `db:"description"`
	Attachments  Attachments             `db:"attachments"`
	Status       domain.SubmissionStatus `db:"status"`
	Feedback     string                  `db:"feedback"`
	CreatedAt    time.Time               `db:"created_at"`
	UpdatedAt    time.Time               `db:"updated_at"`
}

type Message struct {
	ID         string    `db:"id"`
	JobID      string    `db:"job_id"`
	SenderID   string    `db:"sender_id"`
	ReceiverID string    `db:"receiver_id"`
	Content    string    `db:"content"`
	Read       bool      `db:"read"`
	CreatedAt  time.Time `db:"created_at"`
}

type Escrow struct {
	ID           string             `db:"id"`
	JobID        string             `db:"job_id"`
	ContractRef  string             `db:"contract_ref"`
	EmployerID   string             `db:"employer_id"`
	FreelancerID string             `db:"freelancer_id"`
	Amount       float64            `db:"amount"`
	Balance      float64            `db:"balance"`
	State        domain.EscrowState `db:"state"`
	// PendingAction is set between persisting an intent and applying the
	// settlement result.
	PendingAction       *domain.EscrowAction `db:"pending_action"`
	PendingSubmissionID *string              `db:"pending_submission_id"`
	Attempts            int                  `db:"attempts"`
	LastError           string               `db:"last_error"`
	CreatedAt           time.Time            `db:"created_at"`
	UpdatedAt           time.Time            `db:"updated_at"`
}

// IsPending reports whether a settlement action awaits reconciliation.
func (e *Escrow) IsPending() bool {
	return e.PendingAction != nil
}
