package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	ApprovalStatusPending ApprovalStatus = iota
	ApprovalStatusApproved
	ApprovalStatusRejected
	ApprovalStatusExpired
)

// ApprovalStatus represents the lifecycle of an ApprovalRequest. Every status
// other than pending is terminal.
type ApprovalStatus int

func (s ApprovalStatus) String() string {
	switch s {
	case ApprovalStatusPending:
		return "PENDING"
	case ApprovalStatusApproved:
		return "APPROVED"
	case ApprovalStatusRejected:
		return "REJECTED"
	case ApprovalStatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// ApprovalRequest is an operation waiting for a human decision.
type ApprovalRequest struct {
	ID        string          `json:"id"`
	Kind      MessageType     `json:"kind"`
	Origin    string          `json:"origin"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt int64           `json:"createdAt"`
	ExpiresAt int64           `json:"expiresAt"`
	Status    ApprovalStatus  `json:"-"`
}

// NewApprovalRequest returns a pending request with a fresh random id that
// expires after ttl.
func NewApprovalRequest(
	kind MessageType, origin string, payload json.RawMessage, ttl time.Duration,
) *ApprovalRequest {
	now := time.Now()
	return &ApprovalRequest{
		ID:        uuid.New().String(),
		Kind:      kind,
		Origin:    origin,
		Payload:   payload,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
		Status:    ApprovalStatusPending,
	}
}

// IsPending ...
func (r *ApprovalRequest) IsPending() bool {
	return r.Status == ApprovalStatusPending
}

// Approve moves a pending request to the approved status.
func (r *ApprovalRequest) Approve() error {
	return r.settle(ApprovalStatusApproved)
}

// Reject moves a pending request to the rejected status.
func (r *ApprovalRequest) Reject() error {
	return r.settle(ApprovalStatusRejected)
}

// Expire moves a pending request to the expired status.
func (r *ApprovalRequest) Expire() error {
	return r.settle(ApprovalStatusExpired)
}

func (r *ApprovalRequest) settle(status ApprovalStatus) error {
	if !r.IsPending() {
		return ErrApprovalNotPending
	}
	r.Status = status
	return nil
}
