// Package models - alert.go defines the Alert model for compliance deadlines (ITV,
// insurance, maintenance, document expiry) and their resolution workflow.
package models

import "time"

// Alert statuses
const (
	AlertStatusPending    = "pending"
	AlertStatusInProgress = "in_progress"
	AlertStatusResolved   = "resolved"
	AlertStatusCancelled  = "cancelled"
)

// Alert priorities, lowest first
const (
	AlertPriorityLow    = "low"
	AlertPriorityMedium = "medium"
	AlertPriorityHigh   = "high"
	AlertPriorityUrgent = "urgent"
)

// Alert represents a deadline or incident that needs attention
type Alert struct {
	ID           string     `json:"id" db:"id"`
	Title        string     `json:"title" db:"title"`
	Description  string     `json:"description" db:"description"`
	Type         string     `json:"type" db:"type"` // itv, maintenance, insurance, document, contract, medical, other
	Priority     string     `json:"priority" db:"priority"`
	Status       string     `json:"status" db:"status"`
	EntityType   string     `json:"entityType" db:"entity_type"`
	EntityID     string     `json:"entityId" db:"entity_id"`
	DueDate      *time.Time `json:"dueDate,omitempty" db:"due_date"`
	ResolvedDate *time.Time `json:"resolvedDate,omitempty" db:"resolved_date"`
	AssignedTo   *string    `json:"assignedTo,omitempty" db:"assigned_to"`
	Notes        *string    `json:"notes,omitempty" db:"notes"`
	IsActive     bool       `json:"isActive" db:"is_active"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

// NextPriority returns the priority one step above p, or p itself when already urgent.
func NextPriority(p string) string {
	switch p {
	case AlertPriorityLow:
		return AlertPriorityMedium
	case AlertPriorityMedium:
		return AlertPriorityHigh
	default:
		return AlertPriorityUrgent
	}
}
