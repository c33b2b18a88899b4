// Package models - audit_log.go defines the AuditLog model: one immutable record per audited
// request/response exchange or explicit entity mutation.
package models

import "time"

// AuditLog is a write-once audit trail entry
type AuditLog struct {
	ID            string                 `json:"id"`
	ActorID       *string                `json:"actorId"`   // nil for anonymous access
	ActorName     *string                `json:"actorName"` // "Anonymous" when no actor is known
	ActorRole     *string                `json:"actorRole"`
	Action        string                 `json:"action"`     // "CREATE_VEHICLE", "VIEW", "UPDATE"
	EntityType    string                 `json:"entityType"` // vehicle, user, document, alert, company, system
	EntityID      *string                `json:"entityId"`
	EntityName    *string                `json:"entityName"`
	Method        *string                `json:"method"`
	URL           *string                `json:"url"`
	ClientAddress *string                `json:"clientAddress"`
	ClientAgent   *string                `json:"clientAgent"`
	Outcome       bool                   `json:"outcome"`
	ErrorMessage  *string                `json:"errorMessage"`
	DurationMs    int64                  `json:"durationMs"`
	OldValues     map[string]interface{} `json:"oldValues,omitempty"` // explicit diff path only
	NewValues     map[string]interface{} `json:"newValues,omitempty"`
	Changes       map[string]FieldChange `json:"changes,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"` // generic interception path
	CreatedAt     time.Time              `json:"createdAt"`
}

// FieldChange is one field-level difference between two entity snapshots.
// Added is set when the field is absent before and present after; Removed is the reverse.
// Either flag tells an absent side apart from a null value once stored.
type FieldChange struct {
	Old     interface{} `json:"old"`
	New     interface{} `json:"new"`
	Added   bool        `json:"added,omitempty"`
	Removed bool        `json:"removed,omitempty"`
}
