package audit

import (
	"time"

	"github.com/amiga-fleet/amiga-backend/internal/db/models"
	"github.com/amiga-fleet/amiga-backend/internal/telemetry"
)

const anonymousActor = "Anonymous"

// Actor identifies who performed an audited operation. All fields are optional.
type Actor struct {
	ID   *string
	Name *string
	Role *string
}

// Exchange is a snapshot of one completed request/response pair, taken by the HTTP
// interceptor after the response was written.
type Exchange struct {
	Method        string
	Path          string // literal request path
	URL           string // request URI including the query string
	RouteTemplate string // matched route such as /api/vehicles/:id; empty when unmatched
	EntityID      string // the :id route parameter, if any
	RequestID     string
	Query         map[string]interface{}
	RequestBody   []byte
	ResponseBody  []byte
	ResponseSize  int
	StatusCode    int
	Duration      time.Duration
	ClientAddress string
	ClientAgent   string
	Actor         Actor
}

// ChangeSet describes an explicit entity update whose before/after snapshots are diffed.
type ChangeSet struct {
	Actor      Actor
	EntityType EntityType
	EntityID   string
	EntityName string
	Old        map[string]interface{}
	New        map[string]interface{}
	Action     string // defaults to UPDATE
}

// Builder assembles audit records. It holds no mutable state.
type Builder struct {
	classifier *Classifier
}

// NewBuilder creates a Builder that classifies exchanges with c.
func NewBuilder(c *Classifier) *Builder {
	return &Builder{classifier: c}
}

// FromExchange builds the record for a request observed by the interceptor.
func (b *Builder) FromExchange(ex *Exchange) *models.AuditLog {
	route := ex.RouteTemplate
	if route == "" {
		route = ex.Path
	}
	action, explicit := b.classifier.Resolve(ex.Method, route)
	if !explicit {
		telemetry.AuditClassificationFallbacksTotal.WithLabelValues(ex.Method).Inc()
	}

	var requestBody interface{}
	if v, err := decodeJSON(ex.RequestBody); err == nil {
		requestBody = Sanitize(v)
	}

	metadata := map[string]interface{}{
		"requestBody":        requestBody,
		"queryParams":        ex.Query,
		"responseStatusCode": ex.StatusCode,
		"responseSize":       ex.ResponseSize,
	}
	if ex.RequestID != "" {
		metadata["requestId"] = ex.RequestID
	}

	duration := ex.Duration.Milliseconds()
	if duration < 0 {
		duration = 0
	}

	record := &models.AuditLog{
		Action:        action,
		EntityType:    string(b.classifier.EntityType(ex.Path)),
		EntityID:      optional(ex.EntityID),
		EntityName:    ExtractEntityName(ex.Path, ex.ResponseBody),
		Method:        optional(ex.Method),
		URL:           optional(ex.URL),
		ClientAddress: optional(ex.ClientAddress),
		ClientAgent:   optional(ex.ClientAgent),
		Outcome:       ex.StatusCode < 400,
		DurationMs:    duration,
		Metadata:      metadata,
	}
	applyActor(record, ex.Actor)

	if !record.Outcome {
		msg := ExtractErrorMessage(ex.ResponseBody)
		record.ErrorMessage = &msg
	}
	return record
}

// FromChanges builds the record for an explicit update. It returns nil when changes is empty.
func (b *Builder) FromChanges(cs ChangeSet, changes map[string]Change) *models.AuditLog {
	if len(changes) == 0 {
		return nil
	}

	action := cs.Action
	if action == "" {
		action = "UPDATE"
	}
	entityType := cs.EntityType
	if entityType == "" {
		entityType = EntitySystem
	}

	record := &models.AuditLog{
		Action:     action,
		EntityType: string(entityType),
		EntityID:   optional(cs.EntityID),
		EntityName: optional(cs.EntityName),
		Outcome:    true,
		OldValues:  cs.Old,
		NewValues:  cs.New,
		Changes:    changes,
	}
	applyActor(record, cs.Actor)
	return record
}

func applyActor(record *models.AuditLog, actor Actor) {
	record.ActorID = actor.ID
	record.ActorRole = actor.Role
	record.ActorName = actor.Name
	if record.ActorName == nil && actor.ID == nil {
		name := anonymousActor
		record.ActorName = &name
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
