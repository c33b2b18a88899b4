package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newTestBuilder() *Builder {
	return NewBuilder(NewClassifier("/api"))
}

func TestBuilder_FromExchange_ViewVehicle(t *testing.T) {
	record := newTestBuilder().FromExchange(&Exchange{
		Method:        "GET",
		Path:          "/api/vehicles/42",
		URL:           "/api/vehicles/42?include=docs",
		RouteTemplate: "/api/vehicles/:id",
		EntityID:      "42",
		Query:         map[string]interface{}{"include": "docs"},
		ResponseBody:  []byte(`{"vehicle":{"brand":"Fiat","model":"Ducato","licensePlate":"B-456-DE"}}`),
		ResponseSize:  74,
		StatusCode:    200,
		Duration:      35 * time.Millisecond,
		ClientAddress: "10.0.0.8",
		ClientAgent:   "curl/8.5",
		Actor:         Actor{ID: strPtr("u-1"), Name: strPtr("Laura Gil"), Role: strPtr("gestor")},
	})

	assert.Equal(t, "VIEW", record.Action)
	assert.Equal(t, "vehicle", record.EntityType)
	require.NotNil(t, record.EntityName)
	assert.Equal(t, "Fiat Ducato (B-456-DE)", *record.EntityName)
	require.NotNil(t, record.EntityID)
	assert.Equal(t, "42", *record.EntityID)
	assert.Equal(t, "GET", *record.Method)
	assert.Equal(t, "/api/vehicles/42?include=docs", *record.URL)
	assert.True(t, record.Outcome)
	assert.Nil(t, record.ErrorMessage)
	assert.Equal(t, int64(35), record.DurationMs)
	assert.Equal(t, "Laura Gil", *record.ActorName)
	assert.Equal(t, "gestor", *record.ActorRole)

	assert.Nil(t, record.Changes)
	assert.Nil(t, record.OldValues)
	assert.Equal(t, 200, record.Metadata["responseStatusCode"])
	assert.Equal(t, 74, record.Metadata["responseSize"])
	assert.Equal(t, map[string]interface{}{"include": "docs"}, record.Metadata["queryParams"])
}

func TestBuilder_FromExchange_Failure(t *testing.T) {
	record := newTestBuilder().FromExchange(&Exchange{
		Method:       "POST",
		Path:         "/api/vehicles",
		StatusCode:   500,
		ResponseBody: []byte(`{"message":"db down"}`),
	})

	assert.False(t, record.Outcome)
	require.NotNil(t, record.ErrorMessage)
	assert.Equal(t, "db down", *record.ErrorMessage)
	assert.Equal(t, "CREATE", record.Action, "unmatched route template falls back to the literal path")
}

func TestBuilder_FromExchange_OutcomeBoundary(t *testing.T) {
	b := newTestBuilder()
	assert.True(t, b.FromExchange(&Exchange{Method: "GET", Path: "/api/x", StatusCode: 399}).Outcome)

	record := b.FromExchange(&Exchange{Method: "GET", Path: "/api/x", StatusCode: 400, ResponseBody: []byte("bad")})
	assert.False(t, record.Outcome)
	assert.Equal(t, unknownError, *record.ErrorMessage)
}

func TestBuilder_FromExchange_SanitizesRequestBody(t *testing.T) {
	record := newTestBuilder().FromExchange(&Exchange{
		Method:        "POST",
		Path:          "/api/auth/login",
		RouteTemplate: "/api/auth/login",
		RequestBody:   []byte(`{"username":"lgil","password":"hunter2"}`),
		StatusCode:    200,
		RequestID:     "req-9",
	})

	assert.Equal(t, "USER_LOGIN", record.Action)
	assert.Equal(t, "system", record.EntityType)
	assert.Nil(t, record.EntityID)
	assert.Equal(t, map[string]interface{}{"username": "lgil"}, record.Metadata["requestBody"])
	assert.Equal(t, "req-9", record.Metadata["requestId"])
}

func TestBuilder_FromExchange_UnparsableRequestBody(t *testing.T) {
	record := newTestBuilder().FromExchange(&Exchange{
		Method:      "POST",
		Path:        "/api/documents/upload",
		RequestBody: []byte("--boundary\r\nContent-Disposition: form-data"),
		StatusCode:  201,
	})

	assert.Contains(t, record.Metadata, "requestBody")
	assert.Nil(t, record.Metadata["requestBody"])
	assert.NotContains(t, record.Metadata, "requestId")
}

func TestBuilder_FromExchange_Anonymous(t *testing.T) {
	record := newTestBuilder().FromExchange(&Exchange{Method: "GET", Path: "/api/health", StatusCode: 200})

	assert.Nil(t, record.ActorID)
	require.NotNil(t, record.ActorName)
	assert.Equal(t, "Anonymous", *record.ActorName)
}

func TestBuilder_FromExchange_NegativeDurationClamped(t *testing.T) {
	record := newTestBuilder().FromExchange(&Exchange{Method: "GET", Path: "/api/x", StatusCode: 200, Duration: -time.Second})
	assert.Equal(t, int64(0), record.DurationMs)
}

func TestBuilder_FromChanges(t *testing.T) {
	b := newTestBuilder()
	old := map[string]interface{}{"status": "pending"}
	updated := map[string]interface{}{"status": "resolved"}

	record := b.FromChanges(ChangeSet{
		Actor:      Actor{ID: strPtr("u-2")},
		EntityType: EntityAlert,
		EntityID:   "a-1",
		EntityName: "ITV vence",
		Old:        old,
		New:        updated,
		Action:     "RESOLVE_ALERT",
	}, Diff(old, updated))

	require.NotNil(t, record)
	assert.Equal(t, "RESOLVE_ALERT", record.Action)
	assert.Equal(t, "alert", record.EntityType)
	assert.Equal(t, "a-1", *record.EntityID)
	assert.Equal(t, "ITV vence", *record.EntityName)
	assert.True(t, record.Outcome)
	assert.Equal(t, old, record.OldValues)
	assert.Equal(t, updated, record.NewValues)
	assert.Equal(t, map[string]Change{"status": {Old: "pending", New: "resolved"}}, record.Changes)
	assert.Nil(t, record.ActorName, "a known actor id is not relabelled as anonymous")
	assert.Nil(t, record.Metadata)
}

func TestBuilder_FromChanges_Defaults(t *testing.T) {
	record := newTestBuilder().FromChanges(ChangeSet{}, map[string]Change{"x": {Old: Absent, New: 1}})

	require.NotNil(t, record)
	assert.Equal(t, "UPDATE", record.Action)
	assert.Equal(t, "system", record.EntityType)
	assert.Nil(t, record.EntityID)
	assert.Equal(t, "Anonymous", *record.ActorName)
}

func TestBuilder_FromChanges_EmptyDiff(t *testing.T) {
	assert.Nil(t, newTestBuilder().FromChanges(ChangeSet{Action: "UPDATE_VEHICLE"}, map[string]Change{}))
	assert.Nil(t, newTestBuilder().FromChanges(ChangeSet{}, nil))
}
