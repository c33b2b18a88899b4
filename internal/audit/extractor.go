package audit

import (
	"encoding/json"
	"strings"
)

const unknownError = "Unknown error"

// decodeBody normalizes a captured body into a JSON object. Raw bytes and strings are
// decoded; already-decoded objects are returned as-is.
func decodeBody(body interface{}) (map[string]interface{}, error) {
	var raw []byte
	switch b := body.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		return b, nil
	case []byte:
		raw = b
	case string:
		raw = []byte(b)
	default:
		return nil, nil
	}

	v, err := decodeJSON(raw)
	if err != nil {
		return nil, err
	}
	obj, _ := v.(map[string]interface{})
	return obj, nil
}

// decodeJSON decodes any JSON value. Empty input decodes to nil.
func decodeJSON(raw []byte) (interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &ParseError{Err: err}
	}
	return v, nil
}

// nameRules pairs a path segment with the response key holding the entity and a label builder.
// Rules are tried in order.
var nameRules = []struct {
	segment string
	key     string
	label   func(map[string]interface{}) *string
}{
	{"/vehicles", "vehicle", vehicleLabel},
	{"/users", "user", userLabel},
	{"/documents", "document", fieldLabel("name")},
	{"/alerts", "alert", fieldLabel("title")},
}

// ExtractEntityName returns a human-readable label for the entity in a response body,
// e.g. "Fiat Ducato (B-456-DE)" for a vehicle. It returns nil when the body is not JSON,
// the path names no known entity, or the expected fields are missing.
func ExtractEntityName(path string, body interface{}) *string {
	obj, err := decodeBody(body)
	if err != nil || obj == nil {
		return nil
	}

	for _, rule := range nameRules {
		if !strings.Contains(path, rule.segment) {
			continue
		}
		entity, ok := obj[rule.key].(map[string]interface{})
		if !ok {
			continue
		}
		return rule.label(entity)
	}
	return nil
}

// ExtractErrorMessage returns the message or error field of a failed response body.
func ExtractErrorMessage(body interface{}) string {
	obj, err := decodeBody(body)
	if err != nil || obj == nil {
		return unknownError
	}
	if msg := stringField(obj, "message"); msg != "" {
		return msg
	}
	if msg := stringField(obj, "error"); msg != "" {
		return msg
	}
	return unknownError
}

func vehicleLabel(v map[string]interface{}) *string {
	brand, model, plate := stringField(v, "brand"), stringField(v, "model"), stringField(v, "licensePlate")
	if brand == "" && model == "" && plate == "" {
		return nil
	}
	label := strings.TrimSpace(brand + " " + model)
	if plate != "" {
		label += " (" + plate + ")"
	}
	return &label
}

func userLabel(u map[string]interface{}) *string {
	parts := make([]string, 0, 4)
	for _, key := range []string{"firstName", "secondName", "lastName", "secondLastName"} {
		if p := stringField(u, key); p != "" {
			parts = append(parts, p)
		}
	}
	label := strings.Join(parts, " ")
	if label == "" {
		label = stringField(u, "username")
	}
	if label == "" {
		return nil
	}
	return &label
}

func fieldLabel(key string) func(map[string]interface{}) *string {
	return func(m map[string]interface{}) *string {
		if s := stringField(m, key); s != "" {
			return &s
		}
		return nil
	}
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
