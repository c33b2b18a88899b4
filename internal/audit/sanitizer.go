package audit

// SensitiveFields lists request payload keys that are never persisted. Matching is exact and
// top-level only: a secret nested inside a sub-object is kept verbatim.
var SensitiveFields = []string{
	"password",
	"currentPassword",
	"newPassword",
	"confirmPassword",
	"token",
}

var sensitiveSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(SensitiveFields))
	for _, f := range SensitiveFields {
		set[f] = struct{}{}
	}
	return set
}()

// Sanitize returns a shallow copy of payload without the SensitiveFields keys.
// Anything that is not a JSON object, including nil, is returned unchanged.
// The input is never modified.
func Sanitize(payload interface{}) interface{} {
	obj, ok := payload.(map[string]interface{})
	if !ok || obj == nil {
		return payload
	}

	sanitized := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		if _, secret := sensitiveSet[k]; secret {
			continue
		}
		sanitized[k] = v
	}
	return sanitized
}
