package audit

import "strings"

// EntityType is the coarse category of business object an audit record refers to.
type EntityType string

const (
	EntityVehicle  EntityType = "vehicle"
	EntityUser     EntityType = "user"
	EntityDocument EntityType = "document"
	EntityAlert    EntityType = "alert"
	EntityCompany  EntityType = "company"
	EntitySystem   EntityType = "system"
)

// ActionUnknown is returned for HTTP methods with no generic meaning.
const ActionUnknown = "UNKNOWN"

type routeKey struct {
	method string
	route  string
}

// defaultActions maps known endpoints, relative to the audit prefix, to their semantic action.
var defaultActions = map[routeKey]string{
	{"GET", "/auth/login"}:  "USER_LOGIN",
	{"GET", "/auth/logout"}: "USER_LOGOUT",
	{"GET", "/auth/me"}:     "VIEW_PROFILE",

	{"POST", "/auth/login"}:    "USER_LOGIN",
	{"POST", "/auth/register"}: "USER_REGISTER",
	{"POST", "/vehicles"}:      "CREATE_VEHICLE",
	{"POST", "/users"}:         "CREATE_USER",
	{"POST", "/alerts"}:        "CREATE_ALERT",

	{"PUT", "/vehicles/:id"}: "UPDATE_VEHICLE",
	{"PUT", "/users/:id"}:    "UPDATE_USER",
	{"PUT", "/alerts/:id"}:   "UPDATE_ALERT",

	{"DELETE", "/vehicles/:id"}: "DELETE_VEHICLE",
	{"DELETE", "/users/:id"}:    "DELETE_USER",
	{"DELETE", "/alerts/:id"}:   "DELETE_ALERT",
}

var genericActions = map[string]string{
	"GET":    "VIEW",
	"POST":   "CREATE",
	"PUT":    "UPDATE",
	"PATCH":  "UPDATE",
	"DELETE": "DELETE",
}

// entityRules is scanned in order; the first segment found in the path wins.
var entityRules = []struct {
	segment string
	entity  EntityType
}{
	{"/vehicles", EntityVehicle},
	{"/users", EntityUser},
	{"/documents", EntityDocument},
	{"/alerts", EntityAlert},
	{"/auth", EntitySystem},
	{"/erp", EntityCompany},
}

// Classifier derives the action and entity type of an exchange from its method and path.
// It is immutable after construction and safe for concurrent use.
type Classifier struct {
	prefix  string
	actions map[routeKey]string
}

// NewClassifier builds a classifier whose route table is keyed relative to prefix (e.g. "/api").
func NewClassifier(prefix string) *Classifier {
	actions := make(map[routeKey]string, len(defaultActions))
	for k, v := range defaultActions {
		actions[k] = v
	}
	return &Classifier{
		prefix:  strings.TrimSuffix(prefix, "/"),
		actions: actions,
	}
}

// Action resolves the semantic action for a method and route template such as
// "/api/vehicles/:id". Unmatched pairs fall back to the per-method generic action.
func (c *Classifier) Action(method, routeTemplate string) string {
	action, _ := c.Resolve(method, routeTemplate)
	return action
}

// Resolve is Action that also reports whether an explicit table entry matched.
func (c *Classifier) Resolve(method, routeTemplate string) (string, bool) {
	if action, ok := c.actions[routeKey{method: method, route: c.relative(routeTemplate)}]; ok {
		return action, true
	}
	if action, ok := genericActions[method]; ok {
		return action, false
	}
	return ActionUnknown, false
}

// EntityType maps a literal request path to an entity type, defaulting to system.
func (c *Classifier) EntityType(path string) EntityType {
	for _, rule := range entityRules {
		if strings.Contains(path, rule.segment) {
			return rule.entity
		}
	}
	return EntitySystem
}

func (c *Classifier) relative(route string) string {
	if c.prefix == "" {
		return route
	}
	if rel, ok := strings.CutPrefix(route, c.prefix); ok && (rel == "" || rel[0] == '/') {
		if rel == "" {
			return "/"
		}
		return rel
	}
	return route
}
