package repositories

import (
	"fmt"
	"strings"
)

// conditions accumulates WHERE clauses with positional parameters. Each clause carries one
// %d verb that receives the parameter's position.
type conditions struct {
	clauses []string
	args    []interface{}
}

func (c *conditions) add(clause string, v interface{}) {
	c.args = append(c.args, v)
	c.clauses = append(c.clauses, fmt.Sprintf(clause, len(c.args)))
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// page returns a LIMIT/OFFSET suffix and appends its arguments
func (c *conditions) page(limit, offset int) string {
	c.args = append(c.args, limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(c.args)-1, len(c.args))
}
