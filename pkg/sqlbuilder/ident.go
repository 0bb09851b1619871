// Package sqlbuilder builds parameterized MySQL statements for the
// replication pipeline: upsert, delete, insert, update and batch_upsert.
// Every function here is pure: it never touches a connection, it only
// turns a row into a (statement, bound values) pair.
package sqlbuilder

import (
	"fmt"
	"regexp"
	"strings"
)

var identRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// QuoteIdent validates and backtick-quotes a single MySQL identifier.
// Schema-qualified names ("schema.table") are quoted part by part.
func QuoteIdent(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("sqlbuilder: empty identifier")
	}
	parts := strings.Split(name, ".")
	for _, p := range parts {
		if !identRe.MatchString(p) {
			return "", fmt.Errorf("sqlbuilder: invalid identifier: %s", name)
		}
	}
	for i, p := range parts {
		parts[i] = "`" + p + "`"
	}
	return strings.Join(parts, "."), nil
}
