// Package sqlguard restricts client-supplied SQL to read-only statement
// forms before it reaches the warehouse.
//
// The check is a blunt lexical filter, not a parser: it cannot reason
// about keywords inside string literals or quoted identifiers containing
// keyword-like words separated by spaces. True isolation is delegated to
// warehouse-side IAM permissions on the credential.
package sqlguard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// maxQueryBytes bounds the raw statement length.
	maxQueryBytes = 50 * 1024

	// maxParenDepth bounds subquery nesting.
	maxParenDepth = 20
)

// ErrRejected is the class of all gate violations. Callers distinguish
// gate rejections from warehouse errors with errors.Is.
var ErrRejected = errors.New("rejected by read-only gate")

var (
	lineCommentRe  = regexp.MustCompile(`(?m)--.*$`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)

	// Forbidden anywhere in the statement, not just the leading token:
	// a WITH block can wrap a mutating statement.
	forbiddenRe = regexp.MustCompile(`\b(insert|update|delete|merge|create|drop|alter|truncate|grant|revoke)\b`)
)

// Check returns nil when the statement is acceptable to forward. The
// statement itself is never modified; normalization is internal to the
// check.
func Check(sql string) error {
	if len(sql) > maxQueryBytes {
		return fmt.Errorf("%w: query exceeds %d bytes", ErrRejected, maxQueryBytes)
	}

	normalized := normalize(sql)
	if normalized == "" {
		return fmt.Errorf("%w: empty query", ErrRejected)
	}

	if !strings.HasPrefix(normalized, "select") && !strings.HasPrefix(normalized, "with") {
		return fmt.Errorf("%w: statement must begin with SELECT or WITH", ErrRejected)
	}

	if kw := forbiddenRe.FindString(normalized); kw != "" {
		return fmt.Errorf("%w: statement contains forbidden keyword %s", ErrRejected, strings.ToUpper(kw))
	}

	depth, maxDepth := 0, 0
	for _, r := range normalized {
		switch r {
		case '(':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')':
			depth--
		}
	}
	if maxDepth > maxParenDepth {
		return fmt.Errorf("%w: query nesting exceeds depth %d", ErrRejected, maxParenDepth)
	}

	return nil
}

// normalize case-folds the statement, strips comments, and collapses
// whitespace.
func normalize(sql string) string {
	s := strings.ToLower(sql)
	s = lineCommentRe.ReplaceAllString(s, "")
	s = blockCommentRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}
