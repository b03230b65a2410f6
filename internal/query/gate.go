package query

import "strings"

var forbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "truncate",
	"alter", "create", "replace", "merge", "upsert",
	"grant", "revoke", "commit", "rollback",
}

// IsSelectQuery reports whether sqlText may be submitted to the database.
//
// The check is lexical. After trimming and lower-casing, statements starting
// with "explain" are accepted as is. Anything else must start with "select"
// and must not contain any forbidden keyword as a substring. It does not parse
// SQL: comments, quoted literals and multi-statement batches are not
// understood, so a harmless literal such as 'created_at' is rejected and the
// gate is no substitute for a read-only database role.
func IsSelectQuery(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	if strings.HasPrefix(normalized, "explain") {
		return true
	}
	if !strings.HasPrefix(normalized, "select") {
		return false
	}
	for _, keyword := range forbiddenKeywords {
		if strings.Contains(normalized, keyword) {
			return false
		}
	}
	return true
}

// StripTrailingSemicolons removes statement terminators so the text can be
// wrapped or sent over the extended protocol.
func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
