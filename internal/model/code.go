package model

import "fmt"

// Display code prefixes. Codes come from a persisted per-scope sequence,
// never an in-process counter.
const (
	CodeScopeProject = "PRJ"
	CodeScopeBid     = "BID"
	CodeScopeEscrow  = "ESC"
	CodeScopeFee     = "FEE"
)

// FormatCode renders a human-readable display code like "PRJ-000042".
func FormatCode(scope string, n int64) string {
	return fmt.Sprintf("%s-%06d", scope, n)
}
