package pgbulk

import "context"

// Approver confirms destructive operations such as dropping staging tables.
//
// Implementations:
//   - ForcedApprover: shows a countdown and approves
//   - InteractiveApprover: asks the user to type the target table name
type Approver interface {
	// RequestApproval asks before dropping tables belonging to target.
	// It returns false when the user declined.
	RequestApproval(ctx context.Context, target string, tables []TableName) (bool, error)
}
