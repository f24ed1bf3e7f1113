package session

import "github.com/trezcool/studyplanner/core"

// IsRefreshTokenError reports whether err means the stored session can no longer be renewed
// and the user must sign in again.
func IsRefreshTokenError(err error) bool {
	return core.IsSessionFatal(err)
}
