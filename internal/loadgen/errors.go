package loadgen

import "errors"

// Sentinel kinds for load run errors.
var (
	ErrUnhealthy    = errors.New("service is not healthy")
	ErrSignIn       = errors.New("sign-in failed")
	ErrVerification = errors.New("leaderboard verification failed")
	ErrStatus       = errors.New("unexpected status")
)
