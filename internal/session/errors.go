package session

import "errors"

// Intent rejections. The session state is unchanged whenever one is returned.
var (
	ErrWrongPhase     = errors.New("action not allowed in current phase")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrBadSquare      = errors.New("invalid square")
	ErrClosed         = errors.New("session loop stopped")
	ErrAlreadyRunning = errors.New("session loop already running")
)
