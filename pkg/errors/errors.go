package errors

import "errors"

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrMatchAccessDenied = errors.New("match access denied")

	ErrMatchNotFound     = errors.New("match not found")
	ErrMatchNotStarted   = errors.New("match has not started")
	ErrMatchInProgress   = errors.New("match already in progress")
	ErrMatchBusy         = errors.New("match is being updated, retry")
	ErrNoEventsToUndo    = errors.New("no events to undo")
	ErrNothingToArchive  = errors.New("no events to archive")
	ErrInvalidEvent      = errors.New("invalid event")
	ErrInvalidSettings   = errors.New("invalid settings")
	ErrInvalidSeat       = errors.New("invalid seat")
	ErrInvalidSnapshot   = errors.New("invalid snapshot")
	ErrPresetNotFound    = errors.New("preset not found")
	ErrPresetDisabled    = errors.New("preset disabled")
	ErrInvalidPresetBody = errors.New("invalid preset")
)
