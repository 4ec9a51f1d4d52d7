package services

import "errors"

// Store errors
var (
	ErrEventMissingTaskID = errors.New("store: event missing task_id")
	ErrEventInvalidStatus = errors.New("store: invalid status value")
)
