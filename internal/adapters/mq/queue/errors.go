package queue

import "errors"

// Sentinel errors returned by queue implementations.
var (
	ErrQueueFull    = errors.New("queue is full")
	ErrQueueClosed  = errors.New("queue is closed")
	ErrJobNotFound  = errors.New("job not found")
	ErrEmptyJobID   = errors.New("job id is required")
	ErrInvalidQueue = errors.New("invalid queue configuration")
)
