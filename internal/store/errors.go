package store

import (
	"errors"
	"fmt"
)

// ErrTaskNotFound is returned when no task matches the given lookup key.
// For event ingestion this is fatal to the whole transaction: an event is
// never recorded detached from its task when one is expected.
var ErrTaskNotFound = errors.New("task not found")

// ErrIncidentNotFound is returned when an incident lookup by id misses.
var ErrIncidentNotFound = errors.New("incident not found")

// TaskNotFoundError carries the lookup key that missed.
type TaskNotFoundError struct {
	CommandID string
	TaskID    string
}

func (e *TaskNotFoundError) Error() string {
	if e.CommandID != "" {
		return fmt.Sprintf("task with command_id %s not found", e.CommandID)
	}
	return fmt.Sprintf("task %s not found", e.TaskID)
}

func (e *TaskNotFoundError) ErrorCode() string { return "TASK_NOT_FOUND" }

func (e *TaskNotFoundError) Context() map[string]string {
	return map[string]string{
		"command_id": e.CommandID,
		"task_id":    e.TaskID,
	}
}

func (e *TaskNotFoundError) Is(target error) bool { return target == ErrTaskNotFound }
