package allocate

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskDone is returned when allocating a completed task.
	ErrTaskDone = errors.New("task is already done")

	// ErrTaskPlaced is returned when allocating a task that already has an
	// event, or when changing the length of one.
	ErrTaskPlaced = errors.New("task is already placed")

	// ErrTaskLate is returned when allocating a late task. Editing its
	// deadline or duration makes it pending again.
	ErrTaskLate = errors.New("task is late")

	// ErrInvalidTask is returned when an edit leaves a task invalid.
	ErrInvalidTask = errors.New("invalid task")

	// ErrInvalidSlot is returned for an explicit slot that is incomplete or empty.
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrSlotTaken is matched by every *SlotTakenError.
	ErrSlotTaken = errors.New("slot overlaps an existing event")
)

// SlotTakenError rejects an explicit slot that overlaps another event.
type SlotTakenError struct {
	EventID string
	Title   string
}

func (e *SlotTakenError) Error() string {
	return fmt.Sprintf("slot overlaps event %s (%q)", e.EventID, e.Title)
}

func (e *SlotTakenError) Unwrap() error {
	return ErrSlotTaken
}
