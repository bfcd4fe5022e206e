package scheduler

import "errors"

var (
	// ErrTaskAlreadyRegistered is returned when a task name is reused
	ErrTaskAlreadyRegistered = errors.New("scheduler.task_already_registered")

	// ErrSchedulerNotConfigured is returned by Start when no task is registered
	ErrSchedulerNotConfigured = errors.New("scheduler.no_tasks")

	// ErrNoScheduleSpecified is returned when a task is added without a schedule
	ErrNoScheduleSpecified = errors.New("scheduler.no_schedule")

	// ErrNilTask is returned when a task has no function
	ErrNilTask = errors.New("scheduler.nil_task")

	// ErrInvalidSchedule is returned by Parse for malformed schedule strings
	ErrInvalidSchedule = errors.New("scheduler.invalid_schedule")

	// ErrAlreadyRunning is returned when Start is called twice
	ErrAlreadyRunning = errors.New("scheduler.already_running")

	// ErrTaskNotFound is returned by RunNow for unknown task names
	ErrTaskNotFound = errors.New("scheduler.task_not_found")

	// ErrTaskRunning is returned by RunNow while the task is already running
	ErrTaskRunning = errors.New("scheduler.task_running")
)
