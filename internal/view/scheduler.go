package view

import "time"

// Timer is a cancellable scheduled task. Stop after the task fired is a no-op.
type Timer interface {
	Stop() bool
}

type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemScheduler runs tasks on the wall clock.
var SystemScheduler Scheduler = clockScheduler{}

// Runner executes an effect outside the view's lock.
type Runner func(effect func())

// GoRunner runs every effect on its own goroutine.
func GoRunner(effect func()) {
	go effect()
}
