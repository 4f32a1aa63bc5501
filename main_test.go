package main

import (
	"testing"

	"coinforecast/scheduler"

	"github.com/stretchr/testify/assert"
)

func TestJobSchedulerHandoff(t *testing.T) {
	setJobScheduler(nil)
	assert.Nil(t, currentJobScheduler())

	// The background init goroutine publishes the scheduler after startup;
	// the shutdown path must observe that late assignment
	jobs := scheduler.NewScheduler(nil)
	setJobScheduler(jobs)
	assert.Same(t, jobs, currentJobScheduler())

	setJobScheduler(nil)
	assert.Nil(t, currentJobScheduler())
}
