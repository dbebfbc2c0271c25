// Setlist - Band Chart Sync and Offline Library
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package services

import (
	"context"
	"errors"
	"fmt"
)

// Runner is a component with a blocking, context-bound loop such as
// *offline.LiveListener.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerService supervises a Runner under name.
type RunnerService struct {
	runner Runner
	name   string
}

// NewRunnerService creates a new runner service wrapper.
func NewRunnerService(name string, runner Runner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// Serve implements suture.Service. A Runner returning before its context
// ends is reported as a failure so suture restarts it.
func (r *RunnerService) Serve(ctx context.Context) error {
	err := r.runner.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("returned unexpectedly")
	}
	return fmt.Errorf("%s: %w", r.name, err)
}

// String implements fmt.Stringer.
func (r *RunnerService) String() string {
	return r.name
}
