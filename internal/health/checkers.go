// SPDX-License-Identifier: MIT

package health

import (
	"context"

	"github.com/ManuGH/streamrelay/internal/encoder"
)

// EncoderStater is the part of the encoder supervisor the checker needs.
type EncoderStater interface {
	State() encoder.State
	Exit() (encoder.ExitStatus, bool)
}

// EncoderChecker reports unhealthy once the encoder has terminated.
type EncoderChecker struct {
	enc EncoderStater
}

// NewEncoderChecker creates a checker for the encoder supervisor.
func NewEncoderChecker(enc EncoderStater) *EncoderChecker {
	return &EncoderChecker{enc: enc}
}

func (c *EncoderChecker) Name() string {
	return "encoder"
}

func (c *EncoderChecker) Check(context.Context) CheckResult {
	state := c.enc.State()
	switch state {
	case encoder.StateRunning:
		return CheckResult{Status: StatusHealthy, Message: state.String()}
	case encoder.StateStarting, encoder.StateDraining:
		return CheckResult{Status: StatusDegraded, Message: state.String()}
	}

	res := CheckResult{Status: StatusUnhealthy, Message: state.String()}
	if exit, ok := c.enc.Exit(); ok {
		res.Error = "encoder exited: " + exit.Reason
	}
	return res
}

// Acceptor is satisfied by the websocket listener.
type Acceptor interface {
	Accepting() bool
}

// ListenerChecker reports unhealthy once the listener stops taking new sessions.
type ListenerChecker struct {
	l Acceptor
}

// NewListenerChecker creates a checker for the websocket listener.
func NewListenerChecker(l Acceptor) *ListenerChecker {
	return &ListenerChecker{l: l}
}

func (c *ListenerChecker) Name() string {
	return "listener"
}

func (c *ListenerChecker) Check(context.Context) CheckResult {
	if c.l.Accepting() {
		return CheckResult{Status: StatusHealthy, Message: "accepting sessions"}
	}
	return CheckResult{Status: StatusUnhealthy, Message: "not accepting sessions"}
}
