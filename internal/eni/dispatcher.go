package eni

import (
	"context"
	"fmt"
	"time"

	"eni-go/internal/protocol"
)

// Metrics observes dispatched commands. code is 0 on success.
type Metrics interface {
	ObserveCommand(command string, code int, elapsed time.Duration)
}

// NopMetrics discards observations.
type NopMetrics struct{}

func (NopMetrics) ObserveCommand(string, int, time.Duration) {}

// commandTable maps every supported command to its handler factory.
func commandTable() map[Command]HandlerFactory {
	return map[Command]HandlerFactory{
		CmdCheckInObject:      newCheckInObject,
		CmdCheckOutObject:     newCheckOutObject,
		CmdUndoCheckOutObject: newUndoCheckOutObject,
		CmdCreateFolder:       newCreateFolder,
		CmdCreateObject:       newCreateObject,
		CmdDir:                newDir,
		CmdGetObject:          newGetObject,
		CmdGetObjectInfo:      newGetObjectInfo,
		CmdGetObjectType:      newGetObjectType,
		CmdGetObjectTypeList:  newGetObjectTypeList,
		CmdGetObjectHistory:   newGetObjectHistory,
		CmdGetFolderHistory:   newGetFolderHistory,
		CmdSetFolderLabel:     newSetFolderLabel,
		CmdLogin:              newLogin,
		CmdLogout:             newLogout,
		CmdGetServerSettings:  newGetServerSettings,
		CmdGetUsers:           newGetUsers,
		CmdGetPermissions:     newGetPermissions,
		CmdDeleteFolder:       newPlaceholder(CmdDeleteFolder),
		CmdDeleteObject:       newPlaceholder(CmdDeleteObject),
		CmdResetVersion:       newPlaceholder(CmdResetVersion),
		CmdMoveFolder:         newPlaceholder(CmdMoveFolder),
		CmdMoveObject:         newPlaceholder(CmdMoveObject),
		CmdRegisterTypes:      newPlaceholder(CmdRegisterTypes),
	}
}

// Dispatcher turns requests into responses. Executions are serialized by a
// single slot because the working copy is shared mutable state.
type Dispatcher struct {
	env      *Env
	handlers map[Command]HandlerFactory
	slot     chan struct{}
	timeout  time.Duration
	metrics  Metrics
}

// NewDispatcher creates a Dispatcher. A zero timeout disables the
// per-request deadline.
func NewDispatcher(env *Env, timeout time.Duration, metrics Metrics) *Dispatcher {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Dispatcher{
		env:      env,
		handlers: commandTable(),
		slot:     make(chan struct{}, 1),
		timeout:  timeout,
		metrics:  metrics,
	}
}

// Supports reports whether command has a handler.
func (d *Dispatcher) Supports(command string) bool {
	_, ok := d.handlers[Command(command)]
	return ok
}

// Dispatch runs one request and always returns exactly one response.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *Session, req *protocol.Request) *protocol.Element {
	start := time.Now()
	cmd := Command(req.Command)
	d.env.Logger.Info("request", "command", req.Command, "user", sess.User())

	resp, code := d.dispatch(ctx, sess, cmd, req)
	d.metrics.ObserveCommand(req.Command, code, time.Since(start))
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, sess *Session, cmd Command, req *protocol.Request) (*protocol.Element, int) {
	factory, ok := d.handlers[cmd]
	if !ok {
		return d.fail(cmd, &ProtocolError{Command: req.Command})
	}

	h, err := factory(req)
	if err != nil {
		return d.fail(cmd, err)
	}

	if err := d.execute(ctx, sess, cmd, h); err != nil {
		return d.fail(cmd, err)
	}

	fields, data := h.Render()
	return protocol.SuccessResponse(req.Command, fields, data), 0
}

// execute runs h while holding the slot. On deadline expiry the request
// fails but the running handler keeps the slot until it returns.
func (d *Dispatcher) execute(ctx context.Context, sess *Session, cmd Command, h Handler) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	select {
	case d.slot <- struct{}{}:
	case <-ctx.Done():
		return &VcsError{Op: string(cmd), Err: fmt.Errorf("waiting for gateway: %w", ctx.Err())}
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-d.slot }()
		defer func() {
			if r := recover(); r != nil {
				done <- &VcsError{Op: string(cmd), Err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		done <- h.Execute(ctx, d.env, sess)
	}()

	select {
	case err := <-done:
		return wrapVcs(string(cmd), err)
	case <-ctx.Done():
		return &VcsError{Op: string(cmd), Err: fmt.Errorf("request timed out: %w", ctx.Err())}
	}
}

func (d *Dispatcher) fail(cmd Command, err error) (*protocol.Element, int) {
	code := errorCode(cmd, err)
	if code == CodeVcsFailure {
		d.env.Logger.Error("command failed", "command", string(cmd), "code", code, "error", err)
	} else {
		d.env.Logger.Warn("command rejected", "command", string(cmd), "code", code, "error", err)
	}
	return protocol.ErrorResponse(string(cmd), code, err.Error()), code
}
