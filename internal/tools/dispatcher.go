package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"chefassist/internal/capability"
	"chefassist/internal/channel"
	"chefassist/internal/guard"
	"chefassist/internal/logger"
	"chefassist/internal/result"
)

var (
	// ErrNotPermitted is returned when a channel may not invoke a tool's category.
	ErrNotPermitted = errors.New("tool not permitted on channel")
	// ErrToolExecution wraps failures inside a tool. It is logged, never returned
	// to the session: the failure becomes an error result instead.
	ErrToolExecution = errors.New("tool execution failed")
)

const notPermittedMessage = "That isn't available here. Please use the dashboard for this."

// Metrics receives one observation per dispatch.
type Metrics interface {
	ToolDispatched(tool, channel, status string, elapsed time.Duration)
}

// Dispatcher resolves, authorizes, guards, executes and normalizes tool calls.
type Dispatcher struct {
	registry *capability.Registry
	guard    *guard.Guard
	schemas  map[capability.ToolID]*gojsonschema.Schema
	log      *logger.Logger
	metrics  Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatch logger. The default discards.
func WithLogger(l *logger.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithMetrics reports every dispatch to m.
func WithMetrics(m Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher compiles every input schema up front so a broken descriptor fails
// at startup rather than on a request.
func NewDispatcher(reg *capability.Registry, g *guard.Guard, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		registry: reg,
		guard:    g,
		schemas:  make(map[capability.ToolID]*gojsonschema.Schema),
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, desc := range reg.All() {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(desc.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("%w: schema for %s: %w", capability.ErrInvalidRegistry, desc.ID, err)
		}
		d.schemas[desc.ID] = schema
	}
	return d, nil
}

// Dispatch runs one tool call for a channel. The returned Result is always
// usable as engine input. The error is non-nil for an unknown tool, a policy
// rejection, or a cancelled context; tool failures are absorbed into the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage, c channel.Channel) (result.Result, error) {
	start := time.Now()

	desc, err := d.registry.Lookup(name)
	if err != nil {
		d.log.Warn("unknown tool requested", "tool", name, "channel", c.String())
		res := result.Failed(name, fmt.Sprintf("There is no tool named %q.", name))
		d.observe(res, c, start)
		return res, err
	}

	if !d.registry.Permits(c, desc.Category) {
		d.log.Warn("tool not permitted", "tool", name, "channel", c.String(), "category", string(desc.Category))
		res := result.Restricted(name, c.String(), notPermittedMessage)
		d.observe(res, c, start)
		return res, fmt.Errorf("%w: %s on %s", ErrNotPermitted, name, c)
	}

	exec := d.guard.Wrap(name, c, d.normalized(desc))
	res, err := exec(ctx, args)
	if err != nil {
		// only cancellation reaches here
		return result.Failed(name, "The request was cancelled."), err
	}
	d.observe(res, c, start)
	return res, nil
}

// normalized adapts a descriptor's executor to the single result shape, with
// argument validation in front and panic recovery around it.
func (d *Dispatcher) normalized(desc capability.Descriptor) result.Executor {
	name := string(desc.ID)
	return func(ctx context.Context, args json.RawMessage) (result.Result, error) {
		args = orEmptyObject(args)
		if msg := d.validate(desc.ID, args); msg != "" {
			return result.Failed(name, msg), nil
		}

		out, err := invoke(ctx, desc.Execute, args)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result.Result{}, ctxErr
			}
			d.log.Error("tool failed", "tool", name, "error", fmt.Errorf("%w: %w", ErrToolExecution, err))
			if errors.Is(err, ErrNotFound) {
				return result.Failed(name, "No matching record was found."), nil
			}
			return result.Failed(name, "The tool could not complete this request."), nil
		}

		res, err := result.Normalize(name, out)
		if err != nil {
			d.log.Error("tool output not normalizable", "tool", name, "error", err)
			return result.Failed(name, "The tool returned an unreadable result."), nil
		}
		return res, nil
	}
}

func (d *Dispatcher) validate(id capability.ToolID, args json.RawMessage) string {
	if !json.Valid(args) {
		return "Arguments must be a JSON object."
	}
	schema, ok := d.schemas[id]
	if !ok {
		return ""
	}
	outcome, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return "Arguments must be a JSON object."
	}
	if outcome.Valid() {
		return ""
	}
	problems := make([]string, 0, len(outcome.Errors()))
	for _, e := range outcome.Errors() {
		problems = append(problems, e.String())
	}
	return "Invalid arguments: " + strings.Join(problems, "; ")
}

func (d *Dispatcher) observe(res result.Result, c channel.Channel, start time.Time) {
	elapsed := time.Since(start)
	d.log.Info("tool dispatched",
		"tool", res.Tool,
		"channel", c.String(),
		"status", string(res.Status),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	d.log.Debug("tool result", "tool", res.Tool, "payload", res.Payload)
	if d.metrics != nil {
		d.metrics.ToolDispatched(res.Tool, c.String(), string(res.Status), elapsed)
	}
}

func invoke(ctx context.Context, exec capability.Executor, args json.RawMessage) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return exec(ctx, args)
}

func orEmptyObject(args json.RawMessage) json.RawMessage {
	if len(strings.TrimSpace(string(args))) == 0 || string(args) == "null" {
		return json.RawMessage(`{}`)
	}
	return args
}
