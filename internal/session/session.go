package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"chefassist/internal/actions"
	"chefassist/internal/capability"
	"chefassist/internal/channel"
	"chefassist/internal/conversation"
	"chefassist/internal/engine"
	"chefassist/internal/guard"
	"chefassist/internal/logger"
	"chefassist/internal/prompt"
	"chefassist/internal/result"
	"chefassist/internal/stream"
	"chefassist/internal/tools"
)

var (
	ErrEngineUnreachable = errors.New("completion engine unreachable")
	ErrEngineTimeout     = errors.New("completion engine timed out")
	ErrToolLoopExceeded  = errors.New("tool call ceiling reached")
	ErrMalformedToolCall = errors.New("malformed tool call")
)

const (
	// GenericError is the only failure text a caller ever sees.
	GenericError = "Something went wrong. Please try again."
	apology      = "Sorry, something went wrong and I couldn't finish that. Please try again."
)

// Request is one inbound chef message. Channel comes from the caller's
// credential.
type Request struct {
	ChefID      string
	Channel     channel.Channel
	ContextType string
	ContextID   string
	Message     string
}

func (r Request) scope() conversation.Scope {
	return conversation.Scope{ChefID: r.ChefID, ContextType: r.ContextType, ContextID: r.ContextID, Channel: r.Channel}
}

// Outcome summarizes a finished session.
type Outcome struct {
	State      State
	Path       []State
	ThreadID   string
	Text       string
	Actions    []actions.Block
	ToolRounds int
	Err        error
}

// Store is the conversation persistence the session needs.
type Store interface {
	ActiveThread(ctx context.Context, sc conversation.Scope) (conversation.Thread, error)
	History(ctx context.Context, threadID string) ([]conversation.Turn, error)
	AppendExchange(ctx context.Context, sc conversation.Scope, user, assistant string) (conversation.Thread, error)
}

// Directory supplies chef identity and context summaries for the prompt.
type Directory interface {
	ChefProfile(ctx context.Context, chefID string) (prompt.Chef, error)
	ContextSummary(ctx context.Context, chefID, contextType, contextID string) (string, error)
}

// Dispatcher runs one tool call on behalf of a channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args json.RawMessage, c channel.Channel) (result.Result, error)
}

// Metrics receives one observation per session and per engine call.
type Metrics interface {
	SessionFinished(channel, outcome string, elapsed time.Duration)
	EngineCalled(elapsed time.Duration, err error)
}

// Config bounds a session. Zero fields take the defaults.
type Config struct {
	Timeout         time.Duration
	MaxToolRounds   int
	ToolConcurrency int
	HistoryLimit    int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = 8
	}
	if c.ToolConcurrency <= 0 {
		c.ToolConcurrency = 4
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 40
	}
	return c
}

// Deps are the collaborators an Orchestrator needs. Logger, Metrics and Clock
// are optional.
type Deps struct {
	Registry   *capability.Registry
	Guard      *guard.Guard
	Dispatcher Dispatcher
	Engine     engine.Engine
	Store      Store
	Directory  Directory
	Logger     *logger.Logger
	Metrics    Metrics
	Clock      func() time.Time
}

// Orchestrator runs sessions. It holds no per-request state, so one instance
// serves every request concurrently.
type Orchestrator struct {
	deps Deps
	cfg  Config
}

// New fills in the optional dependencies and config defaults.
func New(deps Deps, cfg Config) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Orchestrator{deps: deps, cfg: cfg.withDefaults()}
}

// run is the per-request state.
type run struct {
	req     Request
	out     *stream.Emitter
	log     *logger.Logger
	path    []State
	rounds  []engine.Round
	text    strings.Builder
	results []result.Result
}

func (r *run) enter(s State) {
	r.path = append(r.path, s)
	r.log.Debug("session state", "state", s.String(), "terminal", s.Terminal())
}

// Handle drives one request to a terminal state, writing frames to out. out is
// always closed when Handle returns.
func (o *Orchestrator) Handle(ctx context.Context, req Request, out *stream.Emitter) Outcome {
	start := o.deps.Clock()
	r := &run{
		req: req,
		out: out,
		log: o.deps.Logger.With("chef_id", req.ChefID, "channel", req.Channel.String(), "context_type", req.ContextType),
	}
	r.enter(Idle)

	runCtx, cancel := context.WithTimeout(tools.WithChef(ctx, req.ChefID), o.cfg.Timeout)
	defer cancel()

	outcome := o.handle(ctx, runCtx, r)
	outcome.Path = r.path
	outcome.ToolRounds = len(r.rounds)

	if o.deps.Metrics != nil {
		o.deps.Metrics.SessionFinished(req.Channel.String(), outcome.State.String(), o.deps.Clock().Sub(start))
	}
	if outcome.Err != nil && outcome.State == Failed {
		r.log.Error("session failed", "error", outcome.Err, "tool_rounds", outcome.ToolRounds)
	} else {
		r.log.Info("session finished", "state", outcome.State.String(), "tool_rounds", outcome.ToolRounds)
	}
	return outcome
}

func (o *Orchestrator) handle(ctx, runCtx context.Context, r *run) Outcome {
	err := o.converse(runCtx, r)
	if err == nil {
		r.enter(Streaming)
		blocks := actions.Extract(r.results)
		for _, b := range blocks {
			if err = r.out.Action(runCtx, b); err != nil {
				break
			}
		}
		if err == nil {
			var thread conversation.Thread
			thread, err = o.deps.Store.AppendExchange(runCtx, r.req.scope(), r.req.Message, r.text.String())
			if err == nil {
				r.enter(Persisted)
				if doneErr := r.out.Done(ctx); doneErr != nil {
					r.out.Close()
				}
				return Outcome{State: Persisted, ThreadID: thread.ID, Text: r.text.String(), Actions: blocks}
			}
		}
	}

	if ctx.Err() != nil {
		// the caller went away: leave history untouched and send nothing more
		r.enter(Cancelled)
		r.out.Close()
		return Outcome{State: Cancelled, Err: ctx.Err()}
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrEngineTimeout) {
		err = fmt.Errorf("%w: %w", ErrEngineTimeout, err)
	}
	return o.fail(ctx, r, err)
}

// fail persists the user's message with an apology and ends the stream with
// a generic error frame.
func (o *Orchestrator) fail(ctx context.Context, r *run, cause error) Outcome {
	r.enter(Failed)
	outcome := Outcome{State: Failed, Err: cause}

	thread, err := o.deps.Store.AppendExchange(ctx, r.req.scope(), r.req.Message, apology)
	if err != nil {
		r.log.Error("failed to persist failed exchange", "error", err)
	} else {
		outcome.ThreadID = thread.ID
	}
	if err := r.out.Fail(ctx, GenericError); err != nil {
		r.out.Close()
	}
	return outcome
}

// converse runs Assembling, then alternates AwaitingEngine and ToolPhase until
// the engine answers with text only.
func (o *Orchestrator) converse(ctx context.Context, r *run) error {
	r.enter(Assembling)
	req, err := o.assemble(ctx, r)
	if err != nil {
		return err
	}

	for {
		r.enter(AwaitingEngine)
		req.Rounds = r.rounds

		var streamed strings.Builder
		resp, err := o.complete(ctx, req, func(ctx context.Context, text string) error {
			streamed.WriteString(text)
			r.text.WriteString(text)
			return r.out.Content(ctx, text)
		})
		if err != nil {
			return err
		}
		if streamed.Len() == 0 && resp.Text != "" {
			// the engine did not stream: emit the whole text now
			streamed.WriteString(resp.Text)
			r.text.WriteString(resp.Text)
			if err := r.out.Content(ctx, resp.Text); err != nil {
				return err
			}
		}

		if len(resp.ToolCalls) == 0 {
			return nil
		}
		if len(r.rounds) >= o.cfg.MaxToolRounds {
			return fmt.Errorf("%w: %d rounds", ErrToolLoopExceeded, len(r.rounds))
		}
		for _, call := range resp.ToolCalls {
			if strings.TrimSpace(call.ID) == "" || strings.TrimSpace(call.Name) == "" {
				return fmt.Errorf("%w: id=%q name=%q", ErrMalformedToolCall, call.ID, call.Name)
			}
		}

		r.enter(ToolPhase)
		results, err := o.runTools(ctx, r, resp.ToolCalls)
		if err != nil {
			return err
		}
		r.rounds = append(r.rounds, engine.Round{Text: streamed.String(), Calls: resp.ToolCalls, Results: results})
	}
}

func (o *Orchestrator) assemble(ctx context.Context, r *run) (engine.Request, error) {
	history, err := o.history(ctx, r.req.scope())
	if err != nil {
		return engine.Request{}, err
	}

	chef := prompt.Chef{ID: r.req.ChefID}
	var summary string
	if o.deps.Directory != nil {
		if profile, err := o.deps.Directory.ChefProfile(ctx, r.req.ChefID); err == nil {
			chef = profile
		} else if ctx.Err() != nil {
			return engine.Request{}, ctx.Err()
		} else {
			r.log.Warn("chef profile unavailable", "error", err)
		}
		if r.req.ContextType != "" {
			if s, err := o.deps.Directory.ContextSummary(ctx, r.req.ChefID, r.req.ContextType, r.req.ContextID); err == nil {
				summary = s
			} else if ctx.Err() != nil {
				return engine.Request{}, ctx.Err()
			} else {
				r.log.Warn("context summary unavailable", "error", err)
			}
		}
	}

	descs := o.deps.Registry.ToolsFor(r.req.Channel)
	instructions := prompt.Build(prompt.Input{
		Chef:             chef,
		Context:          prompt.Context{Type: r.req.ContextType, ID: r.req.ContextID, Summary: summary},
		Channel:          r.req.Channel,
		Allowed:          o.deps.Registry.AllowedCategories(r.req.Channel),
		Tools:            prompt.FromDescriptors(descs),
		SensitiveTrusted: o.deps.Guard.Trusted(r.req.Channel),
		Today:            o.deps.Clock(),
	})

	specs := make([]engine.ToolSpec, 0, len(descs))
	for _, d := range descs {
		specs = append(specs, engine.ToolSpec{Name: string(d.ID), Description: d.Description, Parameters: d.InputSchema})
	}

	return engine.Request{
		Instructions: instructions,
		History:      history,
		Message:      r.req.Message,
		Tools:        specs,
	}, nil
}

// history reads the active thread without creating one, so a request that
// never reaches Persisted leaves no trace.
func (o *Orchestrator) history(ctx context.Context, sc conversation.Scope) ([]engine.Message, error) {
	thread, err := o.deps.Store.ActiveThread(ctx, sc)
	if errors.Is(err, conversation.ErrNoActiveThread) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	turns, err := o.deps.Store.History(ctx, thread.ID)
	if err != nil {
		return nil, err
	}
	if len(turns) > o.cfg.HistoryLimit {
		turns = turns[len(turns)-o.cfg.HistoryLimit:]
	}
	msgs := make([]engine.Message, 0, len(turns))
	for _, t := range turns {
		role := engine.RoleUser
		if t.Role == conversation.RoleAssistant {
			role = engine.RoleAssistant
		}
		msgs = append(msgs, engine.Message{Role: role, Content: t.Content})
	}
	return msgs, nil
}

func (o *Orchestrator) complete(ctx context.Context, req engine.Request, onChunk engine.ChunkFunc) (engine.Response, error) {
	start := o.deps.Clock()
	resp, err := o.deps.Engine.Complete(ctx, req, onChunk)
	if o.deps.Metrics != nil {
		o.deps.Metrics.EngineCalled(o.deps.Clock().Sub(start), err)
	}
	if err == nil {
		return resp, nil
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return engine.Response{}, fmt.Errorf("%w: %w", ErrEngineTimeout, err)
	case ctx.Err() != nil:
		return engine.Response{}, ctx.Err()
	default:
		return engine.Response{}, fmt.Errorf("%w: %w", ErrEngineUnreachable, err)
	}
}

// runTools dispatches one phase's calls in parallel and returns results in call
// order. Only cancellation aborts the phase; every other failure is already a
// result the engine can read.
func (o *Orchestrator) runTools(ctx context.Context, r *run, calls []engine.ToolCall) ([]engine.ToolResult, error) {
	results := make([]result.Result, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.ToolConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			res, err := o.deps.Dispatcher.Dispatch(gctx, call.Name, json.RawMessage(call.Arguments), r.req.Channel)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.log.Warn("tool call rejected", "tool", call.Name, "error", err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]engine.ToolResult, len(calls))
	for i, res := range results {
		if res.RenderAsAction {
			r.results = append(r.results, res)
		}
		out[i] = engine.ToolResult{CallID: calls[i].ID, Name: calls[i].Name, Content: res.EngineContent()}
	}
	return out, nil
}
