// Package orchestrator runs the query pipeline: classify, plan, gather
// context, generate, remember.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/assembler"
	"github.com/ziadkadry99/lanne/internal/auth"
	"github.com/ziadkadry99/lanne/internal/conversation"
	"github.com/ziadkadry99/lanne/internal/executor"
	"github.com/ziadkadry99/lanne/internal/intent"
	"github.com/ziadkadry99/lanne/internal/logging"
	"github.com/ziadkadry99/lanne/internal/memory"
	"github.com/ziadkadry99/lanne/internal/metrics"
	"github.com/ziadkadry99/lanne/internal/plan"
	"github.com/ziadkadry99/lanne/internal/render"
	"github.com/ziadkadry99/lanne/internal/respond"
)

var (
	// ErrEmptyQuery is returned for blank input.
	ErrEmptyQuery = errors.New("empty query")
	// ErrForbidden is returned when the conversation belongs to another user.
	ErrForbidden = errors.New("conversation belongs to another user")
)

const defaultStoreTimeout = 5 * time.Second

// History is the conversation memory.
type History interface {
	Window(ctx context.Context, conversationID string) (memory.State, error)
	Commit(ctx context.Context, conversationID, userID string, turns ...conversation.Turn) (memory.State, error)
}

// Conversations resolves conversation ownership.
type Conversations interface {
	GetConversation(ctx context.Context, id string) (*conversation.Conversation, error)
}

// Options wires an Orchestrator. Planner, Executor and Generator are
// required. A nil History runs every query without history, a nil
// Conversations skips the ownership check, a nil Evaluator skips context
// evaluation and a nil Renderer leaves Result.HTML empty.
type Options struct {
	Classifier    *intent.Classifier
	Planner       *plan.Builder
	Executor      *executor.Executor
	Evaluator     *executor.Evaluator
	Generator     *respond.Generator
	History       History
	Conversations Conversations
	Renderer      *render.Renderer
	Metrics       *metrics.Metrics

	// StoreTimeout bounds history reads and the post-answer commit.
	StoreTimeout time.Duration
	Tracer       trace.Tracer
	Logger       *zap.Logger
}

// Orchestrator handles queries end to end.
type Orchestrator struct {
	classifier    *intent.Classifier
	planner       *plan.Builder
	executor      *executor.Executor
	evaluator     *executor.Evaluator
	generator     *respond.Generator
	history       History
	conversations Conversations
	renderer      *render.Renderer
	metrics       *metrics.Metrics
	storeTimeout  time.Duration
	tracer        trace.Tracer
	logger        *zap.Logger
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	logger := logging.OrNop(opts.Logger)
	o := &Orchestrator{
		classifier:    opts.Classifier,
		planner:       opts.Planner,
		executor:      opts.Executor,
		evaluator:     opts.Evaluator,
		generator:     opts.Generator,
		history:       opts.History,
		conversations: opts.Conversations,
		renderer:      opts.Renderer,
		metrics:       opts.Metrics,
		storeTimeout:  opts.StoreTimeout,
		tracer:        opts.Tracer,
		logger:        logger.Named("orchestrator"),
	}
	if o.classifier == nil {
		o.classifier = intent.NewClassifier(0, logger)
	}
	if o.storeTimeout <= 0 {
		o.storeTimeout = defaultStoreTimeout
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("")
	}
	return o
}

// HandleQuery answers text within the given conversation and returns the
// answer. An empty conversationID starts a new conversation.
func (o *Orchestrator) HandleQuery(ctx context.Context, conversationID, userID, text string) (string, error) {
	res, err := o.Handle(ctx, Query{ConversationID: conversationID, UserID: userID, Text: text})
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// Plan classifies text and builds its plan without executing it.
func (o *Orchestrator) Plan(ctx context.Context, text string) plan.Plan {
	return o.planner.Build(ctx, o.classifier.Classify(text), text)
}

// Handle runs the full pipeline for q. It fails only on blank input or when
// the conversation belongs to another user; every collaborator failure
// degrades the answer instead.
func (o *Orchestrator) Handle(ctx context.Context, q Query, opts ...Option) (*Result, error) {
	var call callOptions
	for _, opt := range opts {
		opt(&call)
	}
	emit := call.observer
	if emit == nil {
		emit = func(Event) {}
	}

	text := strings.TrimSpace(q.Text)
	if text == "" {
		emit(Event{Type: EventError, Message: ErrEmptyQuery.Error()})
		return nil, ErrEmptyQuery
	}
	userID := q.UserID
	if userID == "" {
		userID = auth.Anonymous
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.handle")
	defer span.End()

	res := &Result{ConversationID: q.ConversationID}
	owned := true
	if res.ConversationID == "" {
		res.ConversationID = uuid.NewString()
	} else {
		var err error
		if owned, err = o.checkOwner(ctx, res, userID); err != nil {
			span.SetStatus(codes.Error, err.Error())
			emit(Event{Type: EventError, Message: ErrForbidden.Error()})
			return nil, err
		}
	}
	span.SetAttributes(attribute.String("conversation.id", res.ConversationID))

	emit(Event{Type: EventStatus, Message: msgAnalyzing})

	end := o.stage(ctx, "classify")
	res.Intent = o.classifier.Classify(text)
	end()
	o.metrics.ObserveRequest(string(res.Intent))
	span.SetAttributes(attribute.String("intent", string(res.Intent)))

	// An unverified owner gets neither the stored history nor a commit.
	state := memory.State{ConversationID: res.ConversationID}
	if owned {
		state = o.window(ctx, res)
	}

	stageCtx, endPlan := o.stageCtx(ctx, "plan")
	res.Plan = o.planner.Build(stageCtx, res.Intent, text)
	endPlan()
	emit(Event{Type: EventPlan, Data: res.Plan})

	ec := &executor.Context{}
	if !res.Intent.Trivial() {
		ec = o.gather(ctx, res.Plan, text, emit)
	}
	res.Sources = ec.Sources
	if res.Sources == nil {
		res.Sources = []string{}
	}
	res.RetrievalScore = ec.RetrievalScore
	res.UsedAgent = ec.AgentData != ""
	res.UsedRetrieval = ec.RetrievalData != ""
	res.UsedWeb = ec.WebData != ""

	emit(Event{Type: EventStatus, Message: msgGenerating})
	stageCtx, endGen := o.stageCtx(ctx, "generate")
	gen := o.generator.Generate(stageCtx, respond.Request{
		Query:   text,
		Style:   res.Plan.ResponseStyle,
		Context: assembler.Assemble(ec),
		History: state,
	})
	endGen()
	res.Answer = gen.Answer
	res.Fallback = gen.Fallback
	if gen.Fallback {
		o.metrics.ObserveFallback(gen.FallbackReason)
	}

	if o.renderer != nil {
		html, err := o.renderer.HTML(res.Answer)
		if err != nil {
			o.logger.Warn("rendering answer failed", zap.Error(err))
		}
		res.HTML = html
	}

	if owned {
		o.remember(ctx, res, userID, text)
	} else {
		res.Warnings = append(res.Warnings, WarnNotSaved)
	}

	emit(Event{Type: EventFinal, Data: res})
	return res, nil
}

// checkOwner reports whether userID was confirmed as the owner of the
// conversation. A failed lookup is not an error but leaves it unconfirmed.
func (o *Orchestrator) checkOwner(ctx context.Context, res *Result, userID string) (bool, error) {
	if o.conversations == nil {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(ctx, o.storeTimeout)
	defer cancel()

	c, err := o.conversations.GetConversation(ctx, res.ConversationID)
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		return true, nil
	case err != nil:
		o.logger.Warn("ownership lookup failed", zap.String("conversation_id", res.ConversationID), zap.Error(err))
		o.metrics.ObservePersistenceError()
		res.Warnings = append(res.Warnings, WarnHistoryUnavailable)
		return false, nil
	case c.UserID != userID:
		return false, fmt.Errorf("%w: %s", ErrForbidden, res.ConversationID)
	}
	return true, nil
}

func (o *Orchestrator) window(ctx context.Context, res *Result) memory.State {
	state := memory.State{ConversationID: res.ConversationID}
	if o.history == nil {
		return state
	}
	ctx, end := o.stageCtx(ctx, "history")
	defer end()
	ctx, cancel := context.WithTimeout(ctx, o.storeTimeout)
	defer cancel()

	st, err := o.history.Window(ctx, res.ConversationID)
	if err != nil {
		o.logger.Warn("loading conversation window failed", zap.String("conversation_id", res.ConversationID), zap.Error(err))
		if !slices.Contains(res.Warnings, WarnHistoryUnavailable) {
			res.Warnings = append(res.Warnings, WarnHistoryUnavailable)
		}
		return state
	}
	return st
}

func (o *Orchestrator) gather(ctx context.Context, p plan.Plan, text string, emit func(Event)) *executor.Context {
	if p.UseAgent && len(p.AgentCommands) > 0 {
		emit(Event{Type: EventStatus, Message: fmt.Sprintf(msgAgent, strings.Join(p.AgentCommands, ", "))})
	}
	if p.UseRetrieval {
		emit(Event{Type: EventStatus, Message: msgRetrieval})
	}
	if p.UseWebSearch && o.executor.WebEnabled() {
		emit(Event{Type: EventStatus, Message: msgWeb})
	}

	stageCtx, end := o.stageCtx(ctx, "execute")
	ec := o.executor.Execute(stageCtx, p, text)
	end()

	if o.evaluator != nil && executor.NeedsEvaluation(ec) {
		emit(Event{Type: EventStatus, Message: msgEvaluating})
		stageCtx, end := o.stageCtx(ctx, "evaluate")
		ec = o.executor.Refine(stageCtx, o.evaluator, text, ec)
		end()
	}
	return ec
}

// remember commits the exchange. It runs detached from the caller's
// cancellation so a disconnecting client does not lose the turn.
func (o *Orchestrator) remember(ctx context.Context, res *Result, userID, text string) {
	if o.history == nil {
		return
	}
	ctx, end := o.stageCtx(context.WithoutCancel(ctx), "persist")
	defer end()
	ctx, cancel := context.WithTimeout(ctx, o.storeTimeout)
	defer cancel()

	_, err := o.history.Commit(ctx, res.ConversationID, userID,
		conversation.Turn{Role: conversation.RoleUser, Content: text},
		conversation.Turn{Role: conversation.RoleAssistant, Content: res.Answer, Metadata: map[string]any{
			"intent":         string(res.Intent),
			"sources":        res.Sources,
			"rag_similarity": res.RetrievalScore,
			"fallback":       res.Fallback,
		}},
	)
	if err != nil {
		o.logger.Warn("saving conversation failed", zap.String("conversation_id", res.ConversationID), zap.Error(err))
		o.metrics.ObservePersistenceError()
		res.Warnings = append(res.Warnings, WarnNotSaved)
		trace.SpanFromContext(ctx).RecordError(err)
	}
}

func (o *Orchestrator) stage(ctx context.Context, name string) func() {
	_, end := o.stageCtx(ctx, name)
	return end
}

func (o *Orchestrator) stageCtx(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := o.tracer.Start(ctx, "stage."+name)
	start := time.Now()
	return ctx, func() {
		o.metrics.ObserveStage(name, time.Since(start))
		span.End()
	}
}
