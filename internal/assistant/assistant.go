// Package assistant runs one conversation turn end to end: input screening,
// intent classification, routing, output screening and history.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/frontdesk/internal/classifier"
	"github.com/xaenox/frontdesk/internal/guardrail"
	"github.com/xaenox/frontdesk/internal/models"
	"github.com/xaenox/frontdesk/internal/prompts"
	"github.com/xaenox/frontdesk/internal/scheduling"
	"github.com/xaenox/frontdesk/internal/storage"
	"github.com/xaenox/frontdesk/internal/tools"
	"go.uber.org/zap"
)

const (
	InputRefusal   = "Sorry, I can’t help with that request."
	OutputRefusal  = "Sorry, I can’t share that."
	Greeting       = "Hi! I can help you schedule/reschedule, check availability (PT), or answer quick questions. What would you like to do?"
	GenericFailure = "Sorry, something went wrong on our side. Please try again in a moment."
)

var (
	ErrEmptyText = errors.New("assistant: empty text")
	ErrNoUser    = errors.New("assistant: missing user id")
)

// Route names the branch that produced a reply.
type Route string

const (
	RouteRefused     Route = "refused"
	RouteScheduling  Route = "scheduling"
	RouteInformation Route = "information"
	RouteSmalltalk   Route = "smalltalk"
)

// Request is one inbound message.
type Request struct {
	UserID   string
	TenantID string
	Email    string
	Name     string
	Text     string
}

// Reply is what the caller shows to the user plus what happened internally.
type Reply struct {
	Text   string
	Intent models.Intent
	Route  Route
	// Blocked is "input" or "output" when a guardrail replaced the reply.
	Blocked string
	State   models.SchedulingState
	// NeedsClarification is set when the requested time could not be understood.
	NeedsClarification bool
	Failed             bool
}

// Screener is implemented by *guardrail.Gate.
type Screener interface {
	CheckInput(ctx context.Context, text string) guardrail.Verdict
	CheckOutput(ctx context.Context, text string) guardrail.Verdict
}

// Scheduler is implemented by *scheduling.Machine.
type Scheduler interface {
	Handle(ctx context.Context, turn models.ConversationTurn, instructions string) (scheduling.Outcome, error)
}

// Responder is implemented by *information.Responder.
type Responder interface {
	Answer(ctx context.Context, turn models.ConversationTurn, instructions string) (string, error)
}

type Store interface {
	storage.ConversationStore
	storage.SessionStore
	storage.SettingsStore
}

type Deps struct {
	Guard      Screener
	Classifier classifier.Classifier
	Scheduler  Scheduler
	Responder  Responder
	Store      Store
	Prompts    prompts.Set
}

type Options struct {
	HistoryWindow int
}

type Orchestrator struct {
	deps   Deps
	opts   Options
	locks  sync.Map // user id -> *sync.Mutex
	now    func() time.Time
	logger *zap.Logger
}

func NewOrchestrator(deps Deps, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 20
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		now:    time.Now,
		logger: logger,
	}
}

func (o *Orchestrator) lock(userID string) func() {
	v, _ := o.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Handle processes one turn. Turns of the same user run one at a time.
// Only ErrEmptyText and ErrNoUser are returned; every other failure becomes
// GenericFailure.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Reply, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Reply{}, ErrEmptyText
	}
	if req.UserID == "" {
		return Reply{}, ErrNoUser
	}

	unlock := o.lock(req.UserID)
	defer unlock()

	history, err := o.deps.Store.RecentMessages(ctx, req.UserID, o.opts.HistoryWindow)
	if err != nil {
		o.logger.Warn("Failed to load history", zap.String("user_id", req.UserID), zap.Error(err))
		history = nil
	}

	turn := models.ConversationTurn{
		UserID:     req.UserID,
		TenantID:   req.TenantID,
		Email:      req.Email,
		Name:       req.Name,
		Text:       text,
		History:    history,
		ReceivedAt: o.now(),
	}

	reply := o.respond(ctx, turn)
	o.remember(ctx, turn, reply.Text)

	o.logger.Info("Turn handled",
		zap.String("user_id", req.UserID),
		zap.String("label", string(reply.Intent)),
		zap.String("route", string(reply.Route)),
		zap.String("state", string(reply.State)),
		zap.Bool("blocked", reply.Blocked != ""))
	return reply, nil
}

func (o *Orchestrator) respond(ctx context.Context, turn models.ConversationTurn) Reply {
	if v := o.deps.Guard.CheckInput(ctx, turn.Text); v.Tripwire {
		return Reply{Text: InputRefusal, Route: RouteRefused, Blocked: "input"}
	}

	settings, err := o.deps.Store.GetSettings(ctx, turn.UserID)
	if err != nil {
		o.logger.Warn("Failed to load agent settings", zap.String("user_id", turn.UserID), zap.Error(err))
		settings = nil
	}
	set := o.deps.Prompts.ForUser(settings)

	intent, err := o.deps.Classifier.Classify(ctx, classifier.Input{Text: turn.Text, Instructions: set.Classification})
	if err != nil {
		return o.failure(turn, "classify", "", err)
	}

	reply, err := o.route(ctx, turn, intent, set, settings)
	if err != nil {
		return o.failure(turn, "route", reply.Route, err)
	}

	if v := o.deps.Guard.CheckOutput(ctx, reply.Text); v.Tripwire {
		reply.Text = OutputRefusal
		reply.Blocked = "output"
	}
	return reply
}

func (o *Orchestrator) route(ctx context.Context, turn models.ConversationTurn, intent models.Intent, set prompts.Set, settings *models.AgentSettings) (Reply, error) {
	reply := Reply{Intent: intent}

	followUp := false
	if intent == models.IntentElse {
		open, err := o.openDialogue(ctx, turn.UserID)
		if err != nil {
			reply.Route = RouteScheduling
			return reply, err
		}
		followUp = open
	}

	switch {
	case intent == models.IntentAppointment || followUp:
		reply.Route = RouteScheduling
		var notes string
		if settings != nil {
			notes = settings.SchedulingPrompt
		}
		out, err := o.deps.Scheduler.Handle(ctx, turn, notes)
		if err != nil {
			return reply, err
		}
		reply.Text = out.Text
		reply.State = out.State
		reply.NeedsClarification = out.NeedsClarification
		if out.NeedsClarification {
			o.logger.Info("Time not understood", zap.String("user_id", turn.UserID), zap.String("state", string(out.State)))
		}
	case intent == models.IntentInformation:
		reply.Route = RouteInformation
		answer, err := o.deps.Responder.Answer(ctx, turn, set.Information)
		if err != nil {
			return reply, err
		}
		reply.Text = answer
	default:
		reply.Route = RouteSmalltalk
		reply.Text = Greeting
	}
	return reply, nil
}

// openDialogue reports whether the user's scheduling session waits on an answer.
func (o *Orchestrator) openDialogue(ctx context.Context, userID string) (bool, error) {
	session, err := o.deps.Store.GetSession(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("loading session: %w", err)
	}
	return session.State.Open(), nil
}

// failure hides internal detail. Only sanitized tool messages reach the user.
func (o *Orchestrator) failure(turn models.ConversationTurn, stage string, route Route, err error) Reply {
	o.logger.Error("Turn failed",
		zap.String("user_id", turn.UserID),
		zap.String("stage", stage),
		zap.String("route", string(route)),
		zap.Error(err))

	text := GenericFailure
	var te *tools.Error
	if errors.As(err, &te) && (te.Kind == tools.KindValidation || te.Kind == tools.KindNotConnected) {
		text = te.Message
	}
	return Reply{Text: text, Route: route, Failed: true}
}

func (o *Orchestrator) remember(ctx context.Context, turn models.ConversationTurn, reply string) {
	now := o.now()
	err := o.deps.Store.AppendMessages(ctx, turn.UserID,
		models.Message{ID: uuid.NewString(), Role: models.RoleUser, Text: turn.Text, CreatedAt: now},
		models.Message{ID: uuid.NewString(), Role: models.RoleAssistant, Text: reply, CreatedAt: now},
	)
	if err != nil {
		o.logger.Error("Failed to save history", zap.String("user_id", turn.UserID), zap.Error(err))
	}
}
