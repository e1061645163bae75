// Package dispatch routes each inbound user turn to the right handler:
// commands, an in-progress flow, onboarding for incomplete profiles, or the
// agent pipeline for free conversation.
//
// Turns for the same user are strictly serialized: the per-user lock is
// held from history load through provider call to history append, so a
// second turn can never build its context from stale history. Different
// users proceed concurrently.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/agrisight/agrisight/internal/agent"
	"github.com/agrisight/agrisight/internal/flow"
	"github.com/agrisight/agrisight/internal/log"
	"github.com/agrisight/agrisight/internal/profile"
	"github.com/agrisight/agrisight/internal/session"
	"github.com/agrisight/agrisight/internal/transport"
)

// Canned replies for turn-scoped failures. Every error category maps to a
// reply; nothing here crashes the process.
const (
	providerFailureReply = "Sorry, I'm having trouble thinking right now. Please try again in a moment."
	saveFailureReply     = "I couldn't save our conversation just now, so this exchange won't be remembered. Please try again."
	settingsSaveFailure  = "I couldn't save that setting. Please try again."
	emptyInputReply      = "Send me a question or a photo of your crop and I'll take a look."
	nothingToCancelReply = "There's nothing to cancel right now."
	welcomeBackReply     = "Welcome back! Ask me anything about your crops, or use /settings to change your preferences."
	unknownCommandReply  = "I don't know that command. Try /start, /settings, or /cancel."
)

// settingsMenuReply lists the editable fields; the user's next selection
// starts the matching edit flow.
const settingsMenuReply = "What would you like to change?"

var settingsFields = []string{"Language", "Country", "Region"}

// Config contains the dispatcher's dependencies.
type Config struct {
	Profiles *profile.Store
	Sessions *session.Store
	Pipeline *agent.Pipeline
	Flows    *flow.Machine
	Logger   log.Logger

	// MaxHistoryTurns caps stored history per user after each exchange.
	// Zero disables truncation.
	MaxHistoryTurns int
}

func (cfg Config) validate() error {
	if cfg.Profiles == nil {
		return errors.New("profile store is required")
	}
	if cfg.Sessions == nil {
		return errors.New("session store is required")
	}
	if cfg.Pipeline == nil {
		return errors.New("agent pipeline is required")
	}
	if cfg.Flows == nil {
		return errors.New("flow machine is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Dispatcher orchestrates one reply per inbound event.
type Dispatcher struct {
	profiles        *profile.Store
	sessions        *session.Store
	pipeline        *agent.Pipeline
	flows           *flow.Machine
	logger          log.Logger
	maxHistoryTurns int

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New creates a Dispatcher from cfg.
func New(cfg Config) (*Dispatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Dispatcher{
		profiles:        cfg.Profiles,
		sessions:        cfg.Sessions,
		pipeline:        cfg.Pipeline,
		flows:           cfg.Flows,
		logger:          cfg.Logger,
		maxHistoryTurns: cfg.MaxHistoryTurns,
		locks:           map[int64]*sync.Mutex{},
	}, nil
}

// userLock returns the mutex serializing one user's turns. The map grows
// one entry per user seen and is never pruned; at single-instance scale
// that stays far below the session history the same users accumulate.
func (d *Dispatcher) userLock(userID int64) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[userID] = l
	}
	return l
}

// Handle processes one inbound event and returns the reply to deliver.
// All turn-scoped failures are converted into user-visible replies here;
// Handle itself never fails.
func (d *Dispatcher) Handle(ctx context.Context, ev transport.Event) transport.Reply {
	l := d.userLock(ev.UserID)
	l.Lock()
	defer l.Unlock()

	d.rememberName(ev)

	if ev.Command != "" {
		return d.handleCommand(ctx, ev)
	}

	_, active, err := d.flows.Active(ctx, ev.UserID)
	if err != nil {
		d.logger.Error("reading flow state", "user_id", ev.UserID, "error", err)
		return transport.Reply{Text: saveFailureReply}
	}
	if active {
		return d.handleFlowInput(ctx, ev)
	}

	// No flow active: a selection matching the settings menu starts the
	// corresponding edit.
	if ev.Selection != "" {
		if fieldStep, ok := settingsStep(ev.Selection); ok {
			return d.startEdit(ctx, ev.UserID, fieldStep)
		}
	}

	if !d.profiles.Complete(ev.UserID) {
		return d.startOnboarding(ctx, ev.UserID,
			"Hi! I'm AgriSight, your farming assistant. Let's set things up first.\n")
	}

	return d.converse(ctx, ev)
}

// handleCommand routes slash commands.
func (d *Dispatcher) handleCommand(ctx context.Context, ev transport.Event) transport.Reply {
	switch ev.Command {
	case "start":
		if d.profiles.Complete(ev.UserID) {
			return transport.Reply{Text: welcomeBackReply}
		}
		return d.startOnboarding(ctx, ev.UserID, "Welcome to AgriSight!\n")

	case "settings":
		if fieldStep, ok := settingsStep(ev.Text); ok {
			return d.startEdit(ctx, ev.UserID, fieldStep)
		}
		return transport.Reply{Text: settingsMenuReply, Options: settingsFields}

	case "cancel":
		_, active, err := d.flows.Active(ctx, ev.UserID)
		if err != nil {
			d.logger.Error("reading flow state", "user_id", ev.UserID, "error", err)
			return transport.Reply{Text: saveFailureReply}
		}
		if !active {
			return transport.Reply{Text: nothingToCancelReply}
		}
		prompt, err := d.flows.Cancel(ctx, ev.UserID)
		if err != nil {
			d.logger.Error("cancelling flow", "user_id", ev.UserID, "error", err)
			return transport.Reply{Text: settingsSaveFailure}
		}
		return promptReply(prompt)

	default:
		return transport.Reply{Text: unknownCommandReply}
	}
}

// handleFlowInput feeds the event into the active flow.
func (d *Dispatcher) handleFlowInput(ctx context.Context, ev transport.Event) transport.Reply {
	input := ev.Selection
	if input == "" {
		input = ev.Text
	}

	prompt, err := d.flows.Advance(ctx, ev.UserID, input)
	if err != nil {
		d.logger.Error("advancing flow", "user_id", ev.UserID, "error", err)
		return transport.Reply{Text: settingsSaveFailure}
	}
	return promptReply(prompt)
}

func (d *Dispatcher) startOnboarding(ctx context.Context, userID int64, greeting string) transport.Reply {
	prompt, err := d.flows.Start(ctx, userID)
	if err != nil {
		d.logger.Error("starting onboarding", "user_id", userID, "error", err)
		return transport.Reply{Text: settingsSaveFailure}
	}
	r := promptReply(prompt)
	r.Text = greeting + r.Text
	return r
}

func (d *Dispatcher) startEdit(ctx context.Context, userID int64, step flow.Step) transport.Reply {
	prompt, err := d.flows.StartAt(ctx, userID, step)
	if err != nil {
		d.logger.Error("starting settings edit", "user_id", userID, "error", err)
		return transport.Reply{Text: settingsSaveFailure}
	}
	return promptReply(prompt)
}

// converse runs the agent pipeline for a free-conversation turn and
// persists the exchange.
func (d *Dispatcher) converse(ctx context.Context, ev transport.Event) transport.Reply {
	state, err := d.sessions.Load(ctx, ev.UserID)
	if err != nil {
		d.logger.Error("loading session", "user_id", ev.UserID, "error", err)
		return transport.Reply{Text: saveFailureReply}
	}

	inv := agent.Invocation{
		UserID:  ev.UserID,
		Profile: d.profiles.Get(ev.UserID),
		History: state.Messages,
		Input:   ev.Text,
	}
	if ev.Image != nil {
		inv.Image = &agent.Image{Data: ev.Image.Data, MIME: ev.Image.MIME}
	}

	res, err := d.pipeline.Run(ctx, inv)
	switch {
	case errors.Is(err, agent.ErrEmptyInput):
		return transport.Reply{Text: emptyInputReply}
	case errors.Is(err, agent.ErrProvider):
		// Apologize without persisting anything: an error turn in history
		// would poison future context.
		d.logger.Warn("provider failure", "user_id", ev.UserID, "error", err)
		return transport.Reply{Text: providerFailureReply}
	case err != nil:
		d.logger.Error("pipeline failure", "user_id", ev.UserID, "error", err)
		return transport.Reply{Text: providerFailureReply}
	}

	if err := d.sessions.Append(ctx, ev.UserID, res.NewTurns); err != nil {
		d.logger.Error("appending turns", "user_id", ev.UserID, "error", err)
		return transport.Reply{Text: saveFailureReply}
	}

	if d.maxHistoryTurns > 0 {
		if err := d.sessions.Truncate(ctx, ev.UserID, d.maxHistoryTurns); err != nil {
			// Best effort: the reply is already durable.
			d.logger.Warn("truncating history", "user_id", ev.UserID, "error", err)
		}
	}

	return transport.Reply{Text: res.Reply}
}

// rememberName records the platform display name the first time we see it.
// Best effort; a failed write just means we ask the model to be generic.
func (d *Dispatcher) rememberName(ev transport.Event) {
	if ev.Name == "" {
		return
	}
	if d.profiles.Get(ev.UserID).Name != "" {
		return
	}
	if _, err := d.profiles.SetField(ev.UserID, profile.FieldName, ev.Name); err != nil {
		d.logger.Warn("saving display name", "user_id", ev.UserID, "error", err)
	}
}

// settingsStep maps a settings menu choice to its flow step.
func settingsStep(choice string) (flow.Step, bool) {
	switch strings.ToLower(strings.TrimSpace(choice)) {
	case "language":
		return flow.StepLanguage, true
	case "country":
		return flow.StepCountry, true
	case "region":
		return flow.StepRegion, true
	default:
		return "", false
	}
}

func promptReply(p *flow.Prompt) transport.Reply {
	return transport.Reply{Text: p.Text, Options: p.Options}
}
