// Package flow implements the guided onboarding and settings conversations.
//
// A flow is a short state machine: each step presents a constrained set of
// options, validates the user's selection, and stashes accepted values in
// the session's auxiliary data. Nothing touches the profile store until the
// confirm step commits the whole record in one durable write. Cancelling at
// any point clears the bookkeeping and leaves the profile untouched.
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agrisight/agrisight/internal/log"
	"github.com/agrisight/agrisight/internal/profile"
	"github.com/agrisight/agrisight/internal/session"
)

// Step identifies the field a flow step collects.
type Step string

const (
	StepLanguage Step = "language"
	StepCountry  Step = "country"
	StepRegion   Step = "region"
	StepConfirm  Step = "confirm"
)

// Auxiliary-data keys. Everything under auxPrefix is flow bookkeeping and
// is cleared on completion or cancellation.
const (
	auxPrefix = "flow."
	auxStep   = "flow.step"
	auxMode   = "flow.mode"

	auxLanguage = "flow.value.language"
	auxCountry  = "flow.value.country"
	auxRegion   = "flow.value.region"
)

// Flow modes. Onboarding walks every step; edit collects a single field and
// jumps straight to confirm.
const (
	modeOnboarding = "onboarding"
	modeEdit       = "edit"
)

// Sentinel errors for flow operations.
var (
	// ErrNoActiveFlow indicates Advance was called without a flow in progress.
	ErrNoActiveFlow = errors.New("no active flow")

	// ErrInvalidStep indicates StartAt was called with a non-field step.
	ErrInvalidStep = errors.New("invalid starting step")
)

// Prompt is what a flow step asks the user.
type Prompt struct {
	Text string
	// Options is the constrained set the user picks from. Empty means
	// free-text input is accepted.
	Options []string
	// Done reports that the flow has finished (committed or cancelled)
	// and no further Advance calls are expected.
	Done bool
}

// Machine drives onboarding and settings flows. Safe for concurrent use
// across users; the dispatcher serializes turns within one user.
type Machine struct {
	profiles *profile.Store
	sessions *session.Store
	logger   log.Logger
}

// NewMachine creates a flow state machine over the given stores.
func NewMachine(profiles *profile.Store, sessions *session.Store, logger log.Logger) *Machine {
	return &Machine{profiles: profiles, sessions: sessions, logger: logger}
}

// Active returns the step a user's flow is waiting on, if any.
func (m *Machine) Active(ctx context.Context, userID int64) (Step, bool, error) {
	v, ok, err := m.sessions.Aux(ctx, userID, auxStep)
	if err != nil {
		return "", false, fmt.Errorf("reading flow step: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return Step(v), true, nil
}

// Start begins onboarding at the language step.
func (m *Machine) Start(ctx context.Context, userID int64) (*Prompt, error) {
	if err := m.sessions.ClearAuxPrefix(ctx, userID, auxPrefix); err != nil {
		return nil, fmt.Errorf("resetting flow state: %w", err)
	}
	if err := m.sessions.SetAux(ctx, userID, auxMode, modeOnboarding); err != nil {
		return nil, fmt.Errorf("starting flow: %w", err)
	}
	if err := m.sessions.SetAux(ctx, userID, auxStep, string(StepLanguage)); err != nil {
		return nil, fmt.Errorf("starting flow: %w", err)
	}
	m.logger.Info("onboarding started", "user_id", userID)
	return m.prompt(ctx, userID, StepLanguage, "")
}

// StartAt begins a settings edit for a single field. The flow collects that
// field and proceeds directly to confirm.
func (m *Machine) StartAt(ctx context.Context, userID int64, step Step) (*Prompt, error) {
	switch step {
	case StepLanguage, StepCountry, StepRegion:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStep, step)
	}

	if err := m.sessions.ClearAuxPrefix(ctx, userID, auxPrefix); err != nil {
		return nil, fmt.Errorf("resetting flow state: %w", err)
	}
	if err := m.sessions.SetAux(ctx, userID, auxMode, modeEdit); err != nil {
		return nil, fmt.Errorf("starting flow: %w", err)
	}
	if err := m.sessions.SetAux(ctx, userID, auxStep, string(step)); err != nil {
		return nil, fmt.Errorf("starting flow: %w", err)
	}
	m.logger.Info("settings edit started", "user_id", userID, "field", string(step))
	return m.prompt(ctx, userID, step, "")
}

// Cancel aborts any in-progress flow without committing, leaving the prior
// profile unchanged.
func (m *Machine) Cancel(ctx context.Context, userID int64) (*Prompt, error) {
	if err := m.sessions.ClearAuxPrefix(ctx, userID, auxPrefix); err != nil {
		return nil, fmt.Errorf("clearing flow state: %w", err)
	}
	m.logger.Info("flow cancelled", "user_id", userID)
	return &Prompt{Text: "Okay, cancelled. Nothing was changed.", Done: true}, nil
}

// Advance feeds the user's input to the current step. Invalid input
// re-prompts the same step; a valid selection records the value and moves
// on. The confirm step commits the accumulated values to the profile store.
func (m *Machine) Advance(ctx context.Context, userID int64, input string) (*Prompt, error) {
	step, active, err := m.Active(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrNoActiveFlow
	}

	input = strings.TrimSpace(input)

	switch step {
	case StepLanguage:
		return m.acceptField(ctx, userID, StepLanguage, auxLanguage, input, Languages)
	case StepCountry:
		return m.acceptField(ctx, userID, StepCountry, auxCountry, input, Countries)
	case StepRegion:
		country, err := m.countryFor(ctx, userID)
		if err != nil {
			return nil, err
		}
		return m.acceptField(ctx, userID, StepRegion, auxRegion, input, RegionsOf(country))
	case StepConfirm:
		return m.confirm(ctx, userID, input)
	default:
		// Unknown step in aux data: treat as corrupted bookkeeping and reset.
		m.logger.Warn("unknown flow step, clearing", "user_id", userID, "step", string(step))
		return m.Cancel(ctx, userID)
	}
}

// acceptField validates one selection, stores it, and transitions.
func (m *Machine) acceptField(ctx context.Context, userID int64, step Step, auxKey, input string, options []string) (*Prompt, error) {
	value, ok := match(input, options)
	if !ok {
		// Re-prompt the same step. Never an error: the user just picked
		// something off-menu.
		return m.prompt(ctx, userID, step, "That's not one of the options. ")
	}

	if err := m.sessions.SetAux(ctx, userID, auxKey, value); err != nil {
		return nil, fmt.Errorf("recording %s: %w", string(step), err)
	}

	next := m.nextStep(ctx, userID, step)
	if err := m.sessions.SetAux(ctx, userID, auxStep, string(next)); err != nil {
		return nil, fmt.Errorf("advancing flow: %w", err)
	}
	return m.prompt(ctx, userID, next, "")
}

// nextStep returns the step after accepting the current field. Edit-mode
// flows skip straight to confirm.
func (m *Machine) nextStep(ctx context.Context, userID int64, step Step) Step {
	mode, _, err := m.sessions.Aux(ctx, userID, auxMode)
	if err != nil {
		m.logger.Warn("reading flow mode", "user_id", userID, "error", err)
	}
	if mode == modeEdit {
		return StepConfirm
	}

	switch step {
	case StepLanguage:
		return StepCountry
	case StepCountry:
		return StepRegion
	default:
		return StepConfirm
	}
}

// confirm handles the final step: commit on acceptance, cancel on refusal,
// re-prompt otherwise.
func (m *Machine) confirm(ctx context.Context, userID int64, input string) (*Prompt, error) {
	switch strings.ToLower(input) {
	case "confirm", "yes", "y", "ok":
		return m.commit(ctx, userID)
	case "cancel", "no", "n":
		return m.Cancel(ctx, userID)
	default:
		return m.prompt(ctx, userID, StepConfirm, "Please choose Confirm or Cancel. ")
	}
}

// commit writes the accumulated values over the existing profile in a
// single whole-record operation, then clears the flow bookkeeping.
func (m *Machine) commit(ctx context.Context, userID int64) (*Prompt, error) {
	prof := m.profiles.Get(userID)

	for _, f := range []struct {
		key string
		dst *string
	}{
		{auxLanguage, &prof.Language},
		{auxCountry, &prof.Country},
		{auxRegion, &prof.Region},
	} {
		v, ok, err := m.sessions.Aux(ctx, userID, f.key)
		if err != nil {
			return nil, fmt.Errorf("reading flow values: %w", err)
		}
		if ok {
			*f.dst = v
		}
	}

	if err := m.profiles.Put(prof); err != nil {
		return nil, fmt.Errorf("saving profile: %w", err)
	}
	if err := m.sessions.ClearAuxPrefix(ctx, userID, auxPrefix); err != nil {
		return nil, fmt.Errorf("clearing flow state: %w", err)
	}

	m.logger.Info("profile committed",
		"user_id", userID,
		"language", prof.Language,
		"country", prof.Country,
		"region", prof.Region,
	)
	return &Prompt{
		Text: "All set! Your preferences are saved. Ask me anything about your crops.",
		Done: true,
	}, nil
}

// countryFor resolves which country's regions to offer: the one picked
// earlier in this flow, falling back to the stored profile for edits.
func (m *Machine) countryFor(ctx context.Context, userID int64) (string, error) {
	v, ok, err := m.sessions.Aux(ctx, userID, auxCountry)
	if err != nil {
		return "", fmt.Errorf("reading flow country: %w", err)
	}
	if ok {
		return v, nil
	}
	return m.profiles.Get(userID).Country, nil
}

// prompt builds the question for a step. preamble carries the re-prompt
// nudge on invalid input.
func (m *Machine) prompt(ctx context.Context, userID int64, step Step, preamble string) (*Prompt, error) {
	switch step {
	case StepLanguage:
		return &Prompt{
			Text:    preamble + "Which language would you like me to use?",
			Options: Languages,
		}, nil
	case StepCountry:
		return &Prompt{
			Text:    preamble + "Which country do you farm in?",
			Options: Countries,
		}, nil
	case StepRegion:
		country, err := m.countryFor(ctx, userID)
		if err != nil {
			return nil, err
		}
		regions := RegionsOf(country)
		text := preamble + "Which region are you in?"
		if len(regions) == 0 {
			text = preamble + "Which region are you in? Type it in."
		}
		return &Prompt{Text: text, Options: regions}, nil
	case StepConfirm:
		summary, err := m.summary(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &Prompt{
			Text:    preamble + "Here's what I have:\n" + summary + "\nShall I save this?",
			Options: []string{"Confirm", "Cancel"},
		}, nil
	default:
		return nil, fmt.Errorf("no prompt for step %q", string(step))
	}
}

// summary renders the values the confirm step will commit, merged over the
// existing profile so single-field edits show the full picture.
func (m *Machine) summary(ctx context.Context, userID int64) (string, error) {
	prof := m.profiles.Get(userID)

	read := func(key, fallback string) (string, error) {
		v, ok, err := m.sessions.Aux(ctx, userID, key)
		if err != nil {
			return "", err
		}
		if !ok {
			return fallback, nil
		}
		return v, nil
	}

	language, err := read(auxLanguage, prof.Language)
	if err != nil {
		return "", fmt.Errorf("reading flow values: %w", err)
	}
	country, err := read(auxCountry, prof.Country)
	if err != nil {
		return "", fmt.Errorf("reading flow values: %w", err)
	}
	region, err := read(auxRegion, prof.Region)
	if err != nil {
		return "", fmt.Errorf("reading flow values: %w", err)
	}

	return fmt.Sprintf("Language: %s\nCountry: %s\nRegion: %s", language, country, region), nil
}

// match finds input in options, case-insensitively. An empty option set
// accepts any non-empty input verbatim (free-text regions).
func match(input string, options []string) (string, bool) {
	if input == "" {
		return "", false
	}
	if len(options) == 0 {
		return input, true
	}
	for _, opt := range options {
		if strings.EqualFold(input, opt) {
			return opt, true
		}
	}
	return "", false
}
