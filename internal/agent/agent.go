// Package agent runs the model loop for a single conversational turn.
//
// A turn starts from the user's input plus the stored history, calls the
// model, executes any tools the model requests, feeds the results back, and
// repeats until the model produces plain text or the tool-round budget runs
// out. The caller receives the reply together with every new message the
// exchange produced, in order, ready to be appended to the session store.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/agrisight/agrisight/internal/log"
	"github.com/agrisight/agrisight/internal/profile"
	"github.com/agrisight/agrisight/internal/tools"
)

// Sentinel errors for pipeline operations.
var (
	// ErrProvider indicates the model provider failed after retries.
	// Callers should apologize to the user and must not persist the turn.
	ErrProvider = errors.New("model provider failure")

	// ErrEmptyInput indicates the invocation carried neither text nor image.
	ErrEmptyInput = errors.New("empty input")
)

// fallbackReply is returned when the model produces no usable text.
const fallbackReply = "I'm sorry, I couldn't come up with an answer. Could you rephrase your question?"

// toolBudgetReply is returned when the model keeps requesting tools past
// the configured round budget.
const toolBudgetReply = "I'm sorry, I couldn't finish looking that up. Please try asking again."

// Config contains all required parameters for the pipeline.
type Config struct {
	Genkit   *genkit.Genkit
	Registry *tools.Registry
	Logger   log.Logger

	// ModelName is the provider-qualified model (e.g. "googleai/gemini-2.5-flash").
	ModelName string
	// VisionModelName handles turns that carry an image. Empty falls back
	// to ModelName.
	VisionModelName string
	// MaxToolRounds bounds how many tool-execution rounds a single turn
	// may perform before the pipeline gives up.
	MaxToolRounds int

	// Resilience configuration. Zero values use defaults.
	RetryConfig   RetryConfig
	BreakerConfig BreakerConfig
	RateLimiter   *rate.Limiter
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Registry == nil {
		return errors.New("tool registry is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Invocation is one user turn handed to the pipeline.
type Invocation struct {
	UserID  int64
	Profile profile.Profile
	// History is the stored conversation, oldest first.
	History []*ai.Message
	// Input is the user's text for this turn. May be empty when an image
	// is present.
	Input string
	// Image, when set, rides along with this turn's request only. It is
	// never replayed from history.
	Image *Image
}

// Result is the outcome of a completed turn.
type Result struct {
	// Reply is the text to send back to the user.
	Reply string
	// NewTurns holds every message this exchange produced, oldest first:
	// the user turn, any tool-request and tool-response turns, and the
	// final model turn. Ready for session persistence.
	NewTurns []*ai.Message
}

// Pipeline executes conversational turns.
//
// Pipeline is stateless across turns; all per-turn data arrives in the
// Invocation. Configuration is captured immutably at construction, so a
// single Pipeline is safe for concurrent use.
type Pipeline struct {
	g             *genkit.Genkit
	registry      *tools.Registry
	logger        log.Logger
	modelName     string
	visionModel   string
	maxToolRounds int

	retryConfig RetryConfig
	breaker     *Breaker
	rateLimiter *rate.Limiter
}

// New creates a Pipeline from cfg.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxToolRounds := cfg.MaxToolRounds
	if maxToolRounds <= 0 {
		maxToolRounds = 3
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}

	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	visionModel := cfg.VisionModelName
	if visionModel == "" {
		visionModel = cfg.ModelName
	}

	p := &Pipeline{
		g:             cfg.Genkit,
		registry:      cfg.Registry,
		logger:        cfg.Logger,
		modelName:     cfg.ModelName,
		visionModel:   visionModel,
		maxToolRounds: maxToolRounds,
		retryConfig:   retryConfig,
		breaker:       NewBreaker(cfg.BreakerConfig),
		rateLimiter:   rl,
	}

	p.logger.Info("agent pipeline initialized",
		"model", p.modelName,
		"vision_model", p.visionModel,
		"max_tool_rounds", p.maxToolRounds,
		"tools", strings.Join(p.registry.Names(), ", "),
	)

	return p, nil
}

// Run executes one turn.
//
// The returned NewTurns never include inv.Image; images are transient and
// belong only to the live request. On ErrProvider nothing should be
// persisted.
func (p *Pipeline) Run(ctx context.Context, inv Invocation) (*Result, error) {
	if strings.TrimSpace(inv.Input) == "" && inv.Image == nil {
		return nil, ErrEmptyInput
	}

	userMsg, liveUserMsg, err := p.userMessages(inv)
	if err != nil {
		return nil, err
	}

	// Live conversation sent to the model. History is copied because the
	// generate path mutates message content in place.
	messages := copyMessages(inv.History)
	messages = append(messages, liveUserMsg)

	// Durable record of the exchange, starting with the text-only user turn.
	newTurns := []*ai.Message{userMsg}

	directive, err := p.directive(inv.Profile)
	if err != nil {
		return nil, fmt.Errorf("rendering directive: %w", err)
	}

	modelName := p.modelName
	if inv.Image != nil {
		modelName = p.visionModel
	}

	for round := 0; ; round++ {
		resp, err := p.generate(ctx, directive, modelName, messages)
		if err != nil {
			return nil, err
		}

		requests := resp.ToolRequests()
		if len(requests) == 0 {
			reply := strings.TrimSpace(resp.Text())
			if reply == "" {
				p.logger.Warn("model returned empty response", "user_id", inv.UserID)
				reply = fallbackReply
			}
			newTurns = append(newTurns, ai.NewModelMessage(ai.NewTextPart(reply)))
			return &Result{Reply: reply, NewTurns: newTurns}, nil
		}

		if round >= p.maxToolRounds {
			p.logger.Warn("tool round budget exhausted",
				"user_id", inv.UserID,
				"rounds", round,
			)
			newTurns = append(newTurns, ai.NewModelMessage(ai.NewTextPart(toolBudgetReply)))
			return &Result{Reply: toolBudgetReply, NewTurns: newTurns}, nil
		}

		toolMsg := p.runTools(ctx, inv.UserID, requests)

		messages = append(messages, resp.Message, toolMsg)
		newTurns = append(newTurns, resp.Message, toolMsg)
	}
}

// generate performs one guarded model call.
func (p *Pipeline) generate(ctx context.Context, directive, modelName string, messages []*ai.Message) (*ai.ModelResponse, error) {
	if err := p.breaker.Allow(); err != nil {
		p.logger.Warn("circuit breaker rejected request", "state", p.breaker.State().String())
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(modelName),
		ai.WithSystem(directive),
		ai.WithMessages(messages...),
	}
	if refs := p.registry.Refs(); len(refs) > 0 {
		opts = append(opts, ai.WithTools(refs...), ai.WithReturnToolRequests(true))
	}

	resp, err := p.generateWithRetry(ctx, opts)
	if err != nil {
		p.breaker.Failure()
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	p.breaker.Success()
	return resp, nil
}

// runTools executes every requested tool and collects the responses into a
// single tool-role message. Unknown tools, invalid arguments, and execution
// failures become error outputs the model can read on the next round.
func (p *Pipeline) runTools(ctx context.Context, userID int64, requests []*ai.ToolRequest) *ai.Message {
	parts := make([]*ai.Part, 0, len(requests))
	for _, req := range requests {
		output := p.runTool(ctx, userID, req)
		parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
			Name:   req.Name,
			Ref:    req.Ref,
			Output: output,
		}))
	}
	return &ai.Message{Role: ai.RoleTool, Content: parts}
}

func (p *Pipeline) runTool(ctx context.Context, userID int64, req *ai.ToolRequest) any {
	tool, err := p.registry.Lookup(req.Name)
	if err != nil {
		p.logger.Warn("model requested unknown tool", "user_id", userID, "tool", req.Name)
		return toolError(fmt.Sprintf("unknown tool %q", req.Name))
	}
	if err := p.registry.Validate(req.Name, req.Input); err != nil {
		p.logger.Warn("tool arguments failed validation",
			"user_id", userID, "tool", req.Name, "error", err)
		return toolError(fmt.Sprintf("invalid arguments: %v", err))
	}

	out, err := tool.RunRaw(ctx, req.Input)
	if err != nil {
		p.logger.Warn("tool execution failed",
			"user_id", userID, "tool", req.Name, "error", err)
		return toolError(err.Error())
	}

	p.logger.Debug("tool executed", "user_id", userID, "tool", req.Name)
	return out
}

// toolError shapes a failure so the model sees it as tool output rather
// than a broken turn.
func toolError(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// userMessages builds the durable and the live versions of the user turn.
// The durable one is text only; the live one additionally carries the image
// when present.
func (p *Pipeline) userMessages(inv Invocation) (durable, live *ai.Message, err error) {
	text := inv.Input
	if strings.TrimSpace(text) == "" {
		text = "Please look at the attached photo."
	}

	durable = ai.NewUserMessage(ai.NewTextPart(text))
	if inv.Image == nil {
		return durable, durable, nil
	}

	mediaPart, err := inv.Image.Part()
	if err != nil {
		return nil, nil, fmt.Errorf("encoding image: %w", err)
	}
	live = ai.NewUserMessage(ai.NewTextPart(text), mediaPart)
	return durable, live, nil
}

// copyMessages creates independent copies of Message and Part structs.
// The generate path modifies message content in place, so concurrent turns
// sharing stored history would otherwise race.
func copyMessages(msgs []*ai.Message) []*ai.Message {
	if msgs == nil {
		return nil
	}
	copied := make([]*ai.Message, len(msgs))
	for i, msg := range msgs {
		parts := make([]*ai.Part, len(msg.Content))
		for j, part := range msg.Content {
			parts[j] = copyPart(part)
		}
		copied[i] = &ai.Message{
			Role:     msg.Role,
			Content:  parts,
			Metadata: copyMap(msg.Metadata),
		}
	}
	return copied
}

// copyPart copies a Part. ToolRequest.Input and ToolResponse.Output are
// type any and copied by reference; the generate path mutates only the
// Content slice, not tool payloads.
func copyPart(p *ai.Part) *ai.Part {
	if p == nil {
		return nil
	}
	cp := &ai.Part{
		Kind:        p.Kind,
		ContentType: p.ContentType,
		Text:        p.Text,
		Custom:      copyMap(p.Custom),
		Metadata:    copyMap(p.Metadata),
	}
	if p.ToolRequest != nil {
		cp.ToolRequest = &ai.ToolRequest{
			Input: p.ToolRequest.Input,
			Name:  p.ToolRequest.Name,
			Ref:   p.ToolRequest.Ref,
		}
	}
	if p.ToolResponse != nil {
		cp.ToolResponse = &ai.ToolResponse{
			Name:   p.ToolResponse.Name,
			Output: p.ToolResponse.Output,
			Ref:    p.ToolResponse.Ref,
		}
	}
	return cp
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
