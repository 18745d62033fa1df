// Package dispatch implements the request-scoped cycle that turns a user
// utterance into a final assistant reply, optionally consulting tools.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
	"github.com/xmrt-ecosystem/assistant-server/internal/provider"
)

// State is the dispatch cycle state.
type State string

const (
	StateReceived          State = "RECEIVED"
	StateAwaitingDecision  State = "AWAITING_PROVIDER_DECISION"
	StateDirectAnswer      State = "DIRECT_ANSWER"
	StateToolExecution     State = "TOOL_EXECUTION"
	StateAwaitingSynthesis State = "AWAITING_PROVIDER_SYNTHESIS"
	StateComplete          State = "COMPLETE"
	StateFailed            State = "FAILED"
)

const systemPrompt = "You are the XMRT DAO assistant. You help members of a " +
	"crypto-mining DAO with pool statistics, token prices, and the DAO's " +
	"long-term memory. Answer directly when you can; call tools when you " +
	"need live data. Be concise and factual."

// SessionFacade is the slice of the session service the dispatcher needs.
type SessionFacade interface {
	AppendMessage(ctx context.Context, sessionID, role, content string, metadata map[string]interface{}) (*model.Message, error)
}

// ToolSource lists the currently available tools. It never fails.
type ToolSource interface {
	List(ctx context.Context) []model.ToolDescriptor
}

// ToolExecutor invokes one named tool with raw arguments.
type ToolExecutor interface {
	Execute(ctx context.Context, name, rawArgs string) (map[string]interface{}, error)
}

// AuditSink records one dispatch cycle.
type AuditSink interface {
	Create(ctx context.Context, a *model.AuditRecord) (*model.AuditRecord, error)
}

// Result is the outcome of one dispatch cycle.
type Result struct {
	State       State              `json:"state"`
	Reply       string             `json:"reply,omitempty"`
	ToolResults []model.ToolResult `json:"toolResults,omitempty"`
}

// Dispatcher runs the selection → execution → synthesis cycle. Exactly one
// round of tool use is performed per cycle; there is no recursion back into
// selection, which keeps latency and cost bounded.
type Dispatcher struct {
	sessions        SessionFacade
	tools           ToolSource
	executor        ToolExecutor
	completion      provider.CompletionProvider
	audits          AuditSink
	log             zerolog.Logger
	providerTimeout time.Duration
}

func New(sessions SessionFacade, tools ToolSource, executor ToolExecutor, completion provider.CompletionProvider, audits AuditSink, log zerolog.Logger, providerTimeout time.Duration) *Dispatcher {
	if providerTimeout <= 0 {
		providerTimeout = 20 * time.Second
	}
	return &Dispatcher{
		sessions:        sessions,
		tools:           tools,
		executor:        executor,
		completion:      completion,
		audits:          audits,
		log:             log,
		providerTimeout: providerTimeout,
	}
}

// Dispatch runs one full cycle for the utterance. On success the returned
// Result is COMPLETE with a non-empty reply; on failure the error is one of
// the model sentinels and the Result records the FAILED state. An audit
// record is written in every case.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, utterance string) (res *Result, err error) {
	start := time.Now()
	auditID := uuid.New().String()
	var toolNames []string

	defer func() {
		status := model.AuditComplete
		errText := ""
		if err != nil {
			status = model.AuditFailed
			errText = err.Error()
		}
		// Detached context: the record must land even when the caller has
		// disconnected.
		auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, aerr := d.audits.Create(auditCtx, &model.AuditRecord{
			AuditID:   auditID,
			SessionID: sessionID,
			Input:     utterance,
			Tools:     toolNames,
			Status:    status,
			Error:     errText,
			ElapsedMS: time.Since(start).Milliseconds(),
		}); aerr != nil {
			d.log.Error().Stack().Err(aerr).Str("audit_id", auditID).Msg("audit write failed")
		}
	}()

	if strings.TrimSpace(utterance) == "" {
		return &Result{State: StateFailed}, fmt.Errorf("%w: empty utterance", model.ErrInvalidInput)
	}
	if d.completion == nil {
		return &Result{State: StateFailed}, fmt.Errorf("completion provider: %w", model.ErrNotConfigured)
	}

	// The user's turn is persisted before any provider call so a provider
	// failure never drops it.
	if _, err := d.sessions.AppendMessage(ctx, sessionID, model.RoleUser, utterance, nil); err != nil {
		return &Result{State: StateFailed}, err
	}

	descriptors := d.tools.List(ctx)

	decision, err := d.chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: systemPrompt},
		{Role: provider.RoleUser, Content: utterance},
	}, descriptors)
	if err != nil {
		return &Result{State: StateFailed}, fmt.Errorf("%w: decision call: %v", model.ErrProvider, err)
	}

	// Direct answer: no tools requested, the decision text is final.
	if len(decision.ToolCalls) == 0 {
		reply := decision.Content
		if strings.TrimSpace(reply) == "" {
			return &Result{State: StateFailed}, fmt.Errorf("%w: empty direct answer", model.ErrProvider)
		}
		if err := d.appendReply(ctx, sessionID, reply, auditID, nil); err != nil {
			return &Result{State: StateFailed}, err
		}
		return &Result{State: StateComplete, Reply: reply}, nil
	}

	// Tool execution: calls are independent within the round, so they run
	// concurrently. Results keep the provider's request order.
	results := d.executeAll(ctx, decision.ToolCalls)
	for _, r := range results {
		toolNames = append(toolNames, r.Name)
	}

	reply, err := d.synthesize(ctx, utterance, decision.ToolCalls, results, descriptors)
	if err != nil {
		return &Result{State: StateFailed, ToolResults: results}, fmt.Errorf("%w: synthesis call: %v", model.ErrProvider, err)
	}

	if err := d.appendReply(ctx, sessionID, reply, auditID, results); err != nil {
		return &Result{State: StateFailed, ToolResults: results}, err
	}
	return &Result{State: StateComplete, Reply: reply, ToolResults: results}, nil
}

func (d *Dispatcher) chat(ctx context.Context, msgs []provider.Message, tools []model.ToolDescriptor) (*provider.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, d.providerTimeout)
	defer cancel()
	return d.completion.Chat(ctx, msgs, tools)
}

// executeAll invokes every requested tool. Failures are captured per tool:
// one failing call neither blocks the others nor loses their results.
func (d *Dispatcher) executeAll(ctx context.Context, calls []provider.ToolCall) []model.ToolResult {
	results := make([]model.ToolResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			out, err := d.executor.Execute(gctx, call.Name, call.Arguments)
			r := model.ToolResult{Name: call.Name, Arguments: call.Arguments}
			if err != nil {
				r.Err = err.Error()
				d.log.Warn().Err(err).Str("tool", call.Name).Msg("tool execution failed")
			} else {
				r.Result = out
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// synthesize sends the tool results back for one final natural-language pass.
// No tools are offered, so the provider cannot request another round.
func (d *Dispatcher) synthesize(ctx context.Context, utterance string, calls []provider.ToolCall, results []model.ToolResult, descriptors []model.ToolDescriptor) (string, error) {
	msgs := []provider.Message{
		{Role: provider.RoleSystem, Content: systemPrompt},
		{Role: provider.RoleUser, Content: utterance},
		{Role: provider.RoleAssistant, ToolCalls: calls},
	}
	for i, r := range results {
		payload, err := json.Marshal(r)
		if err != nil {
			return "", err
		}
		msgs = append(msgs, provider.Message{
			Role:       provider.RoleTool,
			Content:    string(payload),
			ToolCallID: calls[i].ID,
		})
	}

	resp, err := d.chat(ctx, msgs, nil)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("empty synthesis answer")
	}
	return resp.Content, nil
}

func (d *Dispatcher) appendReply(ctx context.Context, sessionID, reply, auditID string, results []model.ToolResult) error {
	meta := map[string]interface{}{"toolExecutionId": auditID}
	if len(results) > 0 {
		names := make([]string, len(results))
		hadErrors := false
		for i, r := range results {
			names[i] = r.Name
			if r.Err != "" {
				hadErrors = true
			}
		}
		meta["tools"] = names
		meta["hadErrors"] = hadErrors
	}
	_, err := d.sessions.AppendMessage(ctx, sessionID, model.RoleAssistant, reply, meta)
	return err
}
