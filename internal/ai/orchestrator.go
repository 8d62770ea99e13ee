// Package ai implements C5: the AI Streaming Orchestrator. It collects
// conversation context from the store, opens a streaming chat
// completion against an OpenAI-compatible upstream via
// sashabaranov/go-openai, relays chunks as StreamData events, commits
// the finished message, and honours mid-stream cancellation — the same
// shape as the teacher pool's ai.llmService.ChatStream, generalized
// from a single request/response pair into the registered, cancellable
// Generation of spec §4.5.
package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	openai "github.com/sashabaranov/go-openai"

	"github.com/shopmindai/chatcore/internal/apperr"
	"github.com/shopmindai/chatcore/internal/eventbus"
	"github.com/shopmindai/chatcore/internal/metrics"
	"github.com/shopmindai/chatcore/internal/protocol"
	"github.com/shopmindai/chatcore/internal/store"
)

// key identifies one in-flight generation.
type key struct {
	querierID      int64
	conversationID int64
}

// generation is the registered, cancellable unit of work of §4.5 step 2.
type generation struct {
	cancel context.CancelFunc
}

// Registry is the process-wide table of in-flight generations. At most
// one may exist per (querierID, conversationID), per §4.4's
// per-connection invariant generalized to the pair that actually
// identifies a generation.
type Registry struct {
	mu  sync.Mutex
	gen map[key]*generation
}

func newRegistry() *Registry {
	return &Registry{gen: make(map[key]*generation)}
}

func (r *Registry) register(querierID, conversationID int64, cancel context.CancelFunc) (*generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{querierID, conversationID}
	if _, exists := r.gen[k]; exists {
		return nil, apperr.New(apperr.Conflict, "a generation is already in flight for this conversation")
	}
	g := &generation{cancel: cancel}
	r.gen[k] = g
	return g, nil
}

func (r *Registry) clear(querierID, conversationID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.gen, key{querierID, conversationID})
}

// Cancel requests cancellation of querierID's generation in
// conversationID, if any. Returns false if there was none to cancel.
func (r *Registry) Cancel(querierID, conversationID int64) bool {
	r.mu.Lock()
	g, ok := r.gen[key{querierID, conversationID}]
	r.mu.Unlock()
	if !ok {
		return false
	}
	g.cancel()
	return true
}

// CancelAllFor cancels every generation owned by querierID, used on
// connection close (§5 "Cancellation").
func (r *Registry) CancelAllFor(querierID int64) {
	r.mu.Lock()
	var cancels []context.CancelFunc
	for k, g := range r.gen {
		if k.querierID == querierID {
			cancels = append(cancels, g.cancel)
		}
	}
	r.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// Config configures the upstream provider connection.
type Config struct {
	BaseURL       string
	APIKey        string
	ContextBudget int
	MaxRetries    int
}

// Orchestrator is the C5 AI Streaming Orchestrator.
type Orchestrator struct {
	client   *openai.Client
	store    *store.Store
	bus      *eventbus.Bus
	registry *Registry
	budget   int
	retries  int
	log      *logrus.Logger
}

// New builds an Orchestrator talking to an OpenAI-chat-completions
// compatible endpoint (Hugging Face's TGI gateway shape, per
// SPEC_FULL's "Configuration of the AI provider").
func New(cfg Config, st *store.Store, bus *eventbus.Bus, log *logrus.Logger) *Orchestrator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	budget := cfg.ContextBudget
	if budget <= 0 {
		budget = 5000
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Orchestrator{
		client:   openai.NewClientWithConfig(clientCfg),
		store:    st,
		bus:      bus,
		registry: newRegistry(),
		budget:   budget,
		retries:  retries,
		log:      log,
	}
}

// Registry exposes the generation table so CancelGeneration and
// connection-close handling can reach it.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Generate runs one full generation for querierID in conversationID
// against modelName, per §4.5. It never returns an error the caller
// must act on beyond logging: every failure path already published its
// own Error/CanceledGeneration event before returning.
func (o *Orchestrator) Generate(parent context.Context, conversationID, querierID, aiModelID int64, modelName string) {
	ctx, cancel := context.WithCancel(parent)
	if _, err := o.registry.register(querierID, conversationID, cancel); err != nil {
		cancel()
		metrics.GenerationsTotal.WithLabelValues("rejected").Inc()
		o.bus.ToUser(querierID, errorEvent(err))
		return
	}
	defer func() {
		o.registry.clear(querierID, conversationID)
		cancel()
	}()

	entries, err := o.store.ListMessagesForContext(ctx, conversationID, o.budget)
	if err != nil {
		o.bus.ToUser(querierID, errorEvent(apperr.Wrap(apperr.Internal, "assemble context", err)))
		return
	}

	req := openai.ChatCompletionRequest{
		Model:         modelName,
		Messages:      toChatMessages(entries),
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}

	stream, err := o.requestWithRetry(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			metrics.GenerationsTotal.WithLabelValues("canceled").Inc()
			o.publishCanceled(conversationID, querierID)
			return
		}
		metrics.GenerationsTotal.WithLabelValues("error").Inc()
		o.bus.ToConversation(conversationID, errorEvent(apperr.Wrap(apperr.Upstream, "ai provider request failed", err)))
		return
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			metrics.GenerationsTotal.WithLabelValues("canceled").Inc()
			o.publishCanceled(conversationID, querierID)
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if strings.Contains(err.Error(), "EOF") {
				break
			}
			if ctx.Err() != nil {
				metrics.GenerationsTotal.WithLabelValues("canceled").Inc()
				o.publishCanceled(conversationID, querierID)
				return
			}
			metrics.GenerationsTotal.WithLabelValues("error").Inc()
			o.bus.ToConversation(conversationID, errorEvent(apperr.Wrap(apperr.Upstream, "ai stream interrupted", err)))
			o.publishCanceled(conversationID, querierID)
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		chunk := resp.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)

		evt := protocol.NewStreamDataEvent()
		evt.ConversationID = conversationID
		evt.QuerierID = querierID
		evt.Message = chunk
		o.bus.ToConversation(conversationID, evt)

		if resp.Choices[0].FinishReason != "" {
			break
		}
	}

	body := sb.String()
	msg, err := o.store.CreateMessage(ctx, conversationID, store.NewAIAuthor(aiModelID), body, nil)
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("error").Inc()
		o.log.WithError(err).Error("ai: failed to commit generated message")
		o.bus.ToConversation(conversationID, errorEvent(apperr.Wrap(apperr.Internal, "commit ai message", err)))
		return
	}
	metrics.GenerationsTotal.WithLabelValues("completed").Inc()

	mevt := protocol.NewMessageEvent()
	mevt.ID = msg.ID
	mevt.ConversationID = msg.ConversationID
	mevt.AIModelID = msg.AIModelID
	mevt.Body = msg.Body
	mevt.CreatedAt = msg.CreatedAt.Unix()
	o.bus.ToConversation(conversationID, mevt)
}

// requestWithRetry implements §4.5's "Transient network errors during
// Request are retried up to N times with exponential backoff" — Relay
// failures are never retried, matching the Failure semantics paragraph.
func (o *Orchestrator) requestWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	var lastErr error
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt <= o.retries; attempt++ {
		stream, err := o.client.CreateChatCompletionStream(ctx, req)
		if err == nil {
			return stream, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == o.retries {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("ai provider request failed after %d attempts: %w", o.retries+1, lastErr)
}

func (o *Orchestrator) publishCanceled(conversationID, querierID int64) {
	evt := protocol.NewCanceledGenerationEvent()
	evt.ConversationID = conversationID
	evt.QuerierID = querierID
	o.bus.ToConversation(conversationID, evt)
}

func errorEvent(err error) protocol.ErrorEvent {
	evt := protocol.NewErrorEvent()
	evt.Kind = string(apperr.KindOf(err))
	evt.Message = err.Error()
	return evt
}

func toChatMessages(entries []store.ContextEntry) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(entries))
	for _, e := range entries {
		role := openai.ChatMessageRoleUser
		if e.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: e.Body})
	}
	return out
}
