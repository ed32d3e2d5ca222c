// Package agent runs the conversational side of the assistant: free-form
// questions about spending, with short-lived per-user context.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/nmorozov/kopilka/internal/config"
	"github.com/nmorozov/kopilka/internal/llm"
	storebq "github.com/nmorozov/kopilka/internal/store/bigquery"
)

// ChatModel is the completion surface the agent needs from the LLM client.
type ChatModel interface {
	Chat(ctx context.Context, model string, history []llm.ChatTurn) (string, error)
}

// TurnStore persists conversation turns for replay and analysis. May be nil,
// in which case history lives only in memory.
type TurnStore interface {
	InsertConversationTurns(ctx context.Context, userID string, turns []storebq.ConversationRow) error
	RecentConversationTurns(ctx context.Context, userID string, limit int) ([]storebq.ConversationRow, error)
}

const systemPreamble = "You are a personal finance assistant. " +
	"The user tracks income and expenses through you and asks questions in Russian. " +
	"Answer briefly and concretely. Amounts are in rubles unless stated otherwise."

// Agent keeps per-user conversation history in an expiring cache. Idle
// conversations drop out after the configured TTL; the next message starts a
// fresh context, optionally re-seeded from the turn store.
type Agent struct {
	model   ChatModel
	store   TurnStore
	history *cache.Cache
	cfg     config.AgentConfig
	log     zerolog.Logger
}

// New creates an agent. store may be nil.
func New(model ChatModel, store TurnStore, cfg config.AgentConfig, log zerolog.Logger) *Agent {
	return &Agent{
		model:   model,
		store:   store,
		history: cache.New(cfg.HistoryTTL, cfg.HistoryTTL/2),
		cfg:     cfg,
		log:     log,
	}
}

// Chat sends one user message and returns the model's reply. newConversation
// discards any cached context first.
func (a *Agent) Chat(ctx context.Context, userID, message string, newConversation bool) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("agent: empty message")
	}

	if newConversation {
		a.history.Delete(userID)
	}

	turns := a.cachedTurns(ctx, userID, newConversation)
	turns = append(turns, llm.ChatTurn{Role: "user", Text: message})

	prompt := a.withPreamble(turns)
	reply, err := a.model.Chat(ctx, a.cfg.Model, prompt)
	if err != nil {
		return "", fmt.Errorf("agent: chat: %w", err)
	}

	turns = append(turns, llm.ChatTurn{Role: "model", Text: reply})
	a.remember(userID, turns)

	if a.store != nil {
		err := a.store.InsertConversationTurns(ctx, userID, []storebq.ConversationRow{
			{Role: "user", Text: message},
			{Role: "model", Text: reply},
		})
		if err != nil {
			// History persistence is best effort; the reply already exists.
			a.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to persist conversation turns")
		}
	}

	return reply, nil
}

// Reset drops the user's cached conversation context.
func (a *Agent) Reset(userID string) {
	a.history.Delete(userID)
}

// cachedTurns returns the conversation context for one user: the in-memory
// cache when warm, otherwise the tail of the persisted history.
func (a *Agent) cachedTurns(ctx context.Context, userID string, skipStore bool) []llm.ChatTurn {
	if v, ok := a.history.Get(userID); ok {
		if turns, ok := v.([]llm.ChatTurn); ok {
			return turns
		}
	}

	if a.store == nil || skipStore {
		return nil
	}

	rows, err := a.store.RecentConversationTurns(ctx, userID, a.cfg.HistoryDepth)
	if err != nil {
		a.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load conversation history")
		return nil
	}

	turns := make([]llm.ChatTurn, 0, len(rows))
	for _, r := range rows {
		turns = append(turns, llm.ChatTurn{Role: r.Role, Text: r.Text})
	}
	return turns
}

// remember caches the trailing HistoryDepth turns under the standard TTL.
func (a *Agent) remember(userID string, turns []llm.ChatTurn) {
	if depth := a.cfg.HistoryDepth; depth > 0 && len(turns) > depth {
		turns = turns[len(turns)-depth:]
	}
	a.history.Set(userID, turns, cache.DefaultExpiration)
}

// withPreamble prefixes the context with the assistant instructions. The
// preamble travels as the first user turn since not every model exposes a
// separate system role on this API surface.
func (a *Agent) withPreamble(turns []llm.ChatTurn) []llm.ChatTurn {
	out := make([]llm.ChatTurn, 0, len(turns)+1)
	out = append(out, llm.ChatTurn{Role: "user", Text: systemPreamble})
	out = append(out, turns...)
	return out
}
