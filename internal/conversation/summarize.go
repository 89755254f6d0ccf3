package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/frontdesk/internal/llm"
)

const (
	// MaxHistoryTurns is the log length that triggers compaction.
	MaxHistoryTurns = 50

	// KeepLastTurns is how many recent turns survive compaction verbatim.
	KeepLastTurns = 6

	summaryPrefix = "Summary of previous conversation: "

	summarizePrompt = "Summarize the key facts, names, addresses, and user intentions " +
		"from this conversation. This summary will be your only memory of the past. " +
		"Keep it concise and informative."
)

// Summarizer compacts overlong conversation logs: the turn prefix is replaced
// with one synthetic system turn carrying an LLM summary, the most recent
// KeepLastTurns stay verbatim.
type Summarizer struct {
	log      *Log
	provider llm.Provider
	model    string
}

// NewSummarizer builds a summarizer over a log.
func NewSummarizer(log *Log, provider llm.Provider, model string) *Summarizer {
	return &Summarizer{log: log, provider: provider, model: model}
}

// MaybeCompact summarizes the conversation if it exceeds MaxHistoryTurns.
// An LLM failure leaves the log untouched; the next append retries.
func (s *Summarizer) MaybeCompact(ctx context.Context, key string) {
	history, err := s.log.History(key)
	if err != nil || len(history) <= MaxHistoryTurns {
		return
	}

	slog.Info("compacting conversation", "key", key, "turns", len(history))

	keep := history[len(history)-KeepLastTurns:]
	prefix := history[:len(history)-KeepLastTurns]

	summary, err := s.summarize(ctx, prefix)
	if err != nil {
		slog.Warn("summarization failed, keeping full history", "key", key, "error", err)
		return
	}

	compacted := make([]Turn, 0, KeepLastTurns+1)
	compacted = append(compacted, Turn{
		Role:      RoleSystem,
		Kind:      KindText,
		Content:   summaryPrefix + summary,
		Timestamp: time.Now(),
	})
	compacted = append(compacted, keep...)

	if err := s.log.CompactPrefix(key, len(history), compacted); err != nil {
		slog.Warn("failed to persist compacted history", "key", key, "error", err)
	}
}

func (s *Summarizer) summarize(ctx context.Context, turns []Turn) (string, error) {
	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Content)
	}

	resp, err := s.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "user", Content: sb.String() + "\n" + summarizePrompt},
		},
		Model:       s.model,
		MaxTokens:   512,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	if resp.Content == "" {
		return "", fmt.Errorf("empty summary from %s", s.provider.Name())
	}
	return resp.Content, nil
}

// IsSummaryTurn reports whether a turn is a synthetic compaction summary.
func IsSummaryTurn(t Turn) bool {
	return t.Role == RoleSystem && strings.HasPrefix(t.Content, summaryPrefix)
}
