// Package intent labels conversation turns via single-shot LLM calls with
// strict output contracts. Every call degrades to the safest non-action
// default on error or malformed output: no routing, no completeness, no
// confirmation, no duplicate. Classification failures never reach the user.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/frontdesk/internal/conversation"
	"github.com/nextlevelbuilder/frontdesk/internal/llm"
)

const (
	callTimeout  = 30 * time.Second
	maxQuestions = 3
)

// Verdict is the outcome of classifying a reply to a yes/no prompt.
type Verdict string

const (
	VerdictConfirm Verdict = "confirm"
	VerdictDeny    Verdict = "deny"
	VerdictNeither Verdict = "neither"
)

// Classifier wraps the LLM provider for intake classification.
type Classifier struct {
	provider llm.Provider
	model    string
}

// New builds a classifier on the given provider.
func New(provider llm.Provider, model string) *Classifier {
	return &Classifier{provider: provider, model: model}
}

const routePrompt = `You route resident requests for a property-management company.
Classify the conversation's current request into exactly one category:
- "general": maintenance, repairs, utilities, common areas, anything needing a dispatcher
- "accounting": bills, payments, debts, recalculations, account statements
- "admin": complaints, documents, management questions, everything for the administration
- "none": greetings, gratitude, casual chat, confirmations of an ongoing exchange, or no actionable request

Only classify a clear, current request. Respond with JSON: {"category": "..."}`

// Route labels the conversation's current request with a routing category.
// Fails safe to none: an LLM error never silently creates a ticket.
func (c *Classifier) Route(ctx context.Context, history []conversation.Turn) conversation.Category {
	out, err := c.call(ctx, routePrompt, historyText(history))
	if err != nil {
		slog.Warn("routing classification failed, defaulting to none", "error", err)
		return conversation.CategoryNone
	}

	var v struct {
		Category string `json:"category"`
	}
	if err := decodeJSON(out, &v); err != nil {
		slog.Warn("routing classification returned malformed output", "output", truncate(out, 120))
		return conversation.CategoryNone
	}
	return conversation.ParseCategory(v.Category)
}

const completenessPrompt = `You check whether a resident request has enough detail to open a %s ticket.
Required: the resident's FULL name (both given name and family name), the address
(street, building, apartment), and a description of the issue.
Respond with JSON:
{"full_name": "<name as stated or empty>", "has_address": bool, "has_issue": bool,
 "questions": ["<clarifying question>", ...]}
Questions must be in the resident's language, one per missing item.`

// Completeness reports whether required ticket fields are present, and
// clarifying questions for whatever is missing. The full name (given and
// family) is mandatory regardless of the rest. Fails safe to incomplete.
func (c *Classifier) Completeness(ctx context.Context, cat conversation.Category, history []conversation.Turn) (bool, []string) {
	out, err := c.call(ctx, fmt.Sprintf(completenessPrompt, cat), historyText(history))
	if err != nil {
		slog.Warn("completeness check failed, defaulting to incomplete", "error", err)
		return false, []string{genericClarifyQuestion}
	}

	var v struct {
		FullName   string   `json:"full_name"`
		HasAddress bool     `json:"has_address"`
		HasIssue   bool     `json:"has_issue"`
		Questions  []string `json:"questions"`
	}
	if err := decodeJSON(out, &v); err != nil {
		slog.Warn("completeness check returned malformed output", "output", truncate(out, 120))
		return false, []string{genericClarifyQuestion}
	}

	questions := v.Questions
	if len(questions) > maxQuestions {
		questions = questions[:maxQuestions]
	}

	// The full name is mandatory whatever the model concluded: both a given
	// and a family name must be present.
	if !hasFullName(v.FullName) {
		return false, questions
	}
	return v.HasAddress && v.HasIssue, questions
}

const extractPrompt = `Extract the resident's request from the conversation as JSON:
{"full_name": "...", "address": "...", "contact": "<phone or empty>",
 "issue": "<short one-line issue summary>", "detail": "<fuller description>"}
Use the resident's own wording and language. Leave unknown fields empty.`

// ExtractTicket pulls structured ticket fields out of the conversation.
func (c *Classifier) ExtractTicket(ctx context.Context, cat conversation.Category, history []conversation.Turn) (conversation.TicketDraft, error) {
	out, err := c.call(ctx, extractPrompt, historyText(history))
	if err != nil {
		return conversation.TicketDraft{}, fmt.Errorf("ticket extraction: %w", err)
	}

	var v struct {
		FullName string `json:"full_name"`
		Address  string `json:"address"`
		Contact  string `json:"contact"`
		Issue    string `json:"issue"`
		Detail   string `json:"detail"`
	}
	if err := decodeJSON(out, &v); err != nil {
		return conversation.TicketDraft{}, fmt.Errorf("ticket extraction: malformed output: %w", err)
	}

	return conversation.TicketDraft{
		Category: cat,
		FullName: strings.TrimSpace(v.FullName),
		Address:  strings.TrimSpace(v.Address),
		Contact:  strings.TrimSpace(v.Contact),
		Issue:    strings.TrimSpace(v.Issue),
		Detail:   strings.TrimSpace(v.Detail),
	}, nil
}

const confirmationPrompt = `The user was asked to confirm a summarized request with yes or no.
Classify their reply:
- "confirm": agreement, including compound agreement ("yes, and please hurry")
- "deny": refusal, OR agreement with a contradiction or correction ("yes, but the address is wrong")
- "neither": anything that is not an answer to the yes/no question
Respond with JSON: {"verdict": "confirm" | "deny" | "neither"}`

// Confirmation classifies a free-text reply to a yes/no prompt. On LLM
// failure it falls back to a fixed keyword list before giving up.
func (c *Classifier) Confirmation(ctx context.Context, reply string) Verdict {
	out, err := c.call(ctx, confirmationPrompt, reply)
	if err != nil {
		slog.Warn("confirmation detection failed, using keyword fallback", "error", err)
		return keywordVerdict(reply)
	}

	var v struct {
		Verdict string `json:"verdict"`
	}
	if err := decodeJSON(out, &v); err != nil {
		return keywordVerdict(reply)
	}

	switch Verdict(v.Verdict) {
	case VerdictConfirm, VerdictDeny, VerdictNeither:
		return Verdict(v.Verdict)
	default:
		return keywordVerdict(reply)
	}
}

const topicChangePrompt = `The user has a request confirmation pending (awaiting yes/no) but replied
with something else. Decide whether their reply abandons the pending request:
dismissive replies, a completely different topic, or "never mind" count as abandoning.
A detail or question about the pending request does not.
Respond with JSON: {"topic_changed": bool}`

// TopicChange reports whether a non-yes/no reply abandons the pending
// confirmation. Fails safe to false (the confirmation stays pending).
func (c *Classifier) TopicChange(ctx context.Context, reply string) bool {
	out, err := c.call(ctx, topicChangePrompt, reply)
	if err != nil {
		slog.Warn("topic-change detection failed, keeping confirmation", "error", err)
		return false
	}

	var v struct {
		TopicChanged bool `json:"topic_changed"`
	}
	if err := decodeJSON(out, &v); err != nil {
		return false
	}
	return v.TopicChanged
}

const identityPrompt = `Extract the resident's identity from the conversation as JSON:
{"full_name": "<given and family name, or null>", "address": "<street, building, apartment, or null>"}
Only use what the resident actually stated. Use null for anything missing.`

// ExtractIdentity pulls the resident's stated name and address out of the
// conversation. Empty strings mean "not stated".
func (c *Classifier) ExtractIdentity(ctx context.Context, history []conversation.Turn) (fullName, address string) {
	out, err := c.call(ctx, identityPrompt, historyText(history))
	if err != nil {
		slog.Warn("identity extraction failed", "error", err)
		return "", ""
	}

	var v struct {
		FullName *string `json:"full_name"`
		Address  *string `json:"address"`
	}
	if err := decodeJSON(out, &v); err != nil {
		return "", ""
	}
	if v.FullName != nil {
		fullName = strings.TrimSpace(*v.FullName)
	}
	if v.Address != nil {
		address = strings.TrimSpace(*v.Address)
	}
	return fullName, address
}

const accountQuestionPrompt = `Decide whether the resident is asking for their personal account number
(Russian: "лицевой счёт") used for utility payments. Only an explicit request
for the account number counts, not general billing questions.
Respond with JSON: {"account_question": bool}`

// AccountQuestion reports whether the current request asks for the resident's
// personal account number. Fails safe to false.
func (c *Classifier) AccountQuestion(ctx context.Context, history []conversation.Turn) bool {
	out, err := c.call(ctx, accountQuestionPrompt, historyText(history))
	if err != nil {
		slog.Warn("account-question detection failed", "error", err)
		return false
	}

	var v struct {
		AccountQuestion bool `json:"account_question"`
	}
	if err := decodeJSON(out, &v); err != nil {
		return false
	}
	return v.AccountQuestion
}

const semanticDupPrompt = `A resident proposes a new ticket. Compare it against their recent tickets.
Decide whether the new ticket describes the same problem as any recent one
(same address and substantially the same issue, even if worded differently).
Respond with JSON: {"duplicate": bool}`

// SemanticDuplicate asks the LLM whether the draft repeats a recent ticket.
// Fails safe to false: a failed check never blocks a legitimate request.
func (c *Classifier) SemanticDuplicate(ctx context.Context, draft conversation.TicketDraft, recent []conversation.DedupRecord) bool {
	if len(recent) == 0 {
		return false
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "New ticket: address=%q issue=%q\nRecent tickets:\n", draft.Address, draft.Issue)
	for _, r := range recent {
		fmt.Fprintf(&sb, "- address=%q issue=%q\n", r.Address, r.Issue)
	}

	out, err := c.call(ctx, semanticDupPrompt, sb.String())
	if err != nil {
		slog.Warn("semantic duplicate check failed, assuming not duplicate", "error", err)
		return false
	}

	var v struct {
		Duplicate bool `json:"duplicate"`
	}
	if err := decodeJSON(out, &v); err != nil {
		return false
	}
	return v.Duplicate
}

const insistPrompt = `A resident was told their request looks like one already in progress.
From the conversation, decide whether the resident explicitly insists on opening
a NEW, SEPARATE request anyway (e.g. "this is a different problem", "make a new one").
Respond with JSON: {"insists": bool}`

// InsistsOnNew reports whether the user explicitly wants a separate ticket
// despite a detected duplicate. Fails safe to false.
func (c *Classifier) InsistsOnNew(ctx context.Context, history []conversation.Turn) bool {
	out, err := c.call(ctx, insistPrompt, historyText(history))
	if err != nil {
		return false
	}

	var v struct {
		Insists bool `json:"insists"`
	}
	if err := decodeJSON(out, &v); err != nil {
		return false
	}
	return v.Insists
}

// Reply generates the conversational response for turns that need no ticket.
// This is the only free-form call; on failure the caller sends fallback.
func (c *Classifier) Reply(ctx context.Context, systemPrompt string, history []conversation.Turn) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	for _, t := range history {
		role := string(t.Role)
		if t.Operator {
			role = string(conversation.RoleAssistant)
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Content})
	}

	resp, err := c.provider.Chat(cctx, llm.ChatRequest{
		Messages:    messages,
		Model:       c.model,
		MaxTokens:   400,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	if resp.Content == "" {
		return "", fmt.Errorf("empty response from %s", c.provider.Name())
	}
	return resp.Content, nil
}

// call runs one single-shot classification request.
func (c *Classifier) call(ctx context.Context, systemPrompt, input string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := c.provider.Chat(cctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: input},
		},
		Model:       c.model,
		MaxTokens:   300,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// historyText renders turns for a classification prompt. Operator-authored
// turns render as assistant continuity.
func historyText(history []conversation.Turn) string {
	var sb strings.Builder
	for _, t := range history {
		role := t.Role
		if t.Operator {
			role = conversation.RoleAssistant
		}
		fmt.Fprintf(&sb, "%s: %s\n", role, t.Content)
	}
	return sb.String()
}

// decodeJSON parses model output that should be a JSON object, tolerating
// surrounding prose and markdown code fences.
func decodeJSON(out string, v interface{}) error {
	out = strings.TrimSpace(out)
	if i := strings.Index(out, "{"); i >= 0 {
		if j := strings.LastIndex(out, "}"); j > i {
			out = out[i : j+1]
		}
	}
	return json.Unmarshal([]byte(out), v)
}

// hasFullName requires at least a given and a family name.
func hasFullName(name string) bool {
	return len(strings.Fields(strings.TrimSpace(name))) >= 2
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
