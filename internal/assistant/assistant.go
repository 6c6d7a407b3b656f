// Package assistant talks to the configuration copilot: it sends the live
// configuration plus a user message and returns an answer with optional
// proposed patches. Responses are never applied here; callers validate them
// first.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"configforge/pkg/domain"
)

// SystemPrompt is sent as the system turn of every chat completion.
const SystemPrompt = `You are a configuration copilot for industrial systems.
Return JSON with keys:
- answer: conversational reply
- patch: array of Patch objects (see schema).
- descriptionDraft: <25 words commit message for patches.
Never propose changes outside the current hierarchy.
Use id references exactly as provided.

Patch schema:
- {"action":"update","id":"<parameter or calculation id>","field":"value"|"formula"|"description","newValue":<number or string>}
- {"action":"create","entity":"calculation","payload":{"id":"<snake_case id>","name":"...","formula":"...","units":"...","description":"..."}}`

// Errors surfaced by assistant clients. They are distinct from a normal
// reply so shells can render them differently.
var (
	ErrMissingCredential    = errors.New("assistant: missing API credential")
	ErrAssistantUnavailable = errors.New("assistant: service unavailable")
	ErrNoChoices            = errors.New("assistant: response contained no choices")
)

// Context is the configuration snapshot sent with every request.
type Context struct {
	Hierarchy    domain.Hierarchy       `json:"hierarchy"`
	Parameters   []domain.Parameter     `json:"parameters"`
	Calculations []domain.Calculation   `json:"calculations"`
	Patches      []domain.PatchEnvelope `json:"patches"`
}

// NewContext builds a request context; nil lists are sent as empty arrays.
func NewContext(h domain.Hierarchy, params []domain.Parameter, calcs []domain.Calculation, patches []domain.Patch) Context {
	c := Context{
		Hierarchy:    h,
		Parameters:   domain.CloneParameters(params),
		Calculations: domain.CloneCalculations(calcs),
		Patches:      domain.Envelopes(patches),
	}
	if c.Parameters == nil {
		c.Parameters = []domain.Parameter{}
	}
	if c.Calculations == nil {
		c.Calculations = []domain.Calculation{}
	}
	return c
}

// Request is one user turn.
type Request struct {
	Context Context
	Message string
}

// Response is the parsed assistant reply.
type Response struct {
	Answer           string                 `json:"answer"`
	Patch            []domain.PatchEnvelope `json:"patch,omitempty"`
	DescriptionDraft string                 `json:"descriptionDraft,omitempty"`
}

// Client sends a request to an assistant backend.
type Client interface {
	Chat(ctx context.Context, req Request) (Response, error)
}

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

type wireResponse struct {
	Answer           string          `json:"answer"`
	Patch            json.RawMessage `json:"patch"`
	DescriptionDraft string          `json:"descriptionDraft"`
}

// ParseResponse decodes assistant content. JSON is accepted bare, inside a
// fenced code block or embedded in prose; "patch" may be one object or an
// array. Anything else becomes a plain answer.
func ParseResponse(content string) Response {
	raw := strings.TrimSpace(content)
	for _, candidate := range jsonCandidates(raw) {
		var wire wireResponse
		if err := json.Unmarshal([]byte(candidate), &wire); err != nil {
			continue
		}
		patches, ok := decodePatches(wire.Patch)
		if !ok {
			continue
		}
		if wire.Answer == "" && len(patches) == 0 {
			continue
		}
		return Response{Answer: wire.Answer, Patch: patches, DescriptionDraft: wire.DescriptionDraft}
	}
	return Response{Answer: raw}
}

func jsonCandidates(raw string) []string {
	var out []string
	if strings.HasPrefix(raw, "{") {
		out = append(out, raw)
	}
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		out = append(out, strings.TrimSpace(m[1]))
	}
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		out = append(out, raw[start:end+1])
	}
	return out
}

func decodePatches(raw json.RawMessage) ([]domain.PatchEnvelope, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, true
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []domain.PatchEnvelope
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, false
		}
		return list, true
	}
	var single domain.PatchEnvelope
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, false
	}
	return []domain.PatchEnvelope{single}, true
}
