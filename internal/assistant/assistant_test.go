package assistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"configforge/pkg/domain"
)

type fakeCompletions struct {
	t        *testing.T
	status   int
	content  string
	noChoice bool
	lastBody openai.ChatCompletionRequest
	lastAuth string
}

func (f *fakeCompletions) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(f.t, "/v1/chat/completions", r.URL.Path)
		f.lastAuth = r.Header.Get("Authorization")
		body, err := io.ReadAll(r.Body)
		require.NoError(f.t, err)
		require.NoError(f.t, json.Unmarshal(body, &f.lastBody))
		if f.status != 0 && f.status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
			return
		}
		resp := openai.ChatCompletionResponse{ID: "cmpl-1", Model: "deepseek-chat"}
		if !f.noChoice {
			resp.Choices = []openai.ChatCompletionChoice{{
				Index:        0,
				FinishReason: openai.FinishReasonStop,
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.content},
			}}
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(f.t, json.NewEncoder(w).Encode(resp))
	})
}

func newTestClient(t *testing.T, fake *fakeCompletions) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	client, err := NewOpenAIClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "deepseek-chat", HTTPClient: srv.Client()}, nil)
	require.NoError(t, err)
	return client
}

func sampleContext() Context {
	return NewContext(
		domain.Hierarchy{IndustryID: "datacenter"},
		[]domain.Parameter{{ID: "air_flow_rate", Name: "Air Flow Rate", Level: domain.LevelSolution, DefaultValue: domain.Float(1200)}},
		nil,
		[]domain.Patch{domain.UpdatePatch{ID: "air_flow_rate", Field: domain.FieldValue, NewValue: 1300.0}},
	)
}

func TestChatParsesJSONReply(t *testing.T) {
	fake := &fakeCompletions{t: t, content: `{"answer":"Raise the air flow.","patch":[{"action":"update","id":"air_flow_rate","field":"value","newValue":1500}],"descriptionDraft":"Raise air flow"}`}
	client := newTestClient(t, fake)

	resp, err := client.Chat(context.Background(), Request{Context: sampleContext(), Message: "optimize airflow"})
	require.NoError(t, err)
	assert.Equal(t, "Raise the air flow.", resp.Answer)
	assert.Equal(t, "Raise air flow", resp.DescriptionDraft)
	require.Len(t, resp.Patch, 1)
	assert.Equal(t, "air_flow_rate", resp.Patch[0].ID)
	assert.Equal(t, float64(1500), resp.Patch[0].NewValue)

	assert.Equal(t, "Bearer sk-test", fake.lastAuth)
	require.Len(t, fake.lastBody.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, fake.lastBody.Messages[0].Role)
	assert.Equal(t, SystemPrompt, fake.lastBody.Messages[0].Content)
	user := fake.lastBody.Messages[1].Content
	assert.Contains(t, user, `"industryId":"datacenter"`)
	assert.Contains(t, user, `"patches":[{"action":"update","id":"air_flow_rate","field":"value","newValue":1300}]`)
	assert.True(t, strings.HasSuffix(user, "optimize airflow"))
}

func TestChatEmptyContextStillAnswers(t *testing.T) {
	fake := &fakeCompletions{t: t, content: `{"answer":"Pick an industry to get started."}`}
	client := newTestClient(t, fake)

	resp, err := client.Chat(context.Background(), Request{Context: NewContext(domain.Hierarchy{}, nil, nil, nil), Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "Pick an industry to get started.", resp.Answer)
	assert.Empty(t, resp.Patch)
	assert.Contains(t, fake.lastBody.Messages[1].Content, `{"hierarchy":{},"parameters":[],"calculations":[],"patches":[]}`)
}

func TestChatProseReplyDegradesToAnswer(t *testing.T) {
	fake := &fakeCompletions{t: t, content: "Your configuration looks fine."}
	client := newTestClient(t, fake)

	resp, err := client.Chat(context.Background(), Request{Context: sampleContext(), Message: "ok?"})
	require.NoError(t, err)
	assert.Equal(t, "Your configuration looks fine.", resp.Answer)
	assert.Nil(t, resp.Patch)
}

func TestChatServerErrorIsUnavailable(t *testing.T) {
	fake := &fakeCompletions{t: t, status: http.StatusInternalServerError}
	client := newTestClient(t, fake)

	_, err := client.Chat(context.Background(), Request{Context: sampleContext(), Message: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAssistantUnavailable)
}

func TestChatNoChoices(t *testing.T) {
	fake := &fakeCompletions{t: t, noChoice: true}
	client := newTestClient(t, fake)

	_, err := client.Chat(context.Background(), Request{Context: sampleContext(), Message: "hi"})
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(Config{}, nil)
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestParseResponseShapes(t *testing.T) {
	cases := []struct {
		name        string
		content     string
		wantAnswer  string
		wantPatches int
	}{
		{"bare json", `{"answer":"a","patch":[]}`, "a", 0},
		{"fenced json", "Here you go:\n```json\n{\"answer\":\"b\",\"patch\":[{\"action\":\"update\",\"id\":\"x\",\"field\":\"value\",\"newValue\":1}]}\n```", "b", 1},
		{"json in prose", `Sure! {"answer":"c","patch":{"action":"create","entity":"calculation","payload":{"id":"k","name":"K","formula":"1","units":"u"}}} Thanks.`, "c", 1},
		{"prose with braces", "Use {braces} carefully", "Use {braces} carefully", 0},
		{"malformed patch", `{"answer":"d","patch":"nope"}`, `{"answer":"d","patch":"nope"}`, 0},
		{"empty", "   ", "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := ParseResponse(tc.content)
			assert.Equal(t, tc.wantAnswer, resp.Answer)
			assert.Len(t, resp.Patch, tc.wantPatches)
		})
	}
}

func TestStaticClientCyclesScript(t *testing.T) {
	client := NewStaticClient()
	ctx := context.Background()
	demo := DemoResponses()
	for i := 0; i < len(demo)+1; i++ {
		resp, err := client.Chat(ctx, Request{Message: "next"})
		require.NoError(t, err)
		assert.Equal(t, demo[i%len(demo)].Answer, resp.Answer)
	}
	assert.Len(t, client.Requests(), len(demo)+1)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := client.Chat(cancelled, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}
