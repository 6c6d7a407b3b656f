package assistant

import (
	"context"
	"fmt"
	"sync"

	"configforge/pkg/domain"
)

// StaticClient replays scripted responses in order, wrapping around. It
// serves offline demos and tests.
type StaticClient struct {
	mu        sync.Mutex
	responses []Response
	next      int
	requests  []Request
}

var _ Client = (*StaticClient)(nil)

// NewStaticClient scripts the given responses; with none it replays
// DemoResponses.
func NewStaticClient(responses ...Response) *StaticClient {
	if len(responses) == 0 {
		responses = DemoResponses()
	}
	return &StaticClient{responses: responses}
}

// Chat returns the next scripted response.
func (c *StaticClient) Chat(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	resp := c.responses[c.next%len(c.responses)]
	c.next++
	out := Response{Answer: resp.Answer, DescriptionDraft: resp.DescriptionDraft}
	if resp.Patch != nil {
		out.Patch = append([]domain.PatchEnvelope(nil), resp.Patch...)
	}
	return out, nil
}

// Requests returns the requests seen so far.
func (c *StaticClient) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.requests...)
}

// DemoResponses is the offline script: propose a calculation, propose a
// parameter change, then a plain answer.
func DemoResponses() []Response {
	return []Response{
		{
			Answer: "I can help you optimize your cooling system configuration. Based on the current parameters, you might want to calculate the overall cooling efficiency.",
			Patch: []domain.PatchEnvelope{{
				Action: string(domain.PatchActionCreate),
				Entity: string(domain.EntityCalculation),
				Payload: &domain.Calculation{
					ID:          "cooling_efficiency_ratio",
					Name:        "Cooling Efficiency Ratio",
					Formula:     "cooling_load / power_consumption",
					Units:       "kW/kW",
					Description: "Overall system cooling efficiency ratio",
				},
			}},
			DescriptionDraft: "Added cooling efficiency calculation",
		},
		{
			Answer: "The air flow rate could be optimized based on the cooling load.",
			Patch: []domain.PatchEnvelope{{
				Action:   string(domain.PatchActionUpdate),
				ID:       "air_flow_rate",
				Field:    string(domain.FieldValue),
				NewValue: float64(1500),
			}},
			DescriptionDraft: "Optimized air flow rate",
		},
		{
			Answer: "Your current configuration looks good. The temperature setpoints are within recommended ranges for data center cooling.",
		},
	}
}

// MissingCredentialClient stands in for a remote backend that has no API
// key. Every Chat fails with ErrMissingCredential.
type MissingCredentialClient struct {
	// Hint names where the key is read from.
	Hint string
}

var _ Client = MissingCredentialClient{}

// Chat implements Client.
func (c MissingCredentialClient) Chat(context.Context, Request) (Response, error) {
	if c.Hint == "" {
		return Response{}, ErrMissingCredential
	}
	return Response{}, fmt.Errorf("%w: set %s", ErrMissingCredential, c.Hint)
}
