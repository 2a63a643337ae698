package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"racereg/pkg/model"
)

type Metadata struct {
	TotalCount int64 `json:"total_count"`
	Limit      int   `json:"limit"`
	Offset     int64 `json:"offset"`
}

// ParticipantClient talks to the participants HTTP API.
type ParticipantClient struct {
	httpClient *HttpClient
}

func NewParticipantClient(baseURL string) *ParticipantClient {
	return &ParticipantClient{
		httpClient: NewHttpClient(baseURL),
	}
}

func (c *ParticipantClient) WaitForHealthy(ctx context.Context) error {
	return c.httpClient.WaitForHealthy(ctx)
}

func (c *ParticipantClient) Register(ctx context.Context, body any) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/participants", body)
}

// RegisterIdempotent sends an Idempotency-Key so a retried request replays the first response.
func (c *ParticipantClient) RegisterIdempotent(ctx context.Context, body any, key string) (*Response, error) {
	return c.httpClient.POSTWithHeaders(ctx, "/api/v1/participants", body, map[string]string{"Idempotency-Key": key})
}

func (c *ParticipantClient) GetAll(ctx context.Context, limit int, offset int64) (*Response, error) {
	path := fmt.Sprintf("/api/v1/participants?limit=%d&offset=%d", limit, offset)
	return c.httpClient.GET(ctx, path)
}

func (c *ParticipantClient) GetByID(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/participants/id/"+url.PathEscape(id))
}

func (c *ParticipantClient) Delete(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.DELETE(ctx, "/api/v1/participants/id/"+url.PathEscape(id))
}

func (c *ParticipantClient) Confirm(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/participants/id/"+url.PathEscape(id)+"/confirm", nil)
}

func (c *ParticipantClient) PickupToken(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/participants/id/"+url.PathEscape(id)+"/pickup-token")
}

func (c *ParticipantClient) VerifyPickup(ctx context.Context, token string) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/pickup/verify", model.PickupVerification{Token: token})
}

func (c *ParticipantClient) ValidateBib(ctx context.Context, category, value string) (*Response, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("value", value)
	return c.httpClient.GET(ctx, "/api/v1/bibs/validate?"+q.Encode())
}

func (c *ParticipantClient) DecodeParticipant(resp *Response) (*model.Participant, error) {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return nil, fmt.Errorf("could not decode participant wrapper:\n%+v\n%s", resp.ToString(), err)
	}

	var participant model.Participant
	if err := json.Unmarshal(wrapper.Data, &participant); err != nil {
		return nil, fmt.Errorf("could not decode participant json:\n%+v\n%s", resp.ToString(), err)
	}
	return &participant, nil
}

func (c *ParticipantClient) DecodeParticipants(resp *Response) ([]*model.Participant, *Metadata, error) {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
		Metadata
	}
	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return nil, nil, fmt.Errorf("could not decode paginated resp:\n%+v\n%s", resp.ToString(), err)
	}

	var participants []*model.Participant
	if err := json.Unmarshal(wrapper.Data, &participants); err != nil {
		return nil, nil, fmt.Errorf("could not decode participant list:\n%+v\n%s", resp.ToString(), err)
	}
	return participants, &wrapper.Metadata, nil
}
