package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	openairt "github.com/openai/openai-go/v3/realtime"
)

// ClientSecret is an ephemeral credential minted by the provider's
// session-creation endpoint. It authenticates the realtime connection
// without exposing the long-lived API key.
type ClientSecret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds
}

// Expired reports whether the secret is past (or within a minute of) its
// expiry.
func (s *ClientSecret) Expired(now time.Time) bool {
	if s == nil || s.Value == "" {
		return true
	}
	return now.Add(time.Minute).Unix() >= s.ExpiresAt
}

// TokenSource mints ephemeral client secrets using the official SDK.
type TokenSource struct {
	client *openai.Client
}

// NewTokenSource creates a token source backed by the long-lived API key.
func NewTokenSource(apiKey string) *TokenSource {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &TokenSource{client: &client}
}

// Mint creates a fresh ephemeral client secret for a realtime session with
// the given model.
func (ts *TokenSource) Mint(ctx context.Context, model string) (*ClientSecret, error) {
	params := openairt.ClientSecretNewParams{
		Session: openairt.ClientSecretNewParamsSessionUnion{
			OfRealtime: &openairt.RealtimeSessionCreateRequestParam{
				Model: openairt.RealtimeSessionCreateRequestModel(model),
			},
		},
	}

	resp, err := ts.client.Realtime.ClientSecrets.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("realtime: create client secret: %w", err)
	}

	return &ClientSecret{
		Value:     resp.Value,
		ExpiresAt: resp.ExpiresAt,
	}, nil
}
