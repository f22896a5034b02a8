package adapter_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"

	"github.com/m-mizutani/burrow/pkg/adapter"
)

type mockGemini struct {
	generateFunc func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.generateFunc(ctx, contents, config)
}

func (m *mockGemini) CreateChat(_ context.Context, _ *genai.GenerateContentConfig, _ []*genai.Content) (*genai.Chat, error) {
	return nil, nil
}

func (m *mockGemini) Embedding(_ context.Context, _ string) ([]float32, error) {
	return nil, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []*genai.Part{{Text: text}},
				},
			},
		},
	}
}

func TestExtractCapabilities(t *testing.T) {
	mock := &mockGemini{
		generateFunc: func(_ context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			gt.Equal(t, config.ResponseMIMEType, "application/json")
			gt.NotNil(t, config.ResponseSchema)
			gt.A(t, contents).Length(1)
			gt.S(t, contents[0].Parts[0].Text).Contains("check AAPL price")

			return textResponse(`{"capabilities": ["stock_price_lookup", "web_search"]}`), nil
		},
	}

	x := adapter.NewCapabilityExtractor(mock)
	caps, err := x.ExtractCapabilities(context.Background(), "check AAPL price")
	gt.NoError(t, err)
	gt.A(t, caps).Length(2)
	gt.Equal(t, caps[0], "stock_price_lookup")
}

func TestExtractCapabilitiesModelFailure(t *testing.T) {
	mock := &mockGemini{
		generateFunc: func(_ context.Context, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return nil, goerr.New("model unavailable")
		},
	}

	x := adapter.NewCapabilityExtractor(mock)
	_, err := x.ExtractCapabilities(context.Background(), "anything")
	gt.Error(t, err)
}

func TestExtractCapabilitiesMalformedJSON(t *testing.T) {
	mock := &mockGemini{
		generateFunc: func(_ context.Context, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return textResponse("not json at all"), nil
		},
	}

	x := adapter.NewCapabilityExtractor(mock)
	_, err := x.ExtractCapabilities(context.Background(), "anything")
	gt.Error(t, err)
}

func TestExtractCapabilitiesEmptyResponse(t *testing.T) {
	mock := &mockGemini{
		generateFunc: func(_ context.Context, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{}, nil
		},
	}

	x := adapter.NewCapabilityExtractor(mock)
	_, err := x.ExtractCapabilities(context.Background(), "anything")
	gt.Error(t, err)
}
