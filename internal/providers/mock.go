package providers

import "context"

// MockProvider replays a scripted queue of responses/errors, grounded on
// original_source's tests/common/mock_provider.rs scripted-queue pattern.
// It is a test double, not part of the production provider set.
type MockProvider struct {
	NameValue string
	Model     string
	Responses []MockResponse
	call      int
}

// MockResponse is one scripted Chat/ChatStream outcome.
type MockResponse struct {
	Response *ChatResponse
	Err      error
}

func (m *MockProvider) Name() string         { return m.NameValue }
func (m *MockProvider) DefaultModel() string { return m.Model }

func (m *MockProvider) next() MockResponse {
	if m.call >= len(m.Responses) {
		panic("MockProvider: call queue exhausted")
	}
	r := m.Responses[m.call]
	m.call++
	return r
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	r := m.next()
	return r.Response, r.Err
}

func (m *MockProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	r := m.next()
	if r.Err != nil {
		return nil, r.Err
	}
	onChunk(StreamChunk{Content: r.Response.Content, Done: true})
	return r.Response, nil
}

// CallCount reports how many Chat/ChatStream calls have been consumed.
func (m *MockProvider) CallCount() int { return m.call }
