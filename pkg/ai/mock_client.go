package ai

type mockClient struct{}

// NewMock returns a Client for running without LLM credentials. It always
// declines to classify, which sends the pipeline down the default-CTI path.
func NewMock() Client { return &mockClient{} }

func (m *mockClient) Complete(system, user string, temperature float64, maxTokens int) (string, error) {
	return `{"selected_id": null, "confidence": 0.0, "justification": "mock client: no classification"}`, nil
}
