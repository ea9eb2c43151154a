package scoring_client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/hoot/go/clients"
	"github.com/mcdev12/hoot/go/internal/game/answers"
)

// ScoringClient calls the external scoring collaborator, the sole authority
// on answer correctness and points. Implements answers.Scorer.
type ScoringClient struct {
	*clients.BaseClient
}

// NewScoringClient creates a scoring client for the given base URL.
func NewScoringClient(baseURL, apiKey string) *ScoringClient {
	base := clients.NewBaseClient(baseURL)
	if apiKey != "" {
		base.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &ScoringClient{BaseClient: base}
}

var _ answers.Scorer = (*ScoringClient)(nil)

// SubmitAnswer scores one answer submission.
func (c *ScoringClient) SubmitAnswer(ctx context.Context, req answers.SubmitAnswerRequest) (*answers.Result, error) {
	body, err := c.PostJSON(ctx, EndpointSubmitAnswer, req)
	if err != nil {
		return nil, fmt.Errorf("submit answer: %w", err)
	}

	var result answers.Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal scoring response: %w", err)
	}
	return &result, nil
}
