package openai

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens the way the chat models do.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter loads the cl100k_base encoding.
func NewTokenCounter() (*TokenCounter, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}
	return &TokenCounter{encoding: encoding}, nil
}

// CountTokens falls back to EstimateTokens when no encoding is loaded.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.encoding == nil {
		return EstimateTokens(text)
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// EstimateTokens is a character based estimate, about three characters per token.
func EstimateTokens(text string) int {
	return len([]rune(text)) / 3
}

// Estimator counts with EstimateTokens only.
type Estimator struct{}

func (Estimator) CountTokens(text string) int {
	return EstimateTokens(text)
}
