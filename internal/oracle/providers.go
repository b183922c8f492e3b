package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// OllamaProvider scores batches through a local Ollama instance.
type OllamaProvider struct {
	Model     string
	BaseURL   string
	Interests string
	client    *http.Client
}

// NewOllamaProvider creates a new Ollama scoring provider.
func NewOllamaProvider(model, baseURL, interests string) *OllamaProvider {
	return &OllamaProvider{
		Model:     model,
		BaseURL:   baseURL,
		Interests: interests,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	modelBase := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	log.Printf("Ollama model %q not found", o.Model)
	return false
}

// ScoreBatch sends one scoring prompt to Ollama and parses the score list.
func (o *OllamaProvider) ScoreBatch(ctx context.Context, candidates []Candidate) ([]int, error) {
	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": buildPrompt(o.Interests, candidates)},
		},
		"stream": false,
		"options": map[string]any{
			"num_predict": 200,
			"temperature": 0.0,
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return parseScores(result.Message.Content, len(candidates))
}

// OpenAIProvider scores batches through the OpenAI API.
type OpenAIProvider struct {
	Model     string
	APIKey    string
	Interests string
	client    *http.Client
}

// NewOpenAIProvider creates a new OpenAI scoring provider.
func NewOpenAIProvider(model, apiKeyEnv, interests string) *OpenAIProvider {
	return &OpenAIProvider{
		Model:     model,
		APIKey:    os.Getenv(apiKeyEnv),
		Interests: interests,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != ""
}

// ScoreBatch sends one scoring prompt to OpenAI and parses the score list.
func (o *OpenAIProvider) ScoreBatch(ctx context.Context, candidates []Candidate) ([]int, error) {
	if o.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}

	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": buildPrompt(o.Interests, candidates)},
		},
		"max_tokens":  200,
		"temperature": 0.0,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("OpenAI API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no choices in OpenAI response")
	}

	return parseScores(result.Choices[0].Message.Content, len(candidates))
}

// CreateProvider creates a scoring provider based on configuration,
// preferring Ollama with an OpenAI fallback.
func CreateProvider(provider, model, ollamaURL, openaiModel, apiKeyEnv, interests string) Provider {
	if strings.ToLower(provider) == "ollama" {
		p := NewOllamaProvider(model, ollamaURL, interests)
		if p.IsConfigured() {
			log.Printf("Using Ollama scoring with model: %s", model)
			return p
		}
		log.Println("Ollama not available, trying OpenAI fallback...")
	}

	p := NewOpenAIProvider(openaiModel, apiKeyEnv, interests)
	if p.IsConfigured() {
		log.Printf("Using OpenAI scoring with model: %s", openaiModel)
		return p
	}

	log.Println("No scoring provider available. Check Ollama is running or set the API key.")
	return nil
}
