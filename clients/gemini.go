package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bounty-quest/logging"
	"bounty-quest/models"
)

const taskPrompt = `Generate a creative social media task related to one of these categories: blockchain, memes, or nfts.
The task should be engaging, clear, and encourage creative responses.
Return ONLY a JSON object in exactly this format:
{
  "title": "task title",
  "description": "clear task description",
  "category": "one of: blockchain, memes, nfts",
  "requirements": ["list of specific requirements"],
  "evaluationCriteria": ["specific criteria for judging"],
  "rewards": {"tokenAmount": "any number from 1 to 1000", "nftReward": "name of the NFT award"}
}
Make the task fun while staying relevant to crypto and web3 culture.`

const scorePrompt = `You are judging an entry for the task below. Score the post from 0 to 100 on each axis.

TASK: %s
DESCRIPTION: %s
REQUIREMENTS: %s
EVALUATION CRITERIA: %s

POST:
%s

Return ONLY a JSON object in exactly this format:
{"relevanceScore": 0, "engagementScore": 0, "contentQuality": 0, "overallScore": 0, "feedback": "one or two sentences"}`

// GeminiClient generates tasks and scores posts through the Gemini generateContent API.
type GeminiClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
	logger  logging.Logger
}

func NewGeminiClient(baseURL, apiKey, model string, timeout time.Duration, logger logging.Logger) *GeminiClient {
	return &GeminiClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		Client: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "gemini"),
	}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (c *GeminiClient) GenerateTask(ctx context.Context) (*models.GeneratedTask, error) {
	var out models.GeneratedTask
	if err := c.generateJSON(ctx, taskPrompt, 0.9, &out); err != nil {
		return nil, fmt.Errorf("generate task: %w", err)
	}
	out.Category = models.Category(strings.ToLower(strings.TrimSpace(string(out.Category))))
	return &out, nil
}

func (c *GeminiClient) ScorePost(ctx context.Context, task *models.Task, post *models.SocialPost) (*models.Scores, error) {
	prompt := fmt.Sprintf(scorePrompt,
		task.Title,
		task.Description,
		strings.Join(task.Requirements, "; "),
		strings.Join(task.EvaluationCriteria, "; "),
		post.Text,
	)
	var out models.Scores
	if err := c.generateJSON(ctx, prompt, 0.2, &out); err != nil {
		return nil, fmt.Errorf("score post %s: %w", post.ID, err)
	}
	return &out, nil
}

func (c *GeminiClient) generateJSON(ctx context.Context, prompt string, temperature float64, out any) error {
	// The API key goes in a header, never in the URL.
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.BaseURL, url.PathEscape(c.Model))

	jsonData, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json", Temperature: temperature},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("generateContent failed", "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("gemini returned %d", resp.StatusCode)
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return fmt.Errorf("gemini returned no candidates")
	}
	text := extractJSON(parsed.Candidates[0].Content.Parts[0].Text)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

// extractJSON returns the outermost JSON object in text, dropping markdown fences or chatter around it.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return strings.TrimSpace(text)
	}
	return text[start : end+1]
}
