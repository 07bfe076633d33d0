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

// TwitterClient reads and publishes posts through the X (Twitter) v2 API. Reads use the app bearer token,
// publishing uses the operator's user-context token.
type TwitterClient struct {
	BaseURL     string
	BearerToken string
	UserToken   string
	Client      *http.Client
	logger      logging.Logger
}

func NewTwitterClient(baseURL, bearerToken, userToken string, timeout time.Duration, logger logging.Logger) *TwitterClient {
	return &TwitterClient{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		BearerToken: bearerToken,
		UserToken:   userToken,
		Client: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "twitter"),
	}
}

type tweetLookupResponse struct {
	Data *struct {
		ID        string    `json:"id"`
		Text      string    `json:"text"`
		AuthorID  string    `json:"author_id"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Name     string `json:"name"`
		} `json:"users"`
	} `json:"includes"`
	Errors []struct {
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (c *TwitterClient) FetchPost(ctx context.Context, postID string) (*models.SocialPost, error) {
	query := url.Values{}
	query.Set("expansions", "author_id")
	query.Set("tweet.fields", "created_at,author_id")
	query.Set("user.fields", "username,name")
	endpoint := fmt.Sprintf("%s/2/tweets/%s?%s", c.BaseURL, url.PathEscape(postID), query.Encode())

	var out tweetLookupResponse
	if err := c.do(ctx, http.MethodGet, endpoint, c.BearerToken, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch post %s: %w", postID, err)
	}
	if out.Data == nil {
		detail := "not found"
		if len(out.Errors) > 0 {
			detail = out.Errors[0].Detail
		}
		return nil, fmt.Errorf("fetch post %s: %s", postID, detail)
	}

	post := &models.SocialPost{
		ID:        out.Data.ID,
		Text:      out.Data.Text,
		AuthorID:  out.Data.AuthorID,
		CreatedAt: out.Data.CreatedAt.UTC(),
	}
	for _, u := range out.Includes.Users {
		if u.ID == post.AuthorID {
			post.AuthorUsername = u.Username
			post.AuthorName = u.Name
			break
		}
	}
	return post, nil
}

// PublishPost posts text as the operator account and returns the new post's id.
func (c *TwitterClient) PublishPost(ctx context.Context, text string) (string, error) {
	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, c.BaseURL+"/2/tweets", c.UserToken, map[string]string{"text": text}, &out); err != nil {
		return "", fmt.Errorf("publish post: %w", err)
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("publish post: response carried no id")
	}
	return out.Data.ID, nil
}

func (c *TwitterClient) do(ctx context.Context, method, endpoint, token string, payload any, out any) error {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("twitter request failed", "method", method, "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("twitter returned %d", resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}
