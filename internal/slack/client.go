// Package slack is the chat-platform client: posting and replacing
// messages, moving files in and out, and reading user metadata such as the
// timezone offset the expense parser needs.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls the Slack Web API with a bot token.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for the given bot token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		token:      token,
		baseURL:    "https://slack.com/api",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiResponse is the envelope every Web API method answers with.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	User  *struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		RealName string `json:"real_name"`
		TZOffset int    `json:"tz_offset"`
	} `json:"user,omitempty"`
	File *struct {
		Name               string `json:"name"`
		URLPrivate         string `json:"url_private"`
		URLPrivateDownload string `json:"url_private_download"`
	} `json:"file,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, params url.Values) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/"+method, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("%s failed: %s", method, parsed.Error)
	}
	return &parsed, nil
}

// PostMessage sends a plain message to a channel or user.
func (c *Client) PostMessage(ctx context.Context, channelID, text string) error {
	_, err := c.call(ctx, "chat.postMessage", url.Values{
		"channel": {channelID},
		"text":    {text},
	})
	return err
}

// PostBlocks sends a Block Kit message with a plain-text fallback.
func (c *Client) PostBlocks(ctx context.Context, channelID, fallback string, blocks []Block) error {
	encoded, err := json.Marshal(blocks)
	if err != nil {
		return fmt.Errorf("marshaling blocks: %w", err)
	}
	_, err = c.call(ctx, "chat.postMessage", url.Values{
		"channel": {channelID},
		"text":    {fallback},
		"blocks":  {string(encoded)},
	})
	return err
}

// PostEphemeral sends a message only the given user sees.
func (c *Client) PostEphemeral(ctx context.Context, channelID, userID, text string) error {
	_, err := c.call(ctx, "chat.postEphemeral", url.Values{
		"channel": {channelID},
		"user":    {userID},
		"text":    {text},
	})
	return err
}

// ReplaceOriginal rewrites the message a button click came from, using the
// response_url Slack hands the interaction payload.
func (c *Client) ReplaceOriginal(ctx context.Context, responseURL, text string) error {
	body, err := json.Marshal(map[string]any{
		"replace_original": true,
		"text":             text,
	})
	if err != nil {
		return fmt.Errorf("marshaling response: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling response url: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("response url returned status %d", resp.StatusCode)
	}
	return nil
}

// UploadFile posts a file to a channel with an initial comment and returns
// the private URL Slack assigned to it.
func (c *Client) UploadFile(ctx context.Context, channelID, filename string, data []byte, comment string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("writing form file: %w", err)
	}
	for key, value := range map[string]string{
		"channels":        channelID,
		"initial_comment": comment,
		"filename":        filename,
	} {
		if err := w.WriteField(key, value); err != nil {
			return "", fmt.Errorf("writing form field %s: %w", key, err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files.upload", &buf)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading file: %w", err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	if !parsed.OK {
		return "", fmt.Errorf("files.upload failed: %s", parsed.Error)
	}
	if parsed.File == nil {
		return "", fmt.Errorf("files.upload returned no file")
	}
	return parsed.File.URLPrivate, nil
}

// DownloadFile fetches a shared file's content by its file id.
func (c *Client) DownloadFile(ctx context.Context, fileID string) (string, []byte, error) {
	info, err := c.call(ctx, "files.info", url.Values{"file": {fileID}})
	if err != nil {
		return "", nil, err
	}
	if info.File == nil || info.File.URLPrivateDownload == "" {
		return "", nil, fmt.Errorf("file %s has no download url", fileID)
	}

	slog.Debug("downloading file", "file_id", fileID, "name", info.File.Name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.File.URLPrivateDownload, nil)
	if err != nil {
		return "", nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("file download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("reading file: %w", err)
	}
	return info.File.Name, data, nil
}

// User is the metadata the bot needs about a chat user.
type User struct {
	ID              string
	Name            string
	TZOffsetMinutes int
}

// UserInfo fetches user metadata. Slack reports the timezone offset in
// seconds; it is converted to minutes here so callers never see the raw
// unit.
func (c *Client) UserInfo(ctx context.Context, userID string) (*User, error) {
	resp, err := c.call(ctx, "users.info", url.Values{"user": {userID}})
	if err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, fmt.Errorf("users.info returned no user for %s", userID)
	}
	name := resp.User.RealName
	if name == "" {
		name = resp.User.Name
	}
	return &User{
		ID:              resp.User.ID,
		Name:            name,
		TZOffsetMinutes: resp.User.TZOffset / 60,
	}, nil
}

// TZOffsetMinutes returns the user's UTC offset in minutes.
func (c *Client) TZOffsetMinutes(ctx context.Context, userID string) (int, error) {
	user, err := c.UserInfo(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.TZOffsetMinutes, nil
}

// DisplayName returns the user's display name.
func (c *Client) DisplayName(ctx context.Context, userID string) (string, error) {
	user, err := c.UserInfo(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Name, nil
}
