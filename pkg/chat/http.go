package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haleycrew/carpool-backend/pkg/config"
	pkgerrors "github.com/haleycrew/carpool-backend/pkg/errors"
	"github.com/haleycrew/carpool-backend/pkg/logger"
)

const defaultTimeout = 10 * time.Second

var (
	errBaseURLRequired = errors.New("chat base url is required")
	errTokenRequired   = errors.New("chat bot token is required")
)

// httpClient talks to the chat platform's web API with a bot token.
type httpClient struct {
	http    *http.Client
	baseURL string
	token   string
	logg    *logger.Logger
}

// NewClient initializes the chat client once with the configured credentials.
func NewClient(ctx context.Context, cfg config.ChatConfig, logg *logger.Logger) (Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("chat base url is invalid: %w", err)
	}

	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, errTokenRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("chat client initialized (%s)", baseURL))
	}

	return &httpClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		token:   token,
		logg:    logg,
	}, nil
}

type postMessageRequest struct {
	Channel string   `json:"channel"`
	Text    string   `json:"text"`
	Actions []Action `json:"actions,omitempty"`
}

type apiResponse struct {
	OK      bool     `json:"ok"`
	Error   string   `json:"error,omitempty"`
	Members []string `json:"members,omitempty"`
}

func (c *httpClient) PostDM(ctx context.Context, userID, text string, actions []Action) error {
	return c.post(ctx, "/chat.postDirect", postMessageRequest{
		Channel: userID,
		Text:    text,
		Actions: actions,
	}, nil)
}

func (c *httpClient) PostChannel(ctx context.Context, channelID, text string) error {
	return c.post(ctx, "/chat.postMessage", postMessageRequest{
		Channel: channelID,
		Text:    text,
	}, nil)
}

func (c *httpClient) ChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	var out apiResponse
	err := c.post(ctx, "/conversations.members", map[string]string{"channel": channelID}, &out)
	if err != nil {
		return nil, err
	}
	return out.Members, nil
}

func (c *httpClient) post(ctx context.Context, path string, payload any, out *apiResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "chat platform unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read chat response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("chat platform returned %d for %s", resp.StatusCode, path))
	}

	parsed := out
	if parsed == nil {
		parsed = &apiResponse{}
	}
	if err := json.Unmarshal(raw, parsed); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode chat response")
	}
	if !parsed.OK {
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("chat platform rejected %s: %s", path, parsed.Error))
	}
	return nil
}
