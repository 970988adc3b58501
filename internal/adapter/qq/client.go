package qq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"botweave/internal/event"
	"botweave/internal/log"
	"botweave/internal/message"
)

const (
	defaultAuthURL = "https://bots.qq.com/app/getAppAccessToken"
	defaultAPIBase = "https://api.sgroup.qq.com"

	requestTimeout = 10 * time.Second
	botInfoTimeout = 15 * time.Second
	uploadTimeout  = 30 * time.Second

	// refreshWindow is how long before expiry a background token refresh
	// kicks in. The old token stays valid while the refresh runs.
	refreshWindow = 60 * time.Second

	defaultExpiresIn = 7200

	maxResponseBytes = 1 << 20
)

// Client talks to the QQ bot REST API on behalf of one app. It owns the
// access token lifecycle: a missing or expired token is refreshed
// synchronously before the request, a token inside the refresh window is
// refreshed by a single background goroutine while requests keep using
// the old one.
type Client struct {
	appID     string
	appSecret string
	authURL   string
	apiBase   string
	httpc     *http.Client
	seq       *message.SeqCounter

	mu         sync.Mutex
	token      string
	expiresAt  time.Time
	refreshing bool
}

// Option adjusts client construction.
type Option func(*Client)

// WithAuthURL overrides the token endpoint.
func WithAuthURL(u string) Option { return func(c *Client) { c.authURL = u } }

// WithAPIBase overrides the API origin.
func WithAPIBase(u string) Option { return func(c *Client) { c.apiBase = u } }

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpc = h } }

// NewClient creates a client for one app credential pair.
func NewClient(appID, appSecret string, opts ...Option) *Client {
	c := &Client{
		appID:     appID,
		appSecret: appSecret,
		authURL:   defaultAuthURL,
		apiBase:   defaultAPIBase,
		httpc:     &http.Client{},
		seq:       message.NewSeqCounter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate fetches a fresh access token synchronously.
func (c *Client) Authenticate(ctx context.Context) error {
	out, err := c.doJSON(ctx, http.MethodPost, c.authURL, map[string]string{
		"appId":        c.appID,
		"clientSecret": c.appSecret,
	}, requestTimeout, nil)
	if err != nil {
		return fmt.Errorf("failed to authenticate with qq api: %w", err)
	}
	if code, ok := asInt(out["code"]); ok && code != 0 {
		msg, _ := out["message"].(string)
		return fmt.Errorf("qq auth error %d: %s", code, msg)
	}
	token, _ := out["access_token"].(string)
	if token == "" {
		return errors.New("qq auth response missing access_token")
	}
	expiresIn, ok := asInt(out["expires_in"])
	if !ok || expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}

	c.mu.Lock()
	c.token = token
	c.expiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
	c.mu.Unlock()

	log.Info(log.CatQQ, "access token acquired", "app_id", c.appID, "expires_in", expiresIn)
	return nil
}

// ensureAuthenticated guarantees a valid token before an API call.
func (c *Client) ensureAuthenticated(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now()
	valid := c.token != "" && now.Before(c.expiresAt)
	inWindow := !now.Before(c.expiresAt.Add(-refreshWindow))
	if valid && inWindow && !c.refreshing {
		c.refreshing = true
		go c.refreshInBackground()
	}
	c.mu.Unlock()

	if valid {
		return nil
	}
	log.Info(log.CatQQ, "token invalid, refreshing synchronously", "app_id", c.appID)
	return c.Authenticate(ctx)
}

func (c *Client) refreshInBackground() {
	defer func() {
		c.mu.Lock()
		c.refreshing = false
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := c.Authenticate(ctx); err != nil {
		log.ErrorErr(log.CatQQ, "background token refresh failed", err, "app_id", c.appID)
	}
}

// TokenStatus reports the token lifecycle state for the status API.
func (c *Client) TokenStatus() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return map[string]any{
			"has_token":      false,
			"is_valid":       false,
			"should_refresh": true,
			"expires_in":     int64(0),
		}
	}
	now := time.Now()
	remaining := c.expiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return map[string]any{
		"has_token":      true,
		"is_valid":       now.Before(c.expiresAt),
		"should_refresh": !now.Before(c.expiresAt.Add(-refreshWindow)),
		"expires_in":     int64(remaining / time.Second),
	}
}

// BotInfo fetches the bot's own platform account.
func (c *Client) BotInfo(ctx context.Context) (map[string]any, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}
	out, err := c.doJSON(ctx, http.MethodGet, c.apiBase+"/users/@me", nil, botInfoTimeout, c.authHeaders())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bot info: %w", err)
	}
	if code, ok := asInt(out["code"]); ok && code != 0 {
		msg, _ := out["message"].(string)
		return nil, fmt.Errorf("qq api error %d: %s", code, msg)
	}
	if _, ok := out["id"]; !ok {
		return nil, errors.New("qq bot info response missing id")
	}
	return out, nil
}

// SendMessage delivers one payload to a target, uploading any pending
// media first. Replies correlate through msg_id plus a per-message
// msg_seq so the platform accepts repeated answers to the same inbound
// message.
func (c *Client) SendMessage(ctx context.Context, target event.Target, payload *message.QQPayload) (map[string]any, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	fileInfo := ""
	if payload.Upload != nil {
		info, err := c.UploadMedia(ctx, target, payload.Upload)
		if err != nil {
			return nil, err
		}
		fileInfo = info
	}

	body := map[string]any{
		"content":  payload.Content,
		"msg_type": payload.MsgType,
		"msg_seq":  c.seq.Next(target.ReplyTo),
	}
	if payload.Markdown != nil {
		body["markdown"] = payload.Markdown
	}
	if payload.Ark != nil {
		body["ark"] = payload.Ark
	}
	if payload.Keyboard != nil {
		body["keyboard"] = payload.Keyboard
	}
	if fileInfo != "" {
		body["media"] = map[string]any{"file_info": fileInfo}
	}
	if target.ReplyTo != "" {
		body["msg_id"] = target.ReplyTo
	}

	sendURL, err := c.sendURL(target)
	if err != nil {
		return nil, err
	}
	out, err := c.doJSON(ctx, http.MethodPost, sendURL, body, requestTimeout, c.authHeaders())
	if err != nil {
		return nil, fmt.Errorf("failed to send %s message: %w", target.Kind, err)
	}
	log.Info(log.CatQQ, "message sent",
		"kind", target.Kind, "target", target.ID, "msg_type", payload.MsgType, "message_id", out["id"])
	return out, nil
}

func (c *Client) sendURL(target event.Target) (string, error) {
	switch target.Kind {
	case event.ContextGroup:
		return c.apiBase + "/v2/groups/" + url.PathEscape(target.ID) + "/messages", nil
	case event.ContextPrivate:
		return c.apiBase + "/v2/users/" + url.PathEscape(target.ID) + "/messages", nil
	case event.ContextChannel:
		return c.apiBase + "/channels/" + url.PathEscape(target.ID) + "/messages", nil
	case event.ContextDirect:
		return c.apiBase + "/dms/" + url.PathEscape(target.ID) + "/messages", nil
	default:
		return "", fmt.Errorf("unsupported send target kind %q", target.Kind)
	}
}

// UploadMedia registers a media resource with the platform and returns
// the file_info handle a media message carries. Only group and private
// targets have upload endpoints.
func (c *Client) UploadMedia(ctx context.Context, target event.Target, up *message.QQUpload) (string, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return "", err
	}

	var uploadURL string
	switch target.Kind {
	case event.ContextGroup:
		uploadURL = c.apiBase + "/v2/groups/" + url.PathEscape(target.ID) + "/files"
	case event.ContextPrivate:
		uploadURL = c.apiBase + "/v2/users/" + url.PathEscape(target.ID) + "/files"
	default:
		return "", fmt.Errorf("media upload is not supported for %s targets", target.Kind)
	}

	body := map[string]any{
		"file_type":    up.FileType,
		"srv_send_msg": false,
	}
	if up.FileData != "" {
		body["file_data"] = up.FileData
	} else {
		body["url"] = up.URL
	}

	out, err := c.doJSON(ctx, http.MethodPost, uploadURL, body, uploadTimeout, c.authHeaders())
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}
	info, _ := out["file_info"].(string)
	if info == "" {
		return "", errors.New("qq upload response missing file_info")
	}
	log.Info(log.CatQQ, "media uploaded", "file_type", up.FileType, "file_uuid", out["file_uuid"], "ttl", out["ttl"])
	return info, nil
}

// RecallMessage deletes a previously sent message.
func (c *Client) RecallMessage(ctx context.Context, messageID string) error {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return err
	}
	headers := c.authHeaders()
	headers["X-Union-Appid"] = c.appID
	_, err := c.doJSON(ctx, http.MethodDelete, c.apiBase+"/v2/messages/"+url.PathEscape(messageID), nil, requestTimeout, headers)
	if err != nil {
		return fmt.Errorf("failed to recall message %s: %w", messageID, err)
	}
	log.Info(log.CatQQ, "message recalled", "message_id", messageID)
	return nil
}

func (c *Client) authHeaders() map[string]string {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	return map[string]string{"Authorization": "QQBot " + token}
}

func (c *Client) doJSON(ctx context.Context, method, reqURL string, payload any, timeout time.Duration, headers map[string]string) (map[string]any, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apiError(resp.StatusCode, data)
	}

	out := map[string]any{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return out, nil
}

// apiError extracts the platform's message field from an error body,
// falling back to the HTTP status.
func apiError(status int, body []byte) error {
	var e struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		if e.Code != 0 {
			return fmt.Errorf("qq api error %d: %s", e.Code, e.Message)
		}
		return fmt.Errorf("qq api error: %s", e.Message)
	}
	return fmt.Errorf("qq api error: HTTP %d", status)
}

// asInt reads a loosely typed numeric field. The platform encodes some
// numbers, expires_in among them, as JSON strings.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
