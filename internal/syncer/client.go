// Package syncer implements the client-side reconciliation loop shared by
// the widget and the dashboard: an API client, a local timeline with
// optimistic entries, and the three-timer poller that keeps both in
// agreement with the server without a push channel.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"supportchat/internal/domain"
	"supportchat/internal/service"
)

// SignalState is the counterpart's typing and presence snapshot.
type SignalState struct {
	Typing bool `json:"typing"`
	Online bool `json:"online"`
}

// API is the server surface a poller reconciles against. Implementations
// are bound to one conversation view and one role.
type API interface {
	FetchMessages(ctx context.Context, afterID int64) ([]*service.MessageView, error)
	Send(ctx context.Context, content, clientToken string) (*service.MessageView, bool, error)
	Upload(ctx context.Context, filename, mime string, data []byte, clientToken string) (*service.MessageView, bool, error)
	MarkRead(ctx context.Context) error
	Signals(ctx context.Context) (SignalState, error)
	SetTyping(ctx context.Context, isTyping bool) error
	Heartbeat(ctx context.Context) error
}

type client struct {
	baseURL  string
	http     *http.Client
	decorate func(*http.Request)
}

// WidgetClient talks to the widget surface; the identity token implies the
// conversation, so no conversation id appears in paths.
type WidgetClient struct {
	client
}

func NewWidgetClient(baseURL, identityToken string, timeout time.Duration) *WidgetClient {
	return &WidgetClient{client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		decorate: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+identityToken)
		},
	}}
}

// DashboardClient talks to the dashboard surface for one conversation.
type DashboardClient struct {
	client
	conversationID int64
}

func NewDashboardClient(baseURL, agentID string, conversationID int64, timeout time.Duration) *DashboardClient {
	return &DashboardClient{
		client: client{
			baseURL: baseURL,
			http:    &http.Client{Timeout: timeout},
			decorate: func(r *http.Request) {
				r.Header.Set("X-Agent-ID", agentID)
			},
		},
		conversationID: conversationID,
	}
}

var (
	_ API = (*WidgetClient)(nil)
	_ API = (*DashboardClient)(nil)
)

func (c *WidgetClient) path(suffix string) string {
	return c.baseURL + "/api/widget" + suffix
}

func (c *DashboardClient) path(suffix string) string {
	return fmt.Sprintf("%s/api/dashboard/conversations/%d%s", c.baseURL, c.conversationID, suffix)
}

func (c *WidgetClient) FetchMessages(ctx context.Context, afterID int64) ([]*service.MessageView, error) {
	return c.fetchMessages(ctx, c.path("/messages"), afterID)
}

func (c *DashboardClient) FetchMessages(ctx context.Context, afterID int64) ([]*service.MessageView, error) {
	return c.fetchMessages(ctx, c.path("/messages"), afterID)
}

func (c *WidgetClient) Send(ctx context.Context, content, clientToken string) (*service.MessageView, bool, error) {
	return c.send(ctx, c.path("/messages"), map[string]string{
		"content": content, "client_token": clientToken,
	})
}

func (c *DashboardClient) Send(ctx context.Context, content, clientToken string) (*service.MessageView, bool, error) {
	return c.send(ctx, c.path("/messages"), map[string]string{
		"content": content, "client_token": clientToken,
	})
}

func (c *WidgetClient) Upload(ctx context.Context, filename, mime string, data []byte, clientToken string) (*service.MessageView, bool, error) {
	return c.upload(ctx, c.path("/upload"), filename, mime, data, clientToken)
}

func (c *DashboardClient) Upload(ctx context.Context, filename, mime string, data []byte, clientToken string) (*service.MessageView, bool, error) {
	return c.upload(ctx, c.path("/upload"), filename, mime, data, clientToken)
}

func (c *WidgetClient) MarkRead(ctx context.Context) error {
	return c.post(ctx, c.path("/read"), nil, nil)
}

func (c *DashboardClient) MarkRead(ctx context.Context) error {
	return c.post(ctx, c.path("/read"), nil, nil)
}

func (c *WidgetClient) Signals(ctx context.Context) (SignalState, error) {
	return c.signals(ctx, c.path("/signals"))
}

func (c *DashboardClient) Signals(ctx context.Context) (SignalState, error) {
	return c.signals(ctx, c.path("/signals"))
}

func (c *WidgetClient) SetTyping(ctx context.Context, isTyping bool) error {
	return c.post(ctx, c.path("/typing"), map[string]bool{"is_typing": isTyping}, nil)
}

func (c *DashboardClient) SetTyping(ctx context.Context, isTyping bool) error {
	return c.post(ctx, c.path("/typing"), map[string]bool{"is_typing": isTyping}, nil)
}

func (c *WidgetClient) Heartbeat(ctx context.Context) error {
	return c.post(ctx, c.path("/heartbeat"), nil, nil)
}

func (c *DashboardClient) Heartbeat(ctx context.Context) error {
	return c.post(ctx, c.path("/heartbeat"), nil, nil)
}

// ---- shared transport helpers ----

func (c *client) fetchMessages(ctx context.Context, u string, afterID int64) ([]*service.MessageView, error) {
	if afterID > 0 {
		u += "?after_id=" + url.QueryEscape(strconv.FormatInt(afterID, 10))
	}
	var views []*service.MessageView
	if err := c.get(ctx, u, &views); err != nil {
		return nil, err
	}
	return views, nil
}

func (c *client) send(ctx context.Context, u string, body any) (*service.MessageView, bool, error) {
	var res service.SubmitResult
	if err := c.post(ctx, u, body, &res); err != nil {
		return nil, false, err
	}
	return res.Message, res.Duplicate, nil
}

func (c *client) upload(ctx context.Context, u, filename, mime string, data []byte, clientToken string) (*service.MessageView, bool, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	hdr.Set("Content-Type", mime)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, false, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, false, err
	}
	if err := mw.WriteField("client_token", clientToken); err != nil {
		return nil, false, err
	}
	if err := mw.Close(); err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var res service.SubmitResult
	if err := c.do(req, &res); err != nil {
		return nil, false, err
	}
	return res.Message, res.Duplicate, nil
}

func (c *client) signals(ctx context.Context, u string) (SignalState, error) {
	var st SignalState
	err := c.get(ctx, u, &st)
	return st, err
}

func (c *client) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *client) post(ctx context.Context, u string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

type wireError struct {
	Error struct {
		Code    domain.ErrorCode `json:"code"`
		Message string           `json:"message"`
	} `json:"error"`
}

// do executes the request and maps failures back to the sentinel error
// taxonomy. Network-level failures become ErrTransient so the poller can
// degrade gracefully instead of treating them as terminal.
func (c *client) do(req *http.Request, out any) error {
	c.decorate(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", domain.ErrTransient, err)
		}
		return nil
	}

	var we wireError
	if err := json.NewDecoder(resp.Body).Decode(&we); err == nil && we.Error.Code != "" {
		return fmt.Errorf("%w: %s", domain.ErrFor(we.Error.Code), we.Error.Message)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("%w: server returned %d", domain.ErrTransient, resp.StatusCode)
	}
	return fmt.Errorf("%w: server returned %d", domain.ErrInternal, resp.StatusCode)
}
