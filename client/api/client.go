// Package api, sunucunun REST endpoint'leri için tipli HTTP client'ı.
//
// Tüm yanıtlar pkg.APIResponse zarfıyla gelir: {success, data, error}.
// success=false ise HTTP status ve error mesajı *Error olarak döner;
// errors.Is ile pkg'deki domain hatalarına eşlenebilir (ör: pkg.ErrNotFound).
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/protocol"
)

// maxResponseBytes, tek bir yanıt gövdesi için okuma sınırı.
const maxResponseBytes = 5 * 1024 * 1024

// Options, client ayarları.
type Options struct {
	BaseURL    string        // ör: http://localhost:9090
	Token      func() string // her istekte çağrılır; Bearer header'ına konur
	HTTPClient *http.Client  // nil ise 15sn timeout'lu client
}

// Client, REST API client'ı. Goroutine-safe'tir.
type Client struct {
	baseURL    string
	token      func() string
	httpClient *http.Client
}

// New, client oluşturur.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		httpClient: hc,
	}
}

// Error, sunucunun success=false yanıtı.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Unwrap, HTTP status'u pkg'deki domain hatasına geri çevirir;
// errors.Is(err, pkg.ErrNotFound) client tarafında da çalışır.
func (e *Error) Unwrap() error {
	return pkg.ErrorForStatus(e.Status)
}

// envelope, pkg.APIResponse'un decode tarafı; Data ham tutulur.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// ─── Read state ───

// Unreads, kullanıcının tüm konuşmalarının sayaçlarını çeker.
func (c *Client) Unreads(ctx context.Context) ([]models.UnreadCount, error) {
	var out []models.UnreadCount
	err := c.do(ctx, http.MethodGet, "/api/read-state/unreads", nil, nil, &out)
	return out, err
}

// Unread, tek bir konuşmanın sayacını çeker.
func (c *Client) Unread(ctx context.Context, conv models.Conversation) (*models.UnreadCount, error) {
	var out models.UnreadCount
	if err := c.do(ctx, http.MethodGet, "/api/read-state/unread", conversationQuery(conv), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LastRead, konuşmadaki okuma pozisyonunu döner. Receipt yoksa nil.
func (c *Client) LastRead(ctx context.Context, conv models.Conversation) (*string, error) {
	var out struct {
		LastReadMessageID *string `json:"last_read_message_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/read-state/last-read", conversationQuery(conv), nil, &out); err != nil {
		return nil, err
	}
	return out.LastReadMessageID, nil
}

// MarkRead, "buraya kadar okudum" işaretler. Gateway'deki mark_read'in REST karşılığı.
func (c *Client) MarkRead(ctx context.Context, req models.MarkReadRequest) (*models.ReadReceipt, error) {
	var out models.ReadReceipt
	if err := c.do(ctx, http.MethodPost, "/api/read-state/mark", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Readers, mesajı görmüş kullanıcıları döner.
func (c *Client) Readers(ctx context.Context, messageID string, conv models.Conversation, includeSelf bool) ([]models.MessageReader, error) {
	q := conversationQuery(conv)
	if includeSelf {
		q.Set("include_self", "true")
	}
	var out []models.MessageReader
	err := c.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(messageID)+"/readers", q, nil, &out)
	return out, err
}

// ─── Messages ───

// Messages, konuşmanın mesajlarını en yeniden eskiye sayfalar.
// before boşsa en yeni sayfa gelir; limit 0 ise sunucu varsayılanı.
func (c *Client) Messages(ctx context.Context, conv models.Conversation, before string, limit int) (*models.MessagePage, error) {
	q := conversationQuery(conv)
	setCursor(q, "before", before, limit)
	var out models.MessagePage
	if err := c.do(ctx, http.MethodGet, "/api/messages", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Replies, thread yanıtlarını en eskiden yeniye sayfalar.
func (c *Client) Replies(ctx context.Context, parentID, after string, limit int) (*models.MessagePage, error) {
	q := url.Values{}
	setCursor(q, "after", after, limit)
	var out models.MessagePage
	if err := c.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(parentID)+"/replies", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage, yeni mesaj gönderir.
func (c *Client) SendMessage(ctx context.Context, req models.CreateMessageRequest) (*models.Message, error) {
	var out models.Message
	if err := c.do(ctx, http.MethodPost, "/api/messages", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EditMessage, mesaj içeriğini günceller (sadece sahibi).
func (c *Client) EditMessage(ctx context.Context, messageID, content string) (*models.Message, error) {
	var out models.Message
	body := models.UpdateMessageRequest{Content: content}
	if err := c.do(ctx, http.MethodPatch, "/api/messages/"+url.PathEscape(messageID), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMessage, mesajı siler (sadece sahibi).
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/api/messages/"+url.PathEscape(messageID), nil, nil, nil)
}

// ─── Reactions & pins ───

// React, emoji ekler (add=true) veya kaldırır ve mesajın güncel reaction listesini döner.
func (c *Client) React(ctx context.Context, messageID, emoji string, add bool) ([]models.ReactionGroup, error) {
	method := http.MethodPut
	if !add {
		method = http.MethodDelete
	}
	var out []models.ReactionGroup
	path := "/api/messages/" + url.PathEscape(messageID) + "/reactions/" + url.PathEscape(emoji)
	err := c.do(ctx, method, path, nil, nil, &out)
	return out, err
}

// SetPinned, mesajı sabitler veya sabitlemeyi kaldırır.
func (c *Client) SetPinned(ctx context.Context, messageID string, pinned bool) error {
	method := http.MethodPut
	if !pinned {
		method = http.MethodDelete
	}
	return c.do(ctx, method, "/api/messages/"+url.PathEscape(messageID)+"/pin", nil, nil, nil)
}

// ─── Presence ───

// Presence, sunucuya bağlı kullanıcıların durumlarını çeker.
func (c *Client) Presence(ctx context.Context) ([]protocol.PresencePayload, error) {
	var out []protocol.PresencePayload
	err := c.do(ctx, http.MethodGet, "/api/presence", nil, nil, &out)
	return out, err
}

// ─── Transport ───

// do, isteği gönderir ve zarfın data alanını out'a çözer. out nil ise data yok sayılır.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read %s %s response: %w", method, path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// Zarfsız yanıt (ör: proxy hata sayfası); status'u yine de taşı.
		if resp.StatusCode >= http.StatusBadRequest {
			return &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		return &Error{Status: resp.StatusCode, Message: env.Error}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s data: %w", method, path, err)
	}
	return nil
}

func conversationQuery(conv models.Conversation) url.Values {
	q := url.Values{}
	if conv.IsDM() {
		q.Set("dm_channel_id", conv.DMChannelID)
	} else {
		q.Set("channel_id", conv.ChannelID)
	}
	return q
}

func setCursor(q url.Values, name, cursor string, limit int) {
	if cursor != "" {
		q.Set(name, cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
}
