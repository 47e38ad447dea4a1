package platform

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	httpDefaultTimeout = 15 * time.Second

	// Applied when the platform answers 429 without a usable hint.
	httpDefaultRetryAfter = 5 * time.Second
)

// HTTPClient implements Client against the platform's JSON API.
//
// Each method maps to POST <base>/<method> with a JSON (or multipart)
// body and an {"ok": bool, "result": ..., "parameters": {...}} reply.
type HTTPClient struct {
	log     *slog.Logger
	http    *http.Client
	baseURL string
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPDoer overrides the underlying *http.Client (tests, custom transports).
func WithHTTPDoer(h *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if h != nil {
			c.http = h
		}
	}
}

// NewHTTPClient constructs a client for the given API base URL.
func NewHTTPClient(log *slog.Logger, baseURL string, opts ...HTTPOption) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: empty base url", ErrInvalidInput)
	}
	if log == nil {
		log = slog.Default()
	}
	c := &HTTPClient{
		log:     log,
		http:    &http.Client{Timeout: httpDefaultTimeout},
		baseURL: baseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type apiReply struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// SendMessage delivers a plain text message to a user's private channel.
func (c *HTTPClient) SendMessage(ctx context.Context, userID, text string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: user id and text required", ErrInvalidInput)
	}
	_, err := c.callJSON(ctx, "sendMessage", map[string]any{
		"user_id": userID,
		"text":    text,
	})
	return err
}

// SendChallenge delivers a challenge artifact (PNG) with a caption.
func (c *HTTPClient) SendChallenge(ctx context.Context, userID string, artifact []byte, caption string) error {
	if strings.TrimSpace(userID) == "" || len(artifact) == 0 {
		return fmt.Errorf("%w: user id and artifact required", ErrInvalidInput)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("user_id", userID); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}
	}
	fw, err := mw.CreateFormFile("photo", "challenge.png")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	if _, err := fw.Write(artifact); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	_, err = c.call(ctx, "sendPhoto", mw.FormDataContentType(), &body)
	return err
}

// ApproveJoinRequest accepts a pending join request.
func (c *HTTPClient) ApproveJoinRequest(ctx context.Context, userID, communityID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(communityID) == "" {
		return fmt.Errorf("%w: user id and community id required", ErrInvalidInput)
	}
	_, err := c.callJSON(ctx, "approveChatJoinRequest", map[string]any{
		"user_id": userID,
		"chat_id": communityID,
	})
	return err
}

// DeclineJoinRequest rejects a pending join request.
func (c *HTTPClient) DeclineJoinRequest(ctx context.Context, userID, communityID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(communityID) == "" {
		return fmt.Errorf("%w: user id and community id required", ErrInvalidInput)
	}
	_, err := c.callJSON(ctx, "declineChatJoinRequest", map[string]any{
		"user_id": userID,
		"chat_id": communityID,
	})
	return err
}

// CreateSingleUseInvite mints a one-member invite link that admits directly.
func (c *HTTPClient) CreateSingleUseInvite(ctx context.Context, communityID string) (string, error) {
	if strings.TrimSpace(communityID) == "" {
		return "", fmt.Errorf("%w: community id required", ErrInvalidInput)
	}
	raw, err := c.callJSON(ctx, "createChatInviteLink", map[string]any{
		"chat_id":      communityID,
		"member_limit": 1,
		// Direct-admit link: the holder must not land back in the queue.
		"creates_join_request": false,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		InviteLink string `json:"invite_link"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || strings.TrimSpace(out.InviteLink) == "" {
		return "", fmt.Errorf("%w: invite link missing in reply", ErrDeliveryFailed)
	}
	return out.InviteLink, nil
}

// RestrictMember mutes a member for the given duration.
func (c *HTTPClient) RestrictMember(ctx context.Context, userID, communityID string, d time.Duration) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(communityID) == "" {
		return fmt.Errorf("%w: user id and community id required", ErrInvalidInput)
	}
	if d <= 0 {
		return fmt.Errorf("%w: non-positive duration", ErrInvalidInput)
	}
	_, err := c.callJSON(ctx, "restrictChatMember", map[string]any{
		"user_id":    userID,
		"chat_id":    communityID,
		"until_date": time.Now().UTC().Add(d).Unix(),
		"permissions": map[string]bool{
			"can_send_messages": false,
		},
	})
	return err
}

// GetCommunity fetches community metadata.
func (c *HTTPClient) GetCommunity(ctx context.Context, communityID string) (Community, error) {
	if strings.TrimSpace(communityID) == "" {
		return Community{}, fmt.Errorf("%w: community id required", ErrInvalidInput)
	}
	raw, err := c.callJSON(ctx, "getChat", map[string]any{"chat_id": communityID})
	if err != nil {
		return Community{}, err
	}
	var out struct {
		ID       json.Number `json:"id"`
		Title    string      `json:"title"`
		Username string      `json:"username"`
		Type     string      `json:"type"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Community{}, fmt.Errorf("%w: bad getChat reply: %v", ErrDeliveryFailed, err)
	}
	return Community{
		ID:      out.ID.String(),
		Title:   out.Title,
		Handle:  out.Username,
		Private: out.Username == "",
	}, nil
}

func (c *HTTPClient) callJSON(ctx context.Context, method string, body map[string]any) (json.RawMessage, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return c.call(ctx, method, "application/json", bytes.NewReader(b))
}

func (c *HTTPClient) call(ctx context.Context, method, contentType string, body io.Reader) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", contentType)

	// Correlates our logs with the platform's request logs.
	reqID := randomHex(8)
	req.Header.Set("X-Request-Id", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read reply: %v", ErrDeliveryFailed, err)
	}

	var reply apiReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("%w: %s: bad reply (status=%d)", ErrDeliveryFailed, method, resp.StatusCode)
	}

	if resp.StatusCode == http.StatusTooManyRequests || reply.ErrorCode == http.StatusTooManyRequests {
		hint := httpDefaultRetryAfter
		if reply.Parameters != nil && reply.Parameters.RetryAfter > 0 {
			hint = time.Duration(reply.Parameters.RetryAfter) * time.Second
		}
		c.log.Info("platform.rate_limited", "method", method, "req_id", reqID, "retry_after", hint)
		return nil, &RateLimitError{RetryAfter: hint}
	}

	if !reply.OK || resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status=%d code=%d desc=%q",
			ErrDeliveryFailed, method, resp.StatusCode, reply.ErrorCode, reply.Description)
	}
	return reply.Result, nil
}

// randomHex returns n random bytes hex-encoded. An empty string means
// the system entropy source failed; request IDs tolerate that.
func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
