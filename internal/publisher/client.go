package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"golang.org/x/time/rate"
)

const (
	userInfoPath    = "/v2/user/info/?fields=open_id,display_name,username"
	creatorInfoPath = "/v2/post/publish/creator_info/query/"
	videoInitPath   = "/v2/post/publish/video/init/"

	privacyPublic = "PUBLIC_TO_EVERYONE"
)

// Client publishes variants to the platform's content API, pulling the
// video from a public URL. The stored account secret is used as the bearer token.
type Client struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	mediaURL func(key string) string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithMediaURL sets how variant references are turned into public URLs.
func WithMediaURL(fn func(key string) string) Option {
	return func(c *Client) { c.mediaURL = fn }
}

func NewClient(baseURL string, ratePerSec int, opts ...Option) *Client {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 60 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		mediaURL: func(key string) string { return key },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) PublishVariant(ctx context.Context, artifactRef, caption string, creds models.Credentials) error {
	var creator transfer.CreatorInfoResponse
	if err := c.do(ctx, http.MethodPost, creatorInfoPath, creds.Secret, nil, &creator); err != nil {
		return err
	}
	if !creator.Error.OK() {
		return &service.PublishError{Reason: reasonOf(creator.Error, "creator info rejected")}
	}

	req := transfer.VideoPublishRequest{
		PostInfo: transfer.VideoPostInfo{
			Title:                 caption,
			PrivacyLevel:          privacyPublic,
			VideoCoverTimestampMs: 1000,
		},
		SourceInfo: transfer.VideoSourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: c.mediaURL(artifactRef),
		},
	}

	var result transfer.PublishResponse
	if err := c.do(ctx, http.MethodPost, videoInitPath, creds.Secret, req, &result); err != nil {
		return err
	}
	if !result.Error.OK() {
		return &service.PublishError{Reason: reasonOf(result.Error, "publish rejected")}
	}

	slog.Info("variant published", "account_id", creds.AccountID, "publish_id", result.Data.PublishID)
	return nil
}

func (c *Client) ProbeAccount(ctx context.Context, creds models.Credentials) error {
	var info transfer.UserInfoResponse
	if err := c.do(ctx, http.MethodGet, userInfoPath, creds.Secret, nil, &info); err != nil {
		return err
	}
	if !info.Error.OK() {
		return &service.PublishError{Reason: reasonOf(info.Error, "account check rejected")}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	decodeErr := json.Unmarshal(raw, out)
	if resp.StatusCode != http.StatusOK {
		var envelope struct {
			Error transfer.PublisherError `json:"error"`
		}
		_ = json.Unmarshal(raw, &envelope)
		return &service.PublishError{Reason: reasonOf(envelope.Error, fmt.Sprintf("platform returned status %d", resp.StatusCode))}
	}
	if decodeErr != nil {
		return &service.PublishError{Reason: "malformed platform response", Err: decodeErr}
	}
	return nil
}

func reasonOf(e transfer.PublisherError, fallback string) string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" && e.Code != "ok" {
		return e.Code
	}
	return fallback
}
