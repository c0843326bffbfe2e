// Package remote talks to the task management and video services.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"resty.dev/v3"

	"payngo/scraper/internal/apperrors"
	"payngo/scraper/internal/config"
	"payngo/scraper/internal/domain"
	"payngo/scraper/internal/metrics"
	"payngo/scraper/internal/retry"
)

// TaskReporter publishes scrape results to the task service.
type TaskReporter interface {
	SubmitProductTask(ctx context.Context, submission domain.TaskSubmission) (json.RawMessage, error)
	CompleteTask(ctx context.Context, report domain.TaskReport) (json.RawMessage, error)
}

type Option func(*Client)

func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.SetTransport(rt)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client calls the remote services. Every public call is retried with the configured policy.
type Client struct {
	cfg        config.CommonConfig
	httpClient *resty.Client
	policy     retry.Policy
	metrics    *metrics.Metrics
}

func New(cfg config.CommonConfig, timeout time.Duration, policy retry.Policy, opts ...Option) *Client {
	c := &Client{
		cfg: cfg,
		httpClient: resty.New().
			SetTimeout(timeout).
			SetRetryCount(0).
			SetHeader("Accept", "application/json"),
		policy: policy,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) Close() error {
	return c.httpClient.Close()
}

// policyFor names the policy after call and counts its retries.
func (c *Client) policyFor(call string) retry.Policy {
	p := c.policy
	p.Name = call
	p.OnRetry = func(int, error) {
		c.metrics.IncRemoteRetry(call)
	}
	return p
}

type tokenResponse struct {
	Data struct {
		AccessToken string `json:"accessToken"`
	} `json:"data"`
}

// Token logs in with the configured credentials.
func (c *Client) Token(ctx context.Context) (string, error) {
	return retry.Value(ctx, c.policyFor("auth"), c.token)
}

func (c *Client) token(ctx context.Context) (string, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"email":    c.cfg.Email,
			"password": c.cfg.Password,
		}).
		Post(c.cfg.AuthURL)
	if err != nil {
		return "", apperrors.NewAuth(c.cfg.AuthURL, 0, err)
	}
	if !resp.IsSuccess() {
		return "", apperrors.NewAuth(c.cfg.AuthURL, resp.StatusCode(), fmt.Errorf("unexpected status %s", resp.Status()))
	}

	var body tokenResponse
	if err := json.Unmarshal(resp.Bytes(), &body); err != nil {
		return "", apperrors.NewAuth(c.cfg.AuthURL, resp.StatusCode(), fmt.Errorf("failed to decode response: %w", err))
	}
	if body.Data.AccessToken == "" {
		return "", apperrors.NewAuth(c.cfg.AuthURL, resp.StatusCode(), errors.New("response has no access token"))
	}

	log.Info("🔑 Obtained auth token")
	return body.Data.AccessToken, nil
}

// VideoExists asks whether videoURL was already stored by the video service.
func (c *Client) VideoExists(ctx context.Context, token, videoURL string) (*domain.VideoStatus, error) {
	return retry.Value(ctx, c.policyFor("check_video_exists"), func(ctx context.Context) (*domain.VideoStatus, error) {
		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetQueryParam("url", videoURL).
			Get(c.cfg.CheckVideoExistsURL)
		if err != nil {
			return nil, apperrors.NewRemote("check video", c.cfg.CheckVideoExistsURL, 0, err)
		}
		if !resp.IsSuccess() {
			return nil, apperrors.NewRemote("check video", c.cfg.CheckVideoExistsURL, resp.StatusCode(), fmt.Errorf("unexpected status %s", resp.Status()))
		}

		var status domain.VideoStatus
		if err := json.Unmarshal(resp.Bytes(), &status); err != nil {
			return nil, apperrors.NewRemote("check video", c.cfg.CheckVideoExistsURL, resp.StatusCode(), fmt.Errorf("failed to decode response: %w", err))
		}
		return &status, nil
	})
}

// SubmitProductTask asks the task service to import a finished category file. The token is acquired once;
// only the submission itself is retried.
func (c *Client) SubmitProductTask(ctx context.Context, submission domain.TaskSubmission) (json.RawMessage, error) {
	if len(submission.Requests) == 0 || submission.Type == "" {
		return nil, apperrors.NewValidation("submit product task", "must supply requests and type")
	}

	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	return retry.Value(ctx, c.policyFor("save_new_server_task"), func(ctx context.Context) (json.RawMessage, error) {
		body, err := c.postJSON(ctx, "save new server task", c.cfg.SaveNewServerTaskForSaveProductURL, token, submission)
		if err != nil {
			return nil, err
		}
		log.Infof("📨 Save new server task request succeeded: %s", body)
		return body, nil
	})
}

// CompleteTask reports the outcome of a scrape task. Every attempt logs in again.
func (c *Client) CompleteTask(ctx context.Context, report domain.TaskReport) (json.RawMessage, error) {
	if payload, err := json.Marshal(report); err == nil {
		log.Infof("📋 Complete task payload: %s", payload)
	}

	return retry.Value(ctx, c.policyFor("complete_task"), func(ctx context.Context) (json.RawMessage, error) {
		token, err := c.token(ctx)
		if err != nil {
			return nil, err
		}

		body, err := c.postJSON(ctx, "complete task", c.cfg.CompleteTaskURL, token, report)
		if err != nil {
			return nil, err
		}
		log.Infof("✅ Complete task call succeeded: %s", body)
		return body, nil
	})
}

func (c *Client) postJSON(ctx context.Context, op, url, token string, payload any) (json.RawMessage, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(url)
	if err != nil {
		return nil, apperrors.NewRemote(op, url, 0, err)
	}
	if !resp.IsSuccess() {
		return nil, apperrors.NewRemote(op, url, resp.StatusCode(), fmt.Errorf("unexpected status %s: %s", resp.Status(), resp.String()))
	}

	body := resp.Bytes()
	if !json.Valid(body) {
		return nil, apperrors.NewRemote(op, url, resp.StatusCode(), errors.New("response is not valid JSON"))
	}
	return json.RawMessage(body), nil
}
