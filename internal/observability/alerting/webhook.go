package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "LiquiSafe-Chain/internal/errors"
)

const defaultWebhookTimeout = 10 * time.Second

// DingTalkWebhook 通过钉钉群机器人的 webhook 发送文本消息。
type DingTalkWebhook struct {
	url        string
	httpClient *http.Client
}

// NewDingTalkWebhook 创建钉钉 webhook 发送器。
func NewDingTalkWebhook(url string) (*DingTalkWebhook, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "钉钉 webhook 地址不能为空")
	}
	return &DingTalkWebhook{
		url:        url,
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
	}, nil
}

// Send 实现 DingTalkSender。
func (w *DingTalkWebhook) Send(ctx context.Context, content string) error {
	payload := map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": content},
	}
	return postJSON(ctx, w.httpClient, w.url, payload)
}

// SlackWebhook 通过 Slack incoming webhook 发送消息。
type SlackWebhook struct {
	url        string
	httpClient *http.Client
}

// NewSlackWebhook 创建 Slack webhook 发送器。
func NewSlackWebhook(url string) (*SlackWebhook, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Slack webhook 地址不能为空")
	}
	return &SlackWebhook{
		url:        url,
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
	}, nil
}

// Send 实现 SlackSender。
func (w *SlackWebhook) Send(ctx context.Context, channel, content string) error {
	payload := map[string]string{
		"channel": channel,
		"text":    content,
	}
	return postJSON(ctx, w.httpClient, w.url, payload)
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("编码 webhook 消息失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构建 webhook 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("发送 webhook 请求失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook 返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}
