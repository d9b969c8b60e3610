package randomness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "LiquiSafe-Chain/internal/errors"
)

const (
	defaultDrandBaseURL = "https://api.drand.sh"
	defaultDrandTimeout = 10 * time.Second
)

// DrandConfig 描述 drand 信标客户端的连接参数。
type DrandConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DrandClient 通过 HTTP 读取 drand 公共随机数信标。
type DrandClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDrandClient 根据配置创建 drand 客户端。
func NewDrandClient(cfg DrandConfig) (*DrandClient, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultDrandBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDrandTimeout
	}

	return &DrandClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type drandResponse struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"`
}

// Latest 读取信标最新一轮的随机值。
func (c *DrandClient) Latest(ctx context.Context) (*Observation, error) {
	endpoint := c.baseURL + "/public/latest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("构建 drand 请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "请求 drand 信标失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("读取 drand 响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.New(xerrors.CodeChainFailure,
			fmt.Sprintf("drand 信标返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var parsed drandResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("解析 drand 响应失败: %w", err)
	}
	if parsed.Randomness == "" {
		return nil, errors.New("drand 响应缺少随机值")
	}
	return &Observation{Round: parsed.Round, Randomness: parsed.Randomness}, nil
}
