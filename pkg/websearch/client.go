// Package websearch 提供了一个访问外部在线检索服务的客户端。
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"prop-eval-go/internal/config"
	"prop-eval-go/pkg/log"
)

// Result 是外部检索返回的一条结果。
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Client defines the interface for an external search client.
type Client interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

type httpClient struct {
	cfg    config.WebSearchConfig
	client *http.Client
}

// NewClient 创建一个新的在线检索客户端实例。
func NewClient(cfg config.WebSearchConfig) Client {
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Search 调用外部检索 API 并返回结果列表。
func (c *httpClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = c.cfg.MaxResults
	}
	reqBytes, err := json.Marshal(searchRequest{Query: query, MaxResults: maxResults})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/search", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[WebSearch] 调用在线检索 API 失败, error: %v", err)
		return nil, fmt.Errorf("failed to call search api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[WebSearch] 在线检索 API 返回非 200 状态码: %s", resp.Status)
		return nil, fmt.Errorf("search api returned non-200 status: %s", resp.Status)
	}

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	log.Infof("[WebSearch] 在线检索成功, query: '%s', 返回 %d 条结果", query, len(searchResp.Results))
	return searchResp.Results, nil
}
