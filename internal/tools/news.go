package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"agent-platform-go/internal/config"
	"agent-platform-go/pkg/log"

	"github.com/google/uuid"
)

const (
	// newsMaxTopicLength 是 topic 参数的最大字符数。
	newsMaxTopicLength = 200
	// newsSnippetLength 是文章摘要的展示长度。
	newsSnippetLength = 200
	// newsDefaultPageSize 是未指定 pageSize 时的默认条数。
	newsDefaultPageSize = 5
)

// newsArticle 是归一化后的单条新闻。
type newsArticle struct {
	Title       string `json:"title"`
	Source      string `json:"source"`
	PublishedAt string `json:"publishedAt"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet"`
}

// NewsTool 调用 NewsAPI 检索新闻，结果经 Redis 缓存并按用户频控。
type NewsTool struct {
	cfg    config.NewsConfig
	client *http.Client
	state  ToolState
}

// NewNewsTool 创建一个新的 NewsTool 实例。
func NewNewsTool(cfg config.ToolsConfig, state ToolState) *NewsTool {
	return &NewsTool{
		cfg: cfg.News,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		state: state,
	}
}

// Key 返回工具标识。
func (t *NewsTool) Key() string {
	return "news"
}

// Descriptor 返回工具目录项。
func (t *NewsTool) Descriptor() Descriptor {
	return Descriptor{
		Key:         "news",
		Name:        "新闻检索",
		Description: "按主题检索最新新闻，同一查询的结果会缓存一段时间",
		Params: map[string]string{
			"topic":    "检索主题（必填，最多200字符）",
			"language": "语言代码（可选，默认 en）",
			"pageSize": "返回条数（可选，1-10，默认 5）",
		},
	}
}

// Execute 检索新闻。参数：{"topic": string, "language"?: string, "pageSize"?: int}。
func (t *NewsTool) Execute(ctx context.Context, owner *uuid.UUID, params map[string]interface{}) (map[string]interface{}, error) {
	if t.cfg.APIKey == "" {
		return nil, &ToolError{Message: "新闻服务未配置API密钥"}
	}

	topic, err := sanitizeTopic(params["topic"])
	if err != nil {
		return nil, err
	}
	language := normalizeLanguage(params["language"])
	pageSize := clampPageSize(params["pageSize"])

	// 每用户频控，窗口一分钟
	allowed, err := t.state.AllowToolCall(ctx, "news", owner, t.cfg.RateLimitPerMinute, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("新闻工具频控检查失败: %w", err)
	}
	if !allowed {
		return nil, &ToolError{Message: "新闻查询过于频繁，请稍后再试", RateLimited: true}
	}

	cacheTTL := time.Duration(t.cfg.CacheTTLSeconds) * time.Second
	cacheKey := fmt.Sprintf("news::%s::%s::%d", strings.ToLower(topic), language, pageSize)
	if payload, ttl, cacheErr := t.state.GetCachedResult(ctx, cacheKey); cacheErr != nil {
		log.Warnf("[NewsTool] 读取新闻缓存失败, key: %s, error: %v", cacheKey, cacheErr)
	} else if payload != "" {
		var articles []newsArticle
		if jsonErr := json.Unmarshal([]byte(payload), &articles); jsonErr == nil {
			return map[string]interface{}{
				"provider":      "newsapi",
				"query":         topic,
				"articles":      articles,
				"cached":        true,
				"ttl_remaining": int(ttl.Seconds()),
			}, nil
		}
		log.Warnf("[NewsTool] 新闻缓存内容损坏, key: %s, 忽略缓存", cacheKey)
	}

	articles, err := t.fetch(ctx, topic, language, pageSize)
	if err != nil {
		return nil, err
	}

	if data, jsonErr := json.Marshal(articles); jsonErr == nil {
		if cacheErr := t.state.SetCachedResult(ctx, cacheKey, string(data), cacheTTL); cacheErr != nil {
			log.Warnf("[NewsTool] 写入新闻缓存失败, key: %s, error: %v", cacheKey, cacheErr)
		}
	}

	return map[string]interface{}{
		"provider":      "newsapi",
		"query":         topic,
		"articles":      articles,
		"cached":        false,
		"ttl_remaining": t.cfg.CacheTTLSeconds,
	}, nil
}

// fetch 请求 NewsAPI 并归一化文章列表。
func (t *NewsTool) fetch(ctx context.Context, topic, language string, pageSize int) ([]newsArticle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("构建新闻请求失败: %w", err)
	}
	query := url.Values{}
	query.Set("q", topic)
	query.Set("language", language)
	query.Set("pageSize", strconv.Itoa(pageSize))
	query.Set("apiKey", t.cfg.APIKey)
	req.URL.RawQuery = query.Encode()

	resp, err := t.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &ToolError{Message: "新闻服务请求超时"}
		}
		log.Errorf("[NewsTool] 请求新闻服务失败, topic: %s, error: %v", topic, err)
		return nil, &ToolError{Message: "新闻服务网络错误"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warnf("[NewsTool] 新闻服务响应异常, topic: %s, status: %d", topic, resp.StatusCode)
		return nil, NewToolError("新闻服务响应异常: %d", resp.StatusCode)
	}

	var payload struct {
		Articles []struct {
			Title  string `json:"title"`
			URL    string `json:"url"`
			Source struct {
				Name string `json:"name"`
			} `json:"source"`
			PublishedAt string `json:"publishedAt"`
			Content     string `json:"content"`
			Description string `json:"description"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("解析新闻服务响应失败: %w", err)
	}

	items := payload.Articles
	if len(items) > pageSize {
		items = items[:pageSize]
	}
	articles := make([]newsArticle, 0, len(items))
	for _, item := range items {
		content := item.Content
		if content == "" {
			content = item.Description
		}
		articles = append(articles, newsArticle{
			Title:       strings.TrimSpace(item.Title),
			Source:      item.Source.Name,
			PublishedAt: strings.TrimSpace(item.PublishedAt),
			URL:         strings.TrimSpace(item.URL),
			Snippet:     truncateSnippet(content, newsSnippetLength),
		})
	}
	return articles, nil
}

// sanitizeTopic 校验并规整检索主题：必填、折叠空白、限长。
func sanitizeTopic(v interface{}) (string, error) {
	raw, _ := v.(string)
	topic := strings.Join(strings.Fields(raw), " ")
	if topic == "" {
		return "", &ToolError{Message: "缺少有效的topic参数"}
	}
	if utf8.RuneCountInString(topic) > newsMaxTopicLength {
		return "", NewToolError("topic超长（最多%d字符）", newsMaxTopicLength)
	}
	return topic, nil
}

// normalizeLanguage 归一化语言代码，缺省为 en。
func normalizeLanguage(v interface{}) string {
	raw, _ := v.(string)
	lang := strings.ToLower(strings.TrimSpace(raw))
	if lang == "" {
		return "en"
	}
	return lang
}

// clampPageSize 解析并收敛返回条数到 [1,10]，解析失败回落默认值。
func clampPageSize(v interface{}) int {
	num := newsDefaultPageSize
	switch n := v.(type) {
	case int:
		num = n
	case float64:
		num = int(n)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			num = parsed
		}
	}
	if num < 1 {
		return 1
	}
	if num > 10 {
		return 10
	}
	return num
}
