package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agent-platform-go/internal/config"
	"agent-platform-go/pkg/log"

	"github.com/google/uuid"
)

// WeatherTool 调用 OpenWeatherMap 查询城市当前天气（公制单位）。
type WeatherTool struct {
	cfg    config.WeatherConfig
	client *http.Client
}

// NewWeatherTool 创建一个新的 WeatherTool 实例。
func NewWeatherTool(cfg config.ToolsConfig) *WeatherTool {
	return &WeatherTool{
		cfg: cfg.Weather,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Key 返回工具标识。
func (t *WeatherTool) Key() string {
	return "weather"
}

// Descriptor 返回工具目录项。
func (t *WeatherTool) Descriptor() Descriptor {
	return Descriptor{
		Key:         "weather",
		Name:        "城市天气查询",
		Description: "查询指定城市的当前天气（摄氏温度与天气描述）",
		Params: map[string]string{
			"city": "城市名称（必填）",
		},
	}
}

// Execute 查询天气。参数：{"city": string}。
func (t *WeatherTool) Execute(ctx context.Context, _ *uuid.UUID, params map[string]interface{}) (map[string]interface{}, error) {
	if t.cfg.APIKey == "" {
		return nil, &ToolError{Message: "天气服务未配置API密钥"}
	}

	city, _ := params["city"].(string)
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, &ToolError{Message: "缺少有效的city参数"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.BaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("构建天气请求失败: %w", err)
	}
	query := url.Values{}
	query.Set("q", city)
	query.Set("appid", t.cfg.APIKey)
	query.Set("units", "metric")
	req.URL.RawQuery = query.Encode()

	resp, err := t.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &ToolError{Message: "天气服务请求超时"}
		}
		log.Errorf("[WeatherTool] 请求天气服务失败, city: %s, error: %v", city, err)
		return nil, &ToolError{Message: "天气服务网络错误"}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &ToolError{Message: "天气服务API密钥无效或未授权"}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &ToolError{Message: "未找到该城市"}
	case resp.StatusCode != http.StatusOK:
		log.Warnf("[WeatherTool] 天气服务响应异常, city: %s, status: %d", city, resp.StatusCode)
		return nil, NewToolError("天气服务响应异常: %d", resp.StatusCode)
	}

	var payload struct {
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("解析天气服务响应失败: %w", err)
	}

	description := ""
	if len(payload.Weather) > 0 {
		description = payload.Weather[0].Description
	}
	name := payload.Name
	if name == "" {
		name = city
	}
	return map[string]interface{}{
		"temp_c":      payload.Main.Temp,
		"description": description,
		"city":        name,
		"source":      "openweathermap",
	}, nil
}
