package device

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// StatusEndpoints は中継可能な読み取り専用の端末API
var StatusEndpoints = []string{"health", "network_settings", "ntp_check", "camera_check"}

// Client は端末へのHTTPリクエストを発行する
type Client struct {
	http        *resty.Client
	capturePath string
}

// NewClient は新しいClientを作成する
func NewClient(timeout time.Duration, capturePath string) *Client {
	r := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:        r,
		capturePath: capturePath,
	}
}

// Capture は端末にキャプチャを指示し、HTTPステータスコードを返す
// 通信自体に失敗した場合のみエラーを返す
func (c *Client) Capture(ctx context.Context, d Device) (int, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(d.URL(c.capturePath))
	if err != nil {
		return 0, err
	}

	return resp.StatusCode(), nil
}

// Fetch は端末の /api/{name} を取得し、JSONオブジェクトとして返す
func (c *Client) Fetch(ctx context.Context, d Device, name string) (map[string]any, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(d.URL("/api/" + name))
	if err != nil {
		return nil, err
	}

	data := map[string]any{}
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return nil, fmt.Errorf("端末 %d の応答の解析に失敗 (status %d): %w", d.ID, resp.StatusCode(), err)
	}

	return data, nil
}

// TakePhoto は単一端末の撮影APIを呼び出し、応答に含まれる画像を返す
func (c *Client) TakePhoto(ctx context.Context, d Device) (string, error) {
	var body struct {
		Image string `json:"image"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get(d.URL(c.capturePath))
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("端末 %d が撮影に失敗しました (status %d)", d.ID, resp.StatusCode())
	}

	return body.Image, nil
}
