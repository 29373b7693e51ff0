// Package api - HTTP клиент эндпоинтов авторизации.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/qrave1/TypeRace/internal/infra/ports/http/dto"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Login возвращает JWT из тела ответа
func (c *Client) Login(ctx context.Context, name, password string) (string, error) {
	var resp dto.LoginResponse

	err := c.do(ctx, http.MethodPost, "/api/auth/login", "", dto.LoginRequest{Name: name, Password: password}, &resp)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}

	return resp.Token, nil
}

func (c *Client) Me(ctx context.Context, token string) (*dto.GetMeResponse, error) {
	var resp dto.GetMeResponse

	if err := c.do(ctx, http.MethodGet, "/api/v1/me", token, nil, &resp); err != nil {
		return nil, fmt.Errorf("get me: %w", err)
	}

	return &resp, nil
}

// WebsocketURL переводит http(s) адрес сервера в адрес /api/v1/ws
func (c *Client) WebsocketURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/ws"

	return u.String(), nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)

		return fmt.Errorf("server responded %d: %s", resp.StatusCode, apiErr.Error)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
