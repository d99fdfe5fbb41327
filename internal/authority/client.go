// Пакет authority — HTTP-клиент к identity authority (GoTrue-совместимый API).
// Операции: ResolveToken (разрешение bearer-токена в пользователя) и
// GetUserByID (административная проверка существования пользователя).
// Клиент различает окончательный отказ (401/403 — токен отвергнут) и
// недоступность authority (сеть, 5xx) — на последней строится
// деградированный режим верификации.
package authority

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Ошибки клиента authority.
var (
	// ErrTokenRejected — authority окончательно отверг токен (401/403).
	ErrTokenRejected = errors.New("authority отверг токен")
	// ErrUserNotFound — пользователь не найден административным API.
	ErrUserNotFound = errors.New("пользователь не найден")
)

// User — пользователь identity authority.
type User struct {
	// ID — стабильный идентификатор пользователя (principal)
	ID string `json:"id"`
	// Email — адрес пользователя (информационно)
	Email string `json:"email,omitempty"`
}

// Client — HTTP-клиент к identity authority.
type Client struct {
	baseURL    string // Базовый URL authority (без trailing slash)
	serviceKey string // Service-ключ для административных запросов

	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент к identity authority.
// baseURL — базовый URL (например, https://auth.example.com).
// serviceKey — ключ сервисной роли для admin API.
// httpClient — HTTP-клиент (nil — клиент по умолчанию с таймаутом 10s).
func New(baseURL, serviceKey string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "authority_client")),
	}
}

// ResolveToken разрешает bearer-токен пользователя в User.
// 200 — пользователь; 401/403 — ErrTokenRejected (окончательный отказ);
// остальное (сеть, 5xx) — ошибка недоступности authority.
func (c *Client) ResolveToken(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса ResolveToken: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос к authority: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var user User
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			return nil, fmt.Errorf("декодирование ответа authority: %w", err)
		}
		if user.ID == "" {
			return nil, fmt.Errorf("authority вернул пользователя без id")
		}
		return &user, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrTokenRejected

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("authority вернул статус %d: %s", resp.StatusCode, string(body))
	}
}

// GetUserByID возвращает пользователя по id через административный API.
// Авторизация — service-ключ. 404 — ErrUserNotFound.
func (c *Client) GetUserByID(ctx context.Context, userID string) (*User, error) {
	reqURL := c.baseURL + "/auth/v1/admin/users/" + userID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса GetUserByID: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос к admin API authority: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var user User
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			return nil, fmt.Errorf("декодирование ответа admin API: %w", err)
		}
		if user.ID == "" {
			return nil, fmt.Errorf("admin API вернул пользователя без id")
		}
		return &user, nil

	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUserNotFound

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("admin API вернул статус %d: %s", resp.StatusCode, string(body))
	}
}
