// Package monday реализует тонкий клиент GraphQL API Monday.com. Покрывает
// только то, что нужно синхронизации согласований: список досок,
// создание элемента и смену значения колонки.
package monday

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultBaseURL = "https://api.monday.com/v2"
	apiVersion     = "2024-01"
)

// Endpoint задаёт OAuth2-эндпоинты Monday.com.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://auth.monday.com/oauth2/authorize",
	TokenURL: "https://auth.monday.com/oauth2/token",
}

// OAuthConfig собирает конфигурацию authorization-code флоу.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     Endpoint,
		Scopes:       []string{"boards:read", "boards:write"},
	}
}

// Client выполняет запросы к GraphQL API от имени одной учётной записи.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт экземпляр клиента.
func NewClient(apiKey string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Board описывает доску Monday.
type Board struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListBoards возвращает доски, доступные учётной записи.
func (c *Client) ListBoards(ctx context.Context) ([]Board, error) {
	const query = `query { boards (limit: 100, order_by: used_at) { id name } }`

	var result struct {
		Boards []Board `json:"boards"`
	}
	if err := c.execute(ctx, query, nil, &result); err != nil {
		return nil, err
	}

	return result.Boards, nil
}

// CreateItem создаёт элемент на доске и возвращает его идентификатор.
func (c *Client) CreateItem(ctx context.Context, boardID, name string) (string, error) {
	const query = `mutation ($boardID: ID!, $name: String!) {
		create_item (board_id: $boardID, item_name: $name) { id }
	}`

	var result struct {
		CreateItem struct {
			ID string `json:"id"`
		} `json:"create_item"`
	}
	variables := map[string]any{"boardID": boardID, "name": name}
	if err := c.execute(ctx, query, variables, &result); err != nil {
		return "", err
	}

	return result.CreateItem.ID, nil
}

// SetColumnValue выставляет текстовое значение колонки элемента.
// Для статусных колонок значением служит подпись статуса ("Approved" и т.п.).
func (c *Client) SetColumnValue(ctx context.Context, boardID, itemID, columnID, value string) error {
	const query = `mutation ($boardID: ID!, $itemID: ID!, $columnID: String!, $value: String) {
		change_simple_column_value (board_id: $boardID, item_id: $itemID, column_id: $columnID, value: $value) { id }
	}`

	variables := map[string]any{
		"boardID":  boardID,
		"itemID":   itemID,
		"columnID": columnID,
		"value":    value,
	}

	var result struct{}
	return c.execute(ctx, query, variables, &result)
}

// execute выполняет GraphQL-запрос и декодирует поле data в out.
func (c *Client) execute(ctx context.Context, query string, variables map[string]any, out any) error {
	payload := map[string]any{"query": query}
	if variables != nil {
		payload["variables"] = variables
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("API-Version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return fmt.Errorf("monday: код ответа %d: %v", resp.StatusCode, errorBody)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}

	if len(envelope.Errors) > 0 {
		return fmt.Errorf("monday: %s", envelope.Errors[0].Message)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return err
		}
	}

	return nil
}
