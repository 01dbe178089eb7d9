// Package dropbox реализует тонкий клиент HTTP RPC API Dropbox. Покрывает
// просмотр папки и получение временной ссылки на файл.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://api.dropboxapi.com/2"

// Endpoint задаёт OAuth2-эндпоинты Dropbox.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://www.dropbox.com/oauth2/authorize",
	TokenURL: "https://api.dropboxapi.com/oauth2/token",
}

// OAuthConfig собирает конфигурацию authorization-code флоу.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     Endpoint,
	}
}

// OfflineAccess просит refresh-токен при авторизации. Без него Dropbox
// выдаёт только короткоживущий access-токен.
var OfflineAccess = oauth2.SetAuthURLParam("token_access_type", "offline")

// Client выполняет запросы к API от имени одной учётной записи.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewClient создаёт экземпляр клиента.
func NewClient(accessToken string) *Client {
	return &Client{
		baseURL:     defaultBaseURL,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Entry описывает файл или папку в листинге.
type Entry struct {
	Tag       string `json:".tag"`
	Name      string `json:"name"`
	PathLower string `json:"path_lower"`
	Size      int64  `json:"size,omitempty"`
}

// IsFile сообщает, является ли запись файлом.
func (e Entry) IsFile() bool {
	return e.Tag == "file"
}

// ListFolder возвращает содержимое папки. Пустой путь означает корень.
func (c *Client) ListFolder(ctx context.Context, path string) ([]Entry, error) {
	var result struct {
		Entries []Entry `json:"entries"`
		HasMore bool    `json:"has_more"`
		Cursor  string  `json:"cursor"`
	}
	if err := c.post(ctx, "/files/list_folder", map[string]any{"path": path}, &result); err != nil {
		return nil, err
	}

	entries := result.Entries
	for result.HasMore {
		cursor := result.Cursor
		result.Entries = nil
		if err := c.post(ctx, "/files/list_folder/continue", map[string]any{"cursor": cursor}, &result); err != nil {
			return nil, err
		}
		entries = append(entries, result.Entries...)
	}

	return entries, nil
}

// TemporaryLink возвращает имя файла и временную ссылку на скачивание.
// Ссылка живёт четыре часа, хранить её не имеет смысла.
func (c *Client) TemporaryLink(ctx context.Context, path string) (string, string, error) {
	var result struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Link string `json:"link"`
	}
	if err := c.post(ctx, "/files/get_temporary_link", map[string]any{"path": path}, &result); err != nil {
		return "", "", err
	}

	return result.Metadata.Name, result.Link, nil
}

// post выполняет RPC-запрос к API.
func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody struct {
			ErrorSummary string `json:"error_summary"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return fmt.Errorf("dropbox: код ответа %d: %s", resp.StatusCode, errorBody.ErrorSummary)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return err
		}
	}

	return nil
}
