// Package apiclient is the REST client for the swarasheet API. It
// implements the edit-session save boundary and the auth, listing, and
// favorite operations.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/raagalabs/swarasheet/backend/internal/songs"
	"github.com/raagalabs/swarasheet/backend/internal/users"
)

const defaultTimeout = 30 * time.Second

var (
	// ErrMissingBaseURL indicates a client built without a server address.
	ErrMissingBaseURL = errors.New("apiclient: base url required")
	// ErrUnauthenticated maps 401 responses.
	ErrUnauthenticated = errors.New("apiclient: unauthenticated")
	// ErrForbidden maps 403 responses.
	ErrForbidden = errors.New("apiclient: forbidden")
	// ErrNotFound maps 404 responses.
	ErrNotFound = errors.New("apiclient: not found")
	// ErrConflict maps 409 responses.
	ErrConflict = errors.New("apiclient: version conflict")
	// ErrValidation maps 400 responses; the server's message is wrapped.
	ErrValidation = errors.New("apiclient: validation failed")
	// ErrServer maps 5xx responses.
	ErrServer = errors.New("apiclient: server error")
)

// Config describes a new client.
type Config struct {
	BaseURL string
	Token   string
	// Timeout bounds each request wall-clock; defaults to 30 seconds.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to one swarasheet server. The zero value is not usable;
// construct with New.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New constructs a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrMissingBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    httpClient,
	}, nil
}

// SetToken replaces the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// SendOTP asks the server to issue a login code for the phone number.
func (c *Client) SendOTP(ctx context.Context, phoneNumber string) error {
	payload := map[string]string{"phoneNumber": phoneNumber}
	return c.do(ctx, http.MethodPost, "/auth/send-otp", payload, nil)
}

// LoginResult is the response to a successful OTP verification.
type LoginResult struct {
	Token     string     `json:"token"`
	ExpiresIn int64      `json:"expiresIn"`
	User      users.User `json:"user"`
}

// VerifyOTP exchanges a phone number and code for a bearer token. The
// token is retained for subsequent requests.
func (c *Client) VerifyOTP(ctx context.Context, phoneNumber, code string) (LoginResult, error) {
	payload := map[string]string{"phoneNumber": phoneNumber, "otp": code}
	var result LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/verify-otp", payload, &result); err != nil {
		return LoginResult{}, err
	}
	c.token = result.Token
	return result, nil
}

// CurrentUser fetches the authenticated caller's account.
func (c *Client) CurrentUser(ctx context.Context) (users.User, error) {
	var user users.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return users.User{}, err
	}
	return user, nil
}

// Create persists a new song document.
func (c *Client) Create(ctx context.Context, song songs.Song) (songs.Song, error) {
	var created songs.Song
	if err := c.do(ctx, http.MethodPost, "/songs", song, &created); err != nil {
		return songs.Song{}, err
	}
	return created, nil
}

// UpdateWhole replaces the full document.
func (c *Client) UpdateWhole(ctx context.Context, id string, song songs.Song) (songs.Song, error) {
	var updated songs.Song
	path := "/songs/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPut, path, song, &updated); err != nil {
		return songs.Song{}, err
	}
	return updated, nil
}

// UpdateSection replaces one section of the document.
func (c *Client) UpdateSection(ctx context.Context, id string, index int, section songs.Section, version int64) (songs.Song, error) {
	payload := struct {
		Section songs.Section `json:"section"`
		Version int64         `json:"version"`
	}{Section: section, Version: version}
	var updated songs.Song
	path := fmt.Sprintf("/songs/%s/sections/%d", url.PathEscape(id), index)
	if err := c.do(ctx, http.MethodPut, path, payload, &updated); err != nil {
		return songs.Song{}, err
	}
	return updated, nil
}

// GetSong fetches one song document.
func (c *Client) GetSong(ctx context.Context, id string) (songs.Song, error) {
	var song songs.Song
	if err := c.do(ctx, http.MethodGet, "/songs/"+url.PathEscape(id), nil, &song); err != nil {
		return songs.Song{}, err
	}
	return song, nil
}

// ListSongs fetches one page of the song listing.
func (c *Client) ListSongs(ctx context.Context, query songs.ListQuery) (songs.Page, error) {
	values := url.Values{}
	if query.Page > 0 {
		values.Set("page", strconv.Itoa(query.Page))
	}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Search != "" {
		values.Set("search", query.Search)
	}
	if query.NotationType != "" {
		values.Set("notationType", query.NotationType)
	}
	path := "/songs"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var page songs.Page
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return songs.Page{}, err
	}
	return page, nil
}

// DeleteSong removes one song document.
func (c *Client) DeleteSong(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/songs/"+url.PathEscape(id), nil, nil)
}

// ToggleFavorite flips the song in the caller's favorite set and returns
// the updated set.
func (c *Client) ToggleFavorite(ctx context.Context, id string) ([]string, error) {
	var response struct {
		Favorites []string `json:"favorites"`
	}
	path := "/songs/" + url.PathEscape(id) + "/favorite"
	if err := c.do(ctx, http.MethodPost, path, nil, &response); err != nil {
		return nil, err
	}
	return response.Favorites, nil
}

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, payload, result interface{}) error {
	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("apiclient: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusBadRequest {
		return decodeError(response)
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(result); err != nil {
		return fmt.Errorf("apiclient: decode response: %w", err)
	}
	return nil
}

func decodeError(response *http.Response) error {
	var envelope errorEnvelope
	_ = json.NewDecoder(response.Body).Decode(&envelope)
	message := envelope.Message
	if message == "" {
		message = envelope.Error
	}
	if message == "" {
		message = response.Status
	}

	var sentinel error
	switch {
	case response.StatusCode == http.StatusUnauthorized:
		sentinel = ErrUnauthenticated
	case response.StatusCode == http.StatusForbidden:
		sentinel = ErrForbidden
	case response.StatusCode == http.StatusNotFound:
		sentinel = ErrNotFound
	case response.StatusCode == http.StatusConflict:
		sentinel = ErrConflict
	case response.StatusCode >= http.StatusInternalServerError:
		sentinel = ErrServer
	default:
		sentinel = ErrValidation
	}
	return fmt.Errorf("%w: %s", sentinel, message)
}
