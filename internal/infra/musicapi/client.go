// Package musicapi provides a client for the streaming catalogue API.
package musicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/yshino/melodeck/internal/domain/playlist"
	"github.com/yshino/melodeck/internal/domain/song"
)

// ErrUnauthorized is returned when the session is missing or expired.
var ErrUnauthorized = errors.New("unauthorized")

const envelopeCodeOK = 200

// songCacheEntry represents a cached song lookup.
type songCacheEntry struct {
	song song.Song
}

// Client is a catalogue API client. Authentication is a session cookie
// captured by the jar on login and replayed on every request.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	// Cache for song lookups by ID
	songCache map[string]*songCacheEntry
	// Mutex for cache access
	cacheMu sync.RWMutex
}

// Config represents catalogue client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates a new catalogue client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("catalogue base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse base URL")
	}
	if !base.IsAbs() {
		return nil, errors.Newf("catalogue base URL must be absolute: %s", cfg.BaseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cookie jar")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		songCache: make(map[string]*songCacheEntry),
	}, nil
}

// Login authenticates and stores the session cookie for later requests.
func (c *Client) Login(ctx context.Context, username, password string) (User, error) {
	if username == "" || password == "" {
		return User{}, errors.New("username and password are required")
	}

	payload := map[string]string{
		"username": username,
		"password": password,
	}
	var dto userDTO
	if err := c.post(ctx, "/user/login", payload, &dto); err != nil {
		return User{}, err
	}

	zlog.Info().Msgf("logged in to catalogue as %s", username)
	return User{
		ID:       strconv.FormatInt(dto.ID, 10),
		Username: dto.Username,
		Nickname: dto.Nickname,
	}, nil
}

// Logout drops the server-side session.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/user/logout", nil, nil)
}

// CurrentUser returns the user bound to the current session.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var dto userDTO
	if err := c.get(ctx, "/user/me", nil, &dto); err != nil {
		return User{}, err
	}
	return User{
		ID:       strconv.FormatInt(dto.ID, 10),
		Username: dto.Username,
		Nickname: dto.Nickname,
	}, nil
}

// Songs retrieves one page of the catalogue.
func (c *Client) Songs(ctx context.Context, page, size int64) (SongPage, error) {
	params := url.Values{}
	params.Set("current", strconv.FormatInt(page, 10))
	params.Set("size", strconv.FormatInt(size, 10))

	var dto songPageDTO
	if err := c.get(ctx, "/song/page", params, &dto); err != nil {
		return SongPage{}, err
	}
	return SongPage{
		Songs:   toSongs(dto.Records, c.baseURL),
		Total:   dto.Total,
		Current: dto.Current,
		Size:    dto.Size,
	}, nil
}

// SearchSongs searches the catalogue by title or artist.
func (c *Client) SearchSongs(ctx context.Context, keyword string, page, size int64) (SongPage, error) {
	if keyword == "" {
		return SongPage{}, errors.New("search keyword is required")
	}

	params := url.Values{}
	params.Set("keyword", keyword)
	params.Set("current", strconv.FormatInt(page, 10))
	params.Set("size", strconv.FormatInt(size, 10))

	var dto songPageDTO
	if err := c.get(ctx, "/song/search", params, &dto); err != nil {
		return SongPage{}, err
	}
	return SongPage{
		Songs:   toSongs(dto.Records, c.baseURL),
		Total:   dto.Total,
		Current: dto.Current,
		Size:    dto.Size,
	}, nil
}

// HotSongs retrieves the most played songs.
func (c *Client) HotSongs(ctx context.Context, limit int) ([]song.Song, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	var dtos []songDTO
	if err := c.get(ctx, "/song/hot", params, &dtos); err != nil {
		return nil, err
	}
	return toSongs(dtos, c.baseURL), nil
}

// LatestSongs retrieves the most recently added songs.
func (c *Client) LatestSongs(ctx context.Context, limit int) ([]song.Song, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	var dtos []songDTO
	if err := c.get(ctx, "/song/latest", params, &dtos); err != nil {
		return nil, err
	}
	return toSongs(dtos, c.baseURL), nil
}

// SongsBySinger retrieves one page of a singer's songs.
func (c *Client) SongsBySinger(ctx context.Context, singer string, page, size int64) (SongPage, error) {
	if singer == "" {
		return SongPage{}, errors.New("singer name is required")
	}

	params := url.Values{}
	params.Set("name", singer)
	params.Set("current", strconv.FormatInt(page, 10))
	params.Set("size", strconv.FormatInt(size, 10))

	var dto songPageDTO
	if err := c.get(ctx, "/song/singer", params, &dto); err != nil {
		return SongPage{}, err
	}
	return SongPage{
		Songs:   toSongs(dto.Records, c.baseURL),
		Total:   dto.Total,
		Current: dto.Current,
		Size:    dto.Size,
	}, nil
}

// SongByID retrieves a single song.
func (c *Client) SongByID(ctx context.Context, id string) (song.Song, error) {
	if id == "" {
		return song.Song{}, errors.New("song id is required")
	}

	// Check cache first
	c.cacheMu.RLock()
	if entry, ok := c.songCache[id]; ok {
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("using cached song: %s", id)
		return entry.song, nil
	}
	c.cacheMu.RUnlock()

	params := url.Values{}
	params.Set("id", id)

	var dto songDTO
	if err := c.get(ctx, "/song/detail", params, &dto); err != nil {
		return song.Song{}, err
	}
	sg := toSong(dto, c.baseURL)

	// Cache the result
	c.cacheMu.Lock()
	c.songCache[id] = &songCacheEntry{song: sg}
	c.cacheMu.Unlock()

	return sg, nil
}

// ReportPlay notifies the server that a song started playing. Play counts
// feed the hot listing; failures are the caller's to ignore.
func (c *Client) ReportPlay(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("song id is required")
	}
	return c.post(ctx, "/song/play/"+url.PathEscape(id), nil, nil)
}

// PlaylistByID retrieves a playlist with its songs.
func (c *Client) PlaylistByID(ctx context.Context, id string) (playlist.Playlist, error) {
	if id == "" {
		return playlist.Playlist{}, errors.New("playlist id is required")
	}

	params := url.Values{}
	params.Set("id", id)

	var dto playlistDTO
	if err := c.get(ctx, "/playlist/detail", params, &dto); err != nil {
		return playlist.Playlist{}, err
	}
	return toPlaylist(dto, c.baseURL), nil
}

// Playlists retrieves one page of public playlists.
func (c *Client) Playlists(ctx context.Context, page, size int64) (PlaylistPage, error) {
	params := url.Values{}
	params.Set("current", strconv.FormatInt(page, 10))
	params.Set("size", strconv.FormatInt(size, 10))

	var dto playlistPageDTO
	if err := c.get(ctx, "/playlist/page", params, &dto); err != nil {
		return PlaylistPage{}, err
	}

	playlists := make([]playlist.Playlist, 0, len(dto.Records))
	for _, p := range dto.Records {
		playlists = append(playlists, toPlaylist(p, c.baseURL))
	}
	return PlaylistPage{
		Playlists: playlists,
		Total:     dto.Total,
		Current:   dto.Current,
		Size:      dto.Size,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.endpoint(path)
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "failed to encode request body")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint(path), body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// do sends the request and unwraps the response envelope into out.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("unexpected status %d from %s", resp.StatusCode, req.URL.Path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	if env.Code != envelopeCodeOK {
		if env.Code == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return errors.Newf("catalogue API error %d: %s", env.Code, env.Message)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.Wrap(err, "failed to parse response data")
	}
	return nil
}

// endpoint appends an API path to the base URL, preserving any path prefix
// the base carries.
func (c *Client) endpoint(path string) string {
	return strings.TrimSuffix(c.baseURL.String(), "/") + path
}
