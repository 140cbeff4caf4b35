package musicapi

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/yshino/melodeck/internal/domain/playlist"
	"github.com/yshino/melodeck/internal/domain/song"
)

// envelope is the wrapper every server response carries.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// songDTO mirrors the server's song resource.
type songDTO struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	SingerName string `json:"singerName"`
	AlbumName  string `json:"albumName"`
	CoverURL   string `json:"coverUrl"`
	AudioURL   string `json:"audioUrl"`
	Lyric      string `json:"lyric"`
	Duration   int    `json:"duration"` // seconds
	CreateTime string `json:"createTime"`
}

// songPageDTO mirrors the server's paginated song listing.
type songPageDTO struct {
	Records []songDTO `json:"records"`
	Total   int64     `json:"total"`
	Current int64     `json:"current"`
	Size    int64     `json:"size"`
}

// playlistDTO mirrors the server's playlist resource.
type playlistDTO struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CoverURL    string    `json:"coverUrl"`
	CreateBy    string    `json:"createBy"`
	Public      bool      `json:"public"`
	Songs       []songDTO `json:"songs"`
}

// playlistPageDTO mirrors the server's paginated playlist listing.
type playlistPageDTO struct {
	Records []playlistDTO `json:"records"`
	Total   int64         `json:"total"`
	Current int64         `json:"current"`
	Size    int64         `json:"size"`
}

// userDTO mirrors the session user returned by login.
type userDTO struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
}

// User is an authenticated catalogue user.
type User struct {
	ID       string
	Username string
	Nickname string
}

// SongPage is one page of catalogue songs.
type SongPage struct {
	Songs   []song.Song
	Total   int64
	Current int64
	Size    int64
}

// PlaylistPage is one page of catalogue playlists.
type PlaylistPage struct {
	Playlists []playlist.Playlist
	Total     int64
	Current   int64
	Size      int64
}

// toSong converts a server song. Relative media URLs are resolved against
// the API base so the audio backend can fetch them directly.
func toSong(d songDTO, base *url.URL) song.Song {
	added, _ := time.Parse("2006-01-02 15:04:05", d.CreateTime)
	return song.Song{
		ID:        strconv.FormatInt(d.ID, 10),
		Title:     d.Name,
		Artist:    d.SingerName,
		Album:     d.AlbumName,
		Duration:  time.Duration(d.Duration) * time.Second,
		CoverURL:  resolveURL(base, d.CoverURL),
		AudioURL:  resolveURL(base, d.AudioURL),
		Lyrics:    d.Lyric,
		DateAdded: added,
	}
}

func toSongs(dtos []songDTO, base *url.URL) []song.Song {
	songs := make([]song.Song, 0, len(dtos))
	for _, d := range dtos {
		songs = append(songs, toSong(d, base))
	}
	return songs
}

func toPlaylist(d playlistDTO, base *url.URL) playlist.Playlist {
	return playlist.Playlist{
		ID:          strconv.FormatInt(d.ID, 10),
		Name:        d.Name,
		Description: d.Description,
		CoverURL:    resolveURL(base, d.CoverURL),
		CreatedBy:   d.CreateBy,
		Public:      d.Public,
		Songs:       toSongs(d.Songs, base),
	}
}

func resolveURL(base *url.URL, raw string) string {
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if ref.IsAbs() {
		return raw
	}
	return base.ResolveReference(ref).String()
}
