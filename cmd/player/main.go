// Package main provides the player CLI entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/yshino/melodeck/internal/app/player"
	"github.com/yshino/melodeck/internal/domain/song"
	"github.com/yshino/melodeck/internal/infra/audio"
	"github.com/yshino/melodeck/internal/infra/config"
	"github.com/yshino/melodeck/internal/infra/logger"
	"github.com/yshino/melodeck/internal/infra/musicapi"
)

var (
	app        = kingpin.New("melodeck", "melodeck streaming playback client")
	configPath = app.Flag("config", "Path to config file").Default("config/player.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// play command (default)
	playCmd      = app.Command("play", "Queue songs and start playback (default)").Default()
	playPlaylist = playCmd.Flag("playlist", "Playlist ID to queue").String()
	playSearch   = playCmd.Flag("search", "Queue songs matching a keyword").String()
	playHot      = playCmd.Flag("hot", "Queue the most played songs").Bool()
	playLatest   = playCmd.Flag("latest", "Queue the most recently added songs").Bool()
	playLimit    = playCmd.Flag("limit", "Maximum songs to queue").Default("20").Int()

	// search command
	searchCmd     = app.Command("search", "Search the catalogue and print results")
	searchKeyword = searchCmd.Arg("keyword", "Search keyword").Required().String()

	// hot command
	hotCmd   = app.Command("hot", "Print the most played songs")
	hotLimit = hotCmd.Flag("limit", "Maximum songs to print").Default("20").Int()

	// playlists command
	playlistsCmd = app.Command("playlists", "Print public playlists")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	client, err := newClient(cfg)
	if err != nil {
		zlog.Fatal().Msgf("Failed to create catalogue client: %v", err)
	}

	ctx := context.Background()

	switch command {
	case playCmd.FullCommand():
		if err := runPlay(ctx, cfg, client); err != nil {
			zlog.Error().Msgf("Playback error: %v", err)
			os.Exit(1)
		}
	case searchCmd.FullCommand():
		runSearch(ctx, client, *searchKeyword)
	case hotCmd.FullCommand():
		runHot(ctx, client, *hotLimit)
	case playlistsCmd.FullCommand():
		runPlaylists(ctx, client)
	}
}

func newClient(cfg *config.Config) (*musicapi.Client, error) {
	client, err := musicapi.New(musicapi.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: time.Duration(cfg.API.TimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	if cfg.API.Username != "" {
		user, err := client.Login(context.Background(), cfg.API.Username, cfg.API.Password)
		if err != nil {
			return nil, err
		}
		zlog.Debug().Msgf("session established for user %s", user.Username)
	}
	return client, nil
}

// queueSongs resolves the play command's source flags into a queue.
func queueSongs(ctx context.Context, client *musicapi.Client) ([]song.Song, error) {
	switch {
	case *playPlaylist != "":
		pl, err := client.PlaylistByID(ctx, *playPlaylist)
		if err != nil {
			return nil, err
		}
		return pl.Songs, nil
	case *playSearch != "":
		page, err := client.SearchSongs(ctx, *playSearch, 1, int64(*playLimit))
		if err != nil {
			return nil, err
		}
		return page.Songs, nil
	case *playHot:
		return client.HotSongs(ctx, *playLimit)
	case *playLatest:
		return client.LatestSongs(ctx, *playLimit)
	default:
		page, err := client.Songs(ctx, 1, int64(*playLimit))
		if err != nil {
			return nil, err
		}
		return page.Songs, nil
	}
}

func runPlay(ctx context.Context, cfg *config.Config, client *musicapi.Client) error {
	songs, err := queueSongs(ctx, client)
	if err != nil {
		return err
	}
	if len(songs) == 0 {
		fmt.Println("Nothing to play.")
		return nil
	}

	factory, err := audio.NewFactoryFromConfig(cfg.Audio.Backend, cfg.Audio.Settings)
	if err != nil {
		return err
	}

	mode, err := cfg.PlayMode()
	if err != nil {
		return err
	}

	store := player.NewStore()
	store.SetVolume(cfg.Player.Volume)
	store.SetPlayMode(mode)

	engine := player.NewEngine(store, factory, player.Config{
		ProgressInterval: time.Duration(cfg.Player.ProgressIntervalMs) * time.Millisecond,
	})
	defer engine.Close()

	done := make(chan struct{})
	go consumeEvents(engine, client, done)

	// Track changes come from the state container, not the event stream, so
	// the line prints as soon as a song is bound rather than when audio starts.
	var trackMu sync.Mutex
	var lastTrackID string
	subID := store.Subscribe(func(st player.State) {
		if st.CurrentSong == nil {
			return
		}
		trackMu.Lock()
		changed := st.CurrentSong.ID != lastTrackID
		if changed {
			lastTrackID = st.CurrentSong.ID
		}
		trackMu.Unlock()
		if changed {
			fmt.Printf("▶ %s — %s (%s)\n", st.CurrentSong.Title, st.CurrentSong.Artist, st.CurrentSong.DurationLabel())
		}
	})
	defer store.Unsubscribe(subID)

	fmt.Printf("Queued %d songs (%s mode). Type 'help' for commands.\n", len(songs), mode)
	store.SetPlaylist(songs, 0)
	engine.PlayAt(0)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go readLines(lines)

	for {
		select {
		case <-sigCh:
			fmt.Println()
			return nil
		case <-done:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleCommand(engine, line); quit {
				return nil
			}
		}
	}
}

func readLines(out chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
	close(out)
}

// consumeEvents prints playback transitions and reports plays back to the
// catalogue so the hot listing stays meaningful.
func consumeEvents(engine *player.Engine, client *musicapi.Client, done chan<- struct{}) {
	for ev := range engine.Events() {
		switch ev.Type {
		case player.EventTrackStarted:
			if ev.Song != nil {
				if err := client.ReportPlay(context.Background(), ev.Song.ID); err != nil {
					zlog.Debug().Msgf("failed to report play: %v", err)
				}
			}
		case player.EventTrackPaused:
			fmt.Println("⏸ Paused")
		case player.EventTrackResumed:
			fmt.Println("▶ Resumed")
		case player.EventStopped:
			fmt.Println("⏹ Stopped")
		case player.EventLoadFailed, player.EventPlayFailed:
			if ev.Err != nil {
				fmt.Printf("✗ %v\n", ev.Err)
			}
		}
	}
	close(done)
}

func handleCommand(engine *player.Engine, line string) bool {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return false
	}

	store := engine.Store()
	switch fields[0] {
	case "p", "pause":
		engine.TogglePlayPause()
	case "n", "next":
		engine.PlayNext()
	case "b", "prev":
		engine.PlayPrevious()
	case "s", "stop":
		engine.Stop()
	case "m", "mute":
		engine.ToggleMute()
	case "v", "volume":
		if len(fields) < 2 {
			fmt.Printf("volume: %.2f\n", store.Snapshot().Volume)
			return false
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			fmt.Println("usage: volume <0..1>")
			return false
		}
		engine.SetVolume(v)
	case "seek":
		if len(fields) < 2 {
			fmt.Println("usage: seek <seconds>")
			return false
		}
		sec, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			fmt.Println("usage: seek <seconds>")
			return false
		}
		engine.Seek(sec)
	case "mode":
		if len(fields) < 2 {
			fmt.Printf("mode: %s\n", store.Snapshot().PlayMode)
			return false
		}
		mode, err := player.ParsePlayMode(fields[1])
		if err != nil {
			fmt.Println("usage: mode sequential|shuffle|repeat_one|repeat_all")
			return false
		}
		engine.SetPlayMode(mode)
	case "ls", "list":
		printQueue(store.Snapshot())
	case "st", "status":
		printStatus(store.Snapshot())
	case "q", "quit", "exit":
		return true
	case "help":
		fmt.Println("commands: p(ause) n(ext) b/prev s(top) m(ute) v(olume) seek mode ls st q(uit)")
	default:
		fmt.Printf("unknown command: %s (try 'help')\n", fields[0])
	}
	return false
}

func printQueue(st player.State) {
	if len(st.Playlist) == 0 {
		fmt.Println("Queue is empty.")
		return
	}
	for i, sg := range st.Playlist {
		marker := "  "
		if i == st.CurrentIndex {
			marker = "> "
		}
		fmt.Printf("%s%3d  %-40s %-24s %s\n", marker, i+1, sg.Title, sg.Artist, sg.DurationLabel())
	}
}

func printStatus(st player.State) {
	if st.CurrentSong == nil {
		fmt.Println("Nothing playing.")
		return
	}
	state := "paused"
	if st.IsPlaying {
		state = "playing"
	}
	fmt.Printf("%s — %s [%s] %s / %s  volume %.2f  mode %s\n",
		st.CurrentSong.Title, st.CurrentSong.Artist, state,
		formatSeconds(st.CurrentTime), formatSeconds(st.Duration),
		st.Volume, st.PlayMode)
}

func formatSeconds(sec float64) string {
	d := time.Duration(sec * float64(time.Second)).Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", m, s)
}

func runSearch(ctx context.Context, client *musicapi.Client, keyword string) {
	page, err := client.SearchSongs(ctx, keyword, 1, 25)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if len(page.Songs) == 0 {
		fmt.Println("No results.")
		return
	}
	printSongs(page.Songs)
	fmt.Printf("%d of %d results\n", len(page.Songs), page.Total)
}

func runHot(ctx context.Context, client *musicapi.Client, limit int) {
	songs, err := client.HotSongs(ctx, limit)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printSongs(songs)
}

func runPlaylists(ctx context.Context, client *musicapi.Client) {
	page, err := client.Playlists(ctx, 1, 25)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if len(page.Playlists) == 0 {
		fmt.Println("No playlists.")
		return
	}
	for _, pl := range page.Playlists {
		fmt.Printf("%-8s %-32s %3d songs  %s\n", pl.ID, pl.Name, len(pl.Songs), pl.CreatedBy)
	}
}

func printSongs(songs []song.Song) {
	for i, sg := range songs {
		fmt.Printf("%3d  %-8s %-40s %-24s %s\n", i+1, sg.ID, sg.Title, sg.Artist, sg.DurationLabel())
	}
}
