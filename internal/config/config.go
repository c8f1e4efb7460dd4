package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds relay and peer configuration values.
type Config struct {
	LogLevel string      `mapstructure:"log_level" yaml:"log_level"`
	Relay    RelayConfig `mapstructure:"relay" yaml:"relay"`
	Peer     PeerConfig  `mapstructure:"peer" yaml:"peer"`
}

// RelayConfig configures the relay/matchmaking service.
type RelayConfig struct {
	Addr               string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout  time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	MaxFramesPerMinute int           `mapstructure:"max_frames_per_minute" yaml:"max_frames_per_minute"`
	EventStore         string        `mapstructure:"event_store" yaml:"event_store"`
	DatabasePath       string        `mapstructure:"database_path" yaml:"database_path"`
	JWTSecret          string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTRequired        bool          `mapstructure:"jwt_required" yaml:"jwt_required"`
	JWTIssuer          string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience        string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
}

// PeerConfig configures a game peer.
type PeerConfig struct {
	RelayURL     string        `mapstructure:"relay_url" yaml:"relay_url"`
	Token        string        `mapstructure:"token" yaml:"token"`
	GameVersion  string        `mapstructure:"game_version" yaml:"game_version"`
	LobbyScene   string        `mapstructure:"lobby_scene" yaml:"lobby_scene"`
	MaxPlayers   int           `mapstructure:"max_players" yaml:"max_players"`
	FrameRate    int           `mapstructure:"frame_rate" yaml:"frame_rate"`
	RefreshDelay time.Duration `mapstructure:"refresh_delay" yaml:"refresh_delay"`
	SettleDelay  time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	SpawnPoints  []Point       `mapstructure:"spawn_points" yaml:"spawn_points"`

	Replication ReplicationConfig `mapstructure:"replication" yaml:"replication"`
	Objects     ObjectsConfig     `mapstructure:"objects" yaml:"objects"`
}

// ReplicationConfig tunes remote-side smoothing.
type ReplicationConfig struct {
	SmoothingRate      float64       `mapstructure:"smoothing_rate" yaml:"smoothing_rate"`
	MaxFrameDelta      time.Duration `mapstructure:"max_frame_delta" yaml:"max_frame_delta"`
	RejectStaleSamples bool          `mapstructure:"reject_stale_samples" yaml:"reject_stale_samples"`
}

// ObjectsConfig tunes the shared-object spawn policy.
type ObjectsConfig struct {
	Target        int           `mapstructure:"target" yaml:"target"`
	Interval      time.Duration `mapstructure:"interval" yaml:"interval"`
	PointsValue   int           `mapstructure:"points_value" yaml:"points_value"`
	CollectRadius float64       `mapstructure:"collect_radius" yaml:"collect_radius"`
	Points        []Point       `mapstructure:"points" yaml:"points"`
	UseArea       bool          `mapstructure:"use_area" yaml:"use_area"`
	AreaCenter    Point         `mapstructure:"area_center" yaml:"area_center"`
	AreaSize      Point         `mapstructure:"area_size" yaml:"area_size"`
}

// Point is a position in world space.
type Point struct {
	X float64 `mapstructure:"x" yaml:"x"`
	Y float64 `mapstructure:"y" yaml:"y"`
	Z float64 `mapstructure:"z" yaml:"z"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Relay: RelayConfig{
			Addr:               ":8080",
			ReadHeaderTimeout:  5 * time.Second,
			ShutdownTimeout:    5 * time.Second,
			MaxMessageBytes:    1 << 16,
			MaxFramesPerMinute: 12000,
			EventStore:         "memory",
			DatabasePath:       "peerlink.db",
			JWTIssuer:          "peerlink",
			JWTAudience:        "peerlink",
		},
		Peer: PeerConfig{
			RelayURL:     "ws://localhost:8080/ws",
			GameVersion:  "1.0",
			LobbyScene:   "Lobby",
			MaxPlayers:   4,
			FrameRate:    60,
			RefreshDelay: 500 * time.Millisecond,
			SettleDelay:  500 * time.Millisecond,
			SpawnPoints: []Point{
				{X: 0, Y: 1, Z: 0},
				{X: 5, Y: 1, Z: 5},
				{X: -5, Y: 1, Z: 5},
				{X: 5, Y: 1, Z: -5},
			},
			Replication: ReplicationConfig{
				SmoothingRate:      10,
				MaxFrameDelta:      100 * time.Millisecond,
				RejectStaleSamples: true,
			},
			Objects: ObjectsConfig{
				Target:        5,
				Interval:      3 * time.Second,
				PointsValue:   10,
				CollectRadius: 1,
				AreaSize:      Point{X: 20, Y: 0, Z: 20},
			},
		},
	}
}

// Validate reports the first impossible value.
func (c Config) Validate() error {
	switch c.Relay.EventStore {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("relay.event_store: unknown store %q", c.Relay.EventStore)
	}
	if c.Relay.JWTRequired && c.Relay.JWTSecret == "" {
		return errors.New("relay.jwt_required needs relay.jwt_secret")
	}
	if c.Peer.GameVersion == "" {
		return errors.New("peer.game_version must not be empty")
	}
	if c.Peer.MaxPlayers < 1 || c.Peer.MaxPlayers > 255 {
		return fmt.Errorf("peer.max_players: %d out of range [1,255]", c.Peer.MaxPlayers)
	}
	if c.Peer.FrameRate <= 0 {
		return fmt.Errorf("peer.frame_rate: must be positive, got %d", c.Peer.FrameRate)
	}
	if c.Peer.Replication.SmoothingRate <= 0 {
		return errors.New("peer.replication.smoothing_rate must be positive")
	}
	if c.Peer.Objects.Target < 0 {
		return errors.New("peer.objects.target must not be negative")
	}
	if c.Peer.Objects.Target > 0 && c.Peer.Objects.Interval <= 0 {
		return errors.New("peer.objects.interval must be positive")
	}
	return nil
}

// FrameInterval returns the duration of one simulation frame.
func (p PeerConfig) FrameInterval() time.Duration {
	if p.FrameRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(p.FrameRate)
}
