package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "PEERLINK_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix("PEERLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, configPath, fmt.Errorf("validate config: %w", err)
	}

	return cfg, configPath, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetDefault("relay.addr", cfg.Relay.Addr)
	v.SetDefault("relay.read_header_timeout", cfg.Relay.ReadHeaderTimeout)
	v.SetDefault("relay.shutdown_timeout", cfg.Relay.ShutdownTimeout)
	v.SetDefault("relay.max_message_bytes", cfg.Relay.MaxMessageBytes)
	v.SetDefault("relay.max_frames_per_minute", cfg.Relay.MaxFramesPerMinute)
	v.SetDefault("relay.event_store", cfg.Relay.EventStore)
	v.SetDefault("relay.database_path", cfg.Relay.DatabasePath)
	v.SetDefault("relay.jwt_secret", cfg.Relay.JWTSecret)
	v.SetDefault("relay.jwt_required", cfg.Relay.JWTRequired)
	v.SetDefault("relay.jwt_issuer", cfg.Relay.JWTIssuer)
	v.SetDefault("relay.jwt_audience", cfg.Relay.JWTAudience)

	v.SetDefault("peer.relay_url", cfg.Peer.RelayURL)
	v.SetDefault("peer.token", cfg.Peer.Token)
	v.SetDefault("peer.game_version", cfg.Peer.GameVersion)
	v.SetDefault("peer.lobby_scene", cfg.Peer.LobbyScene)
	v.SetDefault("peer.max_players", cfg.Peer.MaxPlayers)
	v.SetDefault("peer.frame_rate", cfg.Peer.FrameRate)
	v.SetDefault("peer.refresh_delay", cfg.Peer.RefreshDelay)
	v.SetDefault("peer.settle_delay", cfg.Peer.SettleDelay)
	v.SetDefault("peer.replication.smoothing_rate", cfg.Peer.Replication.SmoothingRate)
	v.SetDefault("peer.replication.max_frame_delta", cfg.Peer.Replication.MaxFrameDelta)
	v.SetDefault("peer.replication.reject_stale_samples", cfg.Peer.Replication.RejectStaleSamples)
	v.SetDefault("peer.objects.target", cfg.Peer.Objects.Target)
	v.SetDefault("peer.objects.interval", cfg.Peer.Objects.Interval)
	v.SetDefault("peer.objects.points_value", cfg.Peer.Objects.PointsValue)
	v.SetDefault("peer.objects.collect_radius", cfg.Peer.Objects.CollectRadius)
	v.SetDefault("peer.objects.use_area", cfg.Peer.Objects.UseArea)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
