package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "HUDDLE"

// Config is the signaling server configuration.
type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	SendBuffer int           `mapstructure:"send_buffer"`
	RateLimit  RateLimit     `mapstructure:"rate_limit"`
	Storage    Storage       `mapstructure:"storage"`
}

type RateLimit struct {
	Count    int           `mapstructure:"count"`
	Interval time.Duration `mapstructure:"interval"`
}

type Storage struct {
	// Path of the badger directory; empty keeps recordings in memory.
	Path     string `mapstructure:"path"`
	MaxBytes int64  `mapstructure:"max_bytes"`
}

// Peer configures the headless participant.
type Peer struct {
	Server      string        `mapstructure:"server"`
	Session     string        `mapstructure:"session"`
	UserID      string        `mapstructure:"user_id"`
	DisplayName string        `mapstructure:"name"`
	Recorder    bool          `mapstructure:"recorder"`
	Duration    time.Duration `mapstructure:"duration"`
	ICEServers  []string      `mapstructure:"ice_servers"`
	Media       Media         `mapstructure:"media"`
	Recording   Recording     `mapstructure:"recording"`
}

type Media struct {
	ToneHz     float64 `mapstructure:"tone_hz"`
	VideoFile  string  `mapstructure:"video_file"`
	ScreenFile string  `mapstructure:"screen_file"`
}

type Recording struct {
	FPS         int    `mapstructure:"fps"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	JPEGQuality int    `mapstructure:"jpeg_quality"`
	Upload      bool   `mapstructure:"upload"`
	Pipeline    string `mapstructure:"pipeline"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func readFile(v *viper.Viper, kind string) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/%s.%s.yaml", kind, env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}
}

func Load() (*Config, error) {
	v := newViper()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "huddle-dev-secret")
	v.SetDefault("token_ttl", "72h")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("rate_limit.count", 200)
	v.SetDefault("rate_limit.interval", "1s")
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.max_bytes", 256<<20)

	readFile(v, "config")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("storage", cfg.Storage.Path).Msg("server config")
	return &cfg, nil
}

// PeerDefaults registers peer defaults on v. Callers bind CLI flags on top.
func PeerDefaults(v *viper.Viper) {
	v.SetDefault("server", "http://localhost:8080")
	v.SetDefault("session", "lobby")
	v.SetDefault("recorder", false)
	v.SetDefault("duration", "0s")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("media.tone_hz", 440.0)
	v.SetDefault("recording.fps", 10)
	v.SetDefault("recording.width", 640)
	v.SetDefault("recording.height", 480)
	v.SetDefault("recording.jpeg_quality", 75)
	v.SetDefault("recording.upload", true)
	v.SetDefault("recording.pipeline", "log")
}

// NewPeerViper returns a viper instance preloaded with peer defaults,
// the peer config file and HUDDLE_ env overrides.
func NewPeerViper() *viper.Viper {
	v := newViper()
	PeerDefaults(v)
	readFile(v, "peer")
	return v
}

func LoadPeer(v *viper.Viper) (*Peer, error) {
	var cfg Peer
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse peer config: %w", err)
	}
	if cfg.Recording.FPS <= 0 {
		return nil, fmt.Errorf("recording.fps must be positive, got %d", cfg.Recording.FPS)
	}
	if cfg.Recording.Width <= 0 || cfg.Recording.Height <= 0 {
		return nil, fmt.Errorf("recording size %dx%d invalid", cfg.Recording.Width, cfg.Recording.Height)
	}
	return &cfg, nil
}
