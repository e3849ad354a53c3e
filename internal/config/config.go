package config

import (
	pkgconfig "github.com/BrickBench/AutoMarathon/pkg/config"
	pkglog "github.com/BrickBench/AutoMarathon/pkg/log"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig
	Log      pkglog.Config
	Store    StoreConfig
	Session  SessionConfig
	Resolver ResolverConfig
	Ingest   IngestConfig
	Voice    VoiceConfig
	Hosts    map[string]HostConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type StoreConfig struct {
	FilePath string `mapstructure:"file_path"`
}

type SessionConfig struct {
	Secret          string
	TokenTTLMinutes int `mapstructure:"token_ttl_minutes"`
}

type ResolverConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type IngestConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	RingSeconds int    `mapstructure:"ring_seconds"`
}

type VoiceConfig struct {
	TransmitDFT bool `mapstructure:"transmit_dft"`
}

// HostConfig is one compositor host's connection block.
type HostConfig struct {
	Endpoint     string
	Password     string
	AudioSink    string `mapstructure:"audio_sink"`
	VoiceGateway string `mapstructure:"voice_gateway"`
	VoiceUDP     string `mapstructure:"voice_udp"`
	EnableVoice  bool   `mapstructure:"enable_voice"`
}

// Load reads the YAML file (if any) plus AM_-prefixed environment
// overrides into a Config.
func Load(configFile string) (*Config, error) {
	v, err := pkgconfig.Load(configFile)
	if err != nil {
		return nil, err
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 28010)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("store.file_path", "./data/automarathon.db")
	v.SetDefault("session.secret", "")
	v.SetDefault("session.token_ttl_minutes", 720)
	v.SetDefault("resolver.base_url", "http://localhost:28011")
	v.SetDefault("resolver.timeout_seconds", 10)
	v.SetDefault("ingest.ffmpeg_path", "ffmpeg")
	v.SetDefault("ingest.ring_seconds", 2)
	v.SetDefault("voice.transmit_dft", false)

	v.BindEnv("server.port", "AM_PORT")
	v.BindEnv("log.level", "AM_LOG")
	v.BindEnv("session.secret", "AM_SESSION_SECRET")
	v.BindEnv("store.file_path", "AM_STORE_FILE_PATH")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
