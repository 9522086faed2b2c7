package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/scenebridge/internal/protocol/frame"
	"github.com/pelletier/go-toml/v2"
)

// BridgeConfig is the file form of a bridgectl process.
type BridgeConfig struct {
	Name        string   `toml:"name"`
	Address     string   `toml:"address"`
	Port        int      `toml:"port"`
	Scene       string   `toml:"scene"`
	AdminAddr   string   `toml:"admin_addr"`
	CorsOrigins []string `toml:"cors_origins"`
	// AutoPush is "", "all" or "selected".
	AutoPush    string `toml:"auto_push"`
	ReceivedDir string `toml:"received_dir"`
	Codec       string `toml:"codec"`

	BaseTimeoutMS  int64 `toml:"base_timeout_ms"`
	MaxAttempts    int   `toml:"max_attempts"`
	IdleIntervalMS int64 `toml:"idle_interval_ms"`
	DialTimeoutMS  int64 `toml:"dial_timeout_ms"`

	UnitScale  float32 `toml:"unit_scale"`
	AssetReset bool    `toml:"asset_reset"`

	UseSubFolder         bool   `toml:"use_sub_folder"`
	ActorUniqueNameIdent string `toml:"actor_unique_name_ident"`
	AssetUniqueNameIdent string `toml:"asset_unique_name_ident"`
}

// PeerConfig is the file form of a scenepeer process.
type PeerConfig struct {
	Name    string `toml:"name"`
	Listen  string `toml:"listen"`
	Codec   string `toml:"codec"`
	Scene   string `toml:"scene"`
	DumpDir string `toml:"dump_dir"`
}

func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Name:           "scenebridge",
		Address:        "127.0.0.1",
		Port:           12000,
		AdminAddr:      "127.0.0.1:7400",
		Codec:          frame.CodecBG4LZ4.String(),
		BaseTimeoutMS:  2500,
		MaxAttempts:    3,
		IdleIntervalMS: 500,
		DialTimeoutMS:  2000,
		UnitScale:      100,
	}
}

func DefaultPeerConfig() PeerConfig {
	return PeerConfig{
		Name:   "scenepeer",
		Listen: "127.0.0.1:12000",
		Codec:  frame.CodecBG4LZ4.String(),
	}
}

func LoadBridgeConfig(path string) (BridgeConfig, error) {
	cfg := DefaultBridgeConfig()
	if err := loadToml(path, &cfg); err != nil {
		return BridgeConfig{}, err
	}
	if err := ValidateBridgeConfig(cfg); err != nil {
		return BridgeConfig{}, err
	}
	return cfg, nil
}

func LoadPeerConfig(path string) (PeerConfig, error) {
	cfg := DefaultPeerConfig()
	if err := loadToml(path, &cfg); err != nil {
		return PeerConfig{}, err
	}
	if err := ValidatePeerConfig(cfg); err != nil {
		return PeerConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateBridgeConfig(cfg BridgeConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("bridge config missing name")
	}
	if strings.TrimSpace(cfg.Address) == "" {
		return fmt.Errorf("bridge config missing address")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("bridge config port out of range: %d", cfg.Port)
	}
	if _, err := frame.ParseCodec(cfg.Codec); err != nil {
		return fmt.Errorf("bridge config codec: %w", err)
	}
	if cfg.BaseTimeoutMS <= 0 {
		return fmt.Errorf("bridge config base_timeout_ms must be positive")
	}
	if cfg.MaxAttempts < 1 {
		return fmt.Errorf("bridge config max_attempts must be at least 1")
	}
	if cfg.IdleIntervalMS < 0 || cfg.DialTimeoutMS < 0 {
		return fmt.Errorf("bridge config intervals must not be negative")
	}
	if cfg.UnitScale <= 0 {
		return fmt.Errorf("bridge config unit_scale must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.AutoPush)) {
	case "", "all", "selected":
	default:
		return fmt.Errorf("bridge config auto_push must be all or selected: %q", cfg.AutoPush)
	}
	if strings.TrimSpace(cfg.AutoPush) != "" && strings.TrimSpace(cfg.Scene) == "" {
		return fmt.Errorf("bridge config auto_push requires a scene")
	}
	return nil
}

func ValidatePeerConfig(cfg PeerConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("peer config missing name")
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("peer config missing listen")
	}
	if _, err := frame.ParseCodec(cfg.Codec); err != nil {
		return fmt.Errorf("peer config codec: %w", err)
	}
	return nil
}
