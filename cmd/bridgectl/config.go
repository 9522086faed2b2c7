package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/danmuck/scenebridge/internal/config"
)

// bridgectl config.toml keys. Durations may be given either as a Go duration
// string or in milliseconds.
type fileConfig struct {
	Name                 string   `toml:"name"`
	Address              string   `toml:"address"`
	Port                 int      `toml:"port"`
	Scene                string   `toml:"scene"`
	AdminAddr            string   `toml:"admin_addr"`
	CorsOrigins          []string `toml:"cors_origins"`
	AutoPush             string   `toml:"auto_push"`
	ReceivedDir          string   `toml:"received_dir"`
	Codec                string   `toml:"codec"`
	BaseTimeout          string   `toml:"base_timeout"`
	BaseTimeoutMS        int64    `toml:"base_timeout_ms"`
	MaxAttempts          int      `toml:"max_attempts"`
	IdleInterval         string   `toml:"idle_interval"`
	IdleIntervalMS       int64    `toml:"idle_interval_ms"`
	DialTimeoutMS        int64    `toml:"dial_timeout_ms"`
	UnitScale            float64  `toml:"unit_scale"`
	AssetReset           bool     `toml:"asset_reset"`
	UseSubFolder         bool     `toml:"use_sub_folder"`
	ActorUniqueNameIdent string   `toml:"actor_unique_name_ident"`
	AssetUniqueNameIdent string   `toml:"asset_unique_name_ident"`
}

// envOverrides apply after the file. Unset variables leave the file value.
type envOverrides struct {
	Address   *string `env:"SCENEBRIDGE_ADDRESS"`
	Port      *int    `env:"SCENEBRIDGE_PORT"`
	Scene     *string `env:"SCENEBRIDGE_SCENE"`
	AdminAddr *string `env:"SCENEBRIDGE_ADMIN_ADDR"`
	AutoPush  *string `env:"SCENEBRIDGE_AUTO_PUSH"`
	Codec     *string `env:"SCENEBRIDGE_CODEC"`
}

func loadBridgeConfig(path string) (config.BridgeConfig, error) {
	cfg := config.DefaultBridgeConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.BridgeConfig{}, fmt.Errorf("load bridge config: %w", err)
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}
	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("scene") {
		cfg.Scene = strings.TrimSpace(raw.Scene)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	if meta.IsDefined("auto_push") {
		cfg.AutoPush = strings.ToLower(strings.TrimSpace(raw.AutoPush))
	}
	if meta.IsDefined("received_dir") {
		cfg.ReceivedDir = strings.TrimSpace(raw.ReceivedDir)
	}
	if meta.IsDefined("codec") {
		cfg.Codec = strings.TrimSpace(raw.Codec)
	}

	if meta.IsDefined("base_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.BaseTimeout))
		if err != nil {
			return config.BridgeConfig{}, fmt.Errorf("parse base_timeout: %w", err)
		}
		cfg.BaseTimeoutMS = d.Milliseconds()
	}
	if meta.IsDefined("base_timeout_ms") {
		cfg.BaseTimeoutMS = raw.BaseTimeoutMS
	}
	if meta.IsDefined("max_attempts") {
		cfg.MaxAttempts = raw.MaxAttempts
	}
	if meta.IsDefined("idle_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.IdleInterval))
		if err != nil {
			return config.BridgeConfig{}, fmt.Errorf("parse idle_interval: %w", err)
		}
		cfg.IdleIntervalMS = d.Milliseconds()
	}
	if meta.IsDefined("idle_interval_ms") {
		cfg.IdleIntervalMS = raw.IdleIntervalMS
	}
	if meta.IsDefined("dial_timeout_ms") {
		cfg.DialTimeoutMS = raw.DialTimeoutMS
	}

	if meta.IsDefined("unit_scale") {
		cfg.UnitScale = float32(raw.UnitScale)
	}
	if meta.IsDefined("asset_reset") {
		cfg.AssetReset = raw.AssetReset
	}
	if meta.IsDefined("use_sub_folder") {
		cfg.UseSubFolder = raw.UseSubFolder
	}
	if meta.IsDefined("actor_unique_name_ident") {
		cfg.ActorUniqueNameIdent = strings.TrimSpace(raw.ActorUniqueNameIdent)
	}
	if meta.IsDefined("asset_unique_name_ident") {
		cfg.AssetUniqueNameIdent = strings.TrimSpace(raw.AssetUniqueNameIdent)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config.BridgeConfig{}, fmt.Errorf("load bridge config: unknown key %q", undecoded[0].String())
	}
	return cfg, nil
}

func applyEnv(cfg *config.BridgeConfig) error {
	var over envOverrides
	if err := env.Parse(&over); err != nil {
		return fmt.Errorf("parse env overrides: %w", err)
	}
	if over.Address != nil {
		cfg.Address = strings.TrimSpace(*over.Address)
	}
	if over.Port != nil {
		cfg.Port = *over.Port
	}
	if over.Scene != nil {
		cfg.Scene = strings.TrimSpace(*over.Scene)
	}
	if over.AdminAddr != nil {
		cfg.AdminAddr = strings.TrimSpace(*over.AdminAddr)
	}
	if over.AutoPush != nil {
		cfg.AutoPush = strings.ToLower(strings.TrimSpace(*over.AutoPush))
	}
	if over.Codec != nil {
		cfg.Codec = strings.TrimSpace(*over.Codec)
	}
	return nil
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
