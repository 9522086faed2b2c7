package config

import (
	"strings"
	"time"

	"github.com/danmuck/scenebridge/internal/bridge"
	"github.com/danmuck/scenebridge/internal/protocol/frame"
	"github.com/danmuck/scenebridge/internal/scene"
)

// ControllerConfig maps a validated bridge config onto controller defaults.
func (c BridgeConfig) ControllerConfig() (bridge.ControllerConfig, error) {
	out := bridge.DefaultControllerConfig()
	codec, err := frame.ParseCodec(c.Codec)
	if err != nil {
		return bridge.ControllerConfig{}, err
	}
	out.Address = strings.TrimSpace(c.Address)
	out.Port = c.Port
	out.Codec = codec
	out.Session.BaseTimeout = time.Duration(c.BaseTimeoutMS) * time.Millisecond
	out.Session.MaxAttempts = c.MaxAttempts
	out.Session.IdleInterval = time.Duration(c.IdleIntervalMS) * time.Millisecond
	if c.DialTimeoutMS > 0 {
		out.Session.DialTimeout = time.Duration(c.DialTimeoutMS) * time.Millisecond
	}
	out.Coords.UnitScale = c.UnitScale
	out.Coords.AssetReset = c.AssetReset
	out.Scene = scene.ConfigRecord{
		UseSubFolder:         c.UseSubFolder,
		ActorUniqueNameIdent: c.ActorUniqueNameIdent,
		AssetUniqueNameIdent: c.AssetUniqueNameIdent,
		ResetMeshAsset:       c.AssetReset,
	}
	return out, nil
}
