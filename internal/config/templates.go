package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "bridge":
		return bridgeTemplate, nil
	case "peer":
		return peerTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const bridgeTemplate = `name = "scenebridge"
address = "127.0.0.1"
port = 12000
scene = "scene.yaml"
admin_addr = "127.0.0.1:7400"
cors_origins = ["http://localhost:3000"]
auto_push = ""
received_dir = ""
codec = "bg4_lz4"

base_timeout_ms = 2500
max_attempts = 3
idle_interval_ms = 500
dial_timeout_ms = 2000

unit_scale = 100.0
asset_reset = false

use_sub_folder = false
actor_unique_name_ident = ""
asset_unique_name_ident = ""
`

const peerTemplate = `name = "scenepeer"
listen = "127.0.0.1:12000"
codec = "bg4_lz4"
scene = ""
dump_dir = ""
`
