package scene

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ConfigRecord is the session config carried by a Clear message.
type ConfigRecord struct {
	UseSubFolder         bool   `cbor:"use_sub_folder"`
	ActorUniqueNameIdent string `cbor:"actor_unique_name_ident"`
	AssetUniqueNameIdent string `cbor:"asset_unique_name_ident"`
	ResetMeshAsset       bool   `cbor:"reset_mesh_asset"`
}

// encMode uses core deterministic encoding so equal configs encode to equal
// bytes. decMode ignores unknown keys.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("scene: cbor encoder init: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("scene: cbor decoder init: " + err.Error())
	}
}

func EncodeConfig(c ConfigRecord) ([]byte, error) {
	return encMode.Marshal(c)
}

func DecodeConfig(payload []byte) (ConfigRecord, error) {
	var c ConfigRecord
	if err := decMode.Unmarshal(payload, &c); err != nil {
		return ConfigRecord{}, fmt.Errorf("%w: config: %v", ErrMalformedRecord, err)
	}
	return c, nil
}
