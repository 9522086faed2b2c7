// Package coords reconciles the geometric conventions of the two peers.
//
// The local side is left-handed, Z-up, centimetres. The remote side uses the
// neutral convention: the up-axis component has the opposite sign, units are
// metres, and V texture coordinates run the other way. Meshes imported with
// asset reset enabled additionally carry a quarter turn about X that has to be
// baked into vertex data instead of node transforms.
package coords

import "sync/atomic"

// Config holds the converter constants.
type Config struct {
	AssetReset bool
	// UnitScale is local units per remote unit.
	UnitScale float32
}

func DefaultConfig() Config {
	return Config{UnitScale: 100}
}

// Converter is safe for concurrent use. The asset-reset flag may be changed
// by inbound session config while pushes read it.
type Converter struct {
	assetReset atomic.Bool
	scale      float32
}

func New(cfg Config) *Converter {
	if cfg.UnitScale <= 0 {
		cfg.UnitScale = DefaultConfig().UnitScale
	}
	c := &Converter{scale: cfg.UnitScale}
	c.assetReset.Store(cfg.AssetReset)
	return c
}

func (c *Converter) AssetReset() bool {
	return c.assetReset.Load()
}

func (c *Converter) SetAssetReset(v bool) {
	c.assetReset.Store(v)
}

func (c *Converter) UnitScale() float32 {
	return c.scale
}

func rotateX90(v Vec3) Vec3 {
	return Vec3{v[0], v[2], -v[1]}
}

func rotateX270(v Vec3) Vec3 {
	return Vec3{v[0], -v[2], v[1]}
}

// DirectionToRemote converts a unit-free direction (normal, tangent).
func (c *Converter) DirectionToRemote(v Vec3, assetReset bool) Vec3 {
	if assetReset {
		v = rotateX270(v)
	}
	v[1] = -v[1]
	return v
}

// DirectionToLocal converts using the session asset-reset flag.
func (c *Converter) DirectionToLocal(v Vec3) Vec3 {
	v[1] = -v[1]
	if c.AssetReset() {
		v = rotateX90(v)
	}
	return v
}

func (c *Converter) PositionToRemote(v Vec3, assetReset bool) Vec3 {
	v = c.DirectionToRemote(v, assetReset)
	inv := 1 / c.scale
	return Vec3{v[0] * inv, v[1] * inv, v[2] * inv}
}

func (c *Converter) PositionToLocal(v Vec3) Vec3 {
	v = c.DirectionToLocal(v)
	return Vec3{v[0] * c.scale, v[1] * c.scale, v[2] * c.scale}
}

// FlipUV maps v to 1-v. It is its own inverse.
func FlipUV(uv Vec2) Vec2 {
	return Vec2{uv[0], 1 - uv[1]}
}

// MatrixToRemote mirrors m across the up axis unless assetReset is set, in
// which case the compensation is already in the vertex data.
func (c *Converter) MatrixToRemote(m Mat4, assetReset bool) Mat4 {
	if assetReset {
		return m
	}
	return mirrorMatrix(m)
}

// MatrixToLocal uses the session asset-reset flag.
func (c *Converter) MatrixToLocal(m Mat4) Mat4 {
	if c.AssetReset() {
		return m
	}
	return mirrorMatrix(m)
}

// mirrorMatrix negates columns 0, 2 and 3 of row 1 and column 1 of every
// other row.
func mirrorMatrix(m Mat4) Mat4 {
	for r := 0; r < 4; r++ {
		for col := 0; col < 4; col++ {
			if (r == 1) != (col == 1) {
				m[r*4+col] = -m[r*4+col]
			}
		}
	}
	return m
}
