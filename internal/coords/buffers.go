package coords

// PositionsToRemote converts a packed xyz buffer. Trailing values that do not
// form a full triple are dropped.
func (c *Converter) PositionsToRemote(buf []float32, assetReset bool) []float32 {
	return mapTriples(buf, func(v Vec3) Vec3 { return c.PositionToRemote(v, assetReset) })
}

func (c *Converter) PositionsToLocal(buf []float32) []float32 {
	return mapTriples(buf, c.PositionToLocal)
}

func (c *Converter) DirectionsToRemote(buf []float32, assetReset bool) []float32 {
	return mapTriples(buf, func(v Vec3) Vec3 { return c.DirectionToRemote(v, assetReset) })
}

func (c *Converter) DirectionsToLocal(buf []float32) []float32 {
	return mapTriples(buf, c.DirectionToLocal)
}

// FlipUVs converts a packed uv buffer in either direction.
func FlipUVs(buf []float32) []float32 {
	out := make([]float32, len(buf)&^1)
	for i := 0; i+1 < len(buf); i += 2 {
		uv := FlipUV(Vec2{buf[i], buf[i+1]})
		out[i], out[i+1] = uv[0], uv[1]
	}
	return out
}

func mapTriples(buf []float32, fn func(Vec3) Vec3) []float32 {
	n := len(buf) / 3
	out := make([]float32, n*3)
	for i := 0; i < n; i++ {
		v := fn(Vec3{buf[i*3], buf[i*3+1], buf[i*3+2]})
		out[i*3], out[i*3+1], out[i*3+2] = v[0], v[1], v[2]
	}
	return out
}
