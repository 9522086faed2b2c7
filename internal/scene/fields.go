package scene

// Common record field IDs.
const (
	fieldUniqueName  uint16 = 1
	fieldDisplayName uint16 = 2
)

// Node field IDs.
const (
	nodeTransform        uint16 = 3
	nodeMesh             uint16 = 4
	nodeCamera           uint16 = 5
	nodeLight            uint16 = 6
	nodeChild            uint16 = 7
	nodeMaterialOverride uint16 = 8
)

// Mesh field IDs.
const (
	meshIndices         uint16 = 3
	meshVertices        uint16 = 4
	meshNormals         uint16 = 5
	meshUVs             uint16 = 6
	meshColors          uint16 = 7
	meshTangents        uint16 = 8
	meshMaterialIndices uint16 = 9
	meshMaterialName    uint16 = 10
)

// Camera field IDs.
const (
	cameraFieldOfView uint16 = 3
	cameraNearClip    uint16 = 4
	cameraFarClip     uint16 = 5
)

// Light field IDs.
const (
	lightKind      uint16 = 3
	lightPosition  uint16 = 4
	lightDirection uint16 = 5
	lightColor     uint16 = 6
	lightIntensity uint16 = 7
)

// Texture field IDs.
const (
	textureWidth      uint16 = 3
	textureHeight     uint16 = 4
	textureComponents uint16 = 5
	textureFormat     uint16 = 6
	textureColorSpace uint16 = 7
	textureColors     uint16 = 8
	textureFColors    uint16 = 9
)

// Material field IDs. Each input is a nested field list.
const (
	materialInput uint16 = 3

	inputChannel uint16 = 1
	inputEffect  uint16 = 2
	inputTexture uint16 = 3
)
