package fixtures

import (
	_ "embed"
)

//go:embed config/gpudiag.yaml.template
var ConfigTemplate []byte
