package embedded

import (
	_ "embed"
)

//go:embed boards.yaml
var boards []byte

// Boards returns the built-in board catalog.
func Boards() []byte {
	return boards
}
