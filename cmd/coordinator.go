package cmd

import (
	"fmt"

	"github.com/CanopyHQ/loreweave/internal/memory"
)

// openCoordinator constructs a Coordinator from the environment-driven
// default configuration, the entry point every memory-touching subcommand
// but doctor uses.
func openCoordinator() (*memory.Coordinator, error) {
	coord, err := memory.New(memory.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}
	return coord, nil
}
