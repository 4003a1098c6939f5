package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/orneryd/mdpredict/pkg/config"
)

// New builds the engine selected by cfg.Backend.
func New(cfg config.EngineConfig, logger *zap.Logger) (Engine, error) {
	switch cfg.Backend {
	case config.BackendProcess:
		return NewProcessEngine(ProcessConfig{
			ExactBinary:   cfg.ExactBinary,
			CoreBinary:    cfg.CoreBinary,
			SummaryBinary: cfg.SummaryBinary,
			CoreEpsilon:   cfg.CoreEpsilon,
			CoreDelta:     cfg.CoreDelta,
			ScratchDir:    cfg.ScratchDir,
		}, logger), nil
	case config.BackendMemory:
		return NewMemoryEngine(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}
