package engine

import (
	"tv-bracket-bot/internal/interfaces"
	"tv-bracket-bot/internal/store"
)

// New builds an Engine over a broker session. journal may be nil.
func New(cfg *store.Config, brk interfaces.Broker, journal Journal) *Engine {
	return newEngine(SettingsFromConfig(cfg), brk, brk, brk, journal, nil)
}
