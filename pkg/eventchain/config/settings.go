package config

import (
	"errors"
	"fmt"
)

// Journal drivers.
const (
	JournalNone   = "none"
	JournalMemory = "memory"
	JournalSQLite = "sqlite"
)

// DefaultMaxDepth bounds nested dispatches of child events.
const DefaultMaxDepth = 16

// ErrInvalidSettings indicates engine settings that cannot be applied.
var ErrInvalidSettings = errors.New("invalid engine settings")

// EngineSettings is the decoded engine section of a configuration file.
type EngineSettings struct {
	MaxDepth      int
	RecoverPanics bool
	Metrics       bool
	Tracing       bool
	Journal       JournalSettings
	Notify        NotifySettings
}

// JournalSettings selects where dispatch outcomes are recorded.
type JournalSettings struct {
	Driver string
	Path   string
}

// NotifySettings configures outcome notifications.
type NotifySettings struct {
	Enabled bool
	Topic   string
}

// DefaultEngineSettings returns the settings used when a key is absent.
func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		MaxDepth:      DefaultMaxDepth,
		RecoverPanics: true,
		Journal:       JournalSettings{Driver: JournalNone},
		Notify:        NotifySettings{Topic: "eventchain.outcomes"},
	}
}

// Engine decodes the "engine" section of cfg.
//
//	engine:
//	  max_depth: 8
//	  recover_panics: true
//	  metrics: true
//	  tracing: false
//	  journal:
//	    driver: sqlite
//	    path: ./journal.db
//	  notify:
//	    enabled: true
//	    topic: identity.outcomes
func Engine(cfg Config) (EngineSettings, error) {
	def := DefaultEngineSettings()
	sec := cfg.Section("engine")
	journal := sec.Section("journal")
	notify := sec.Section("notify")

	s := EngineSettings{
		MaxDepth:      sec.Int("max_depth", def.MaxDepth),
		RecoverPanics: sec.Bool("recover_panics", def.RecoverPanics),
		Metrics:       sec.Bool("metrics", def.Metrics),
		Tracing:       sec.Bool("tracing", def.Tracing),
		Journal: JournalSettings{
			Driver: journal.String("driver", def.Journal.Driver),
			Path:   journal.String("path", def.Journal.Path),
		},
		Notify: NotifySettings{
			Enabled: notify.Bool("enabled", def.Notify.Enabled),
			Topic:   notify.String("topic", def.Notify.Topic),
		},
	}
	return s, s.Validate()
}

// Validate reports settings that cannot be applied.
func (s EngineSettings) Validate() error {
	if s.MaxDepth <= 0 {
		return fmt.Errorf("%w: max_depth must be positive, got %d", ErrInvalidSettings, s.MaxDepth)
	}
	switch s.Journal.Driver {
	case JournalNone, JournalMemory:
	case JournalSQLite:
		if s.Journal.Path == "" {
			return fmt.Errorf("%w: sqlite journal requires a path", ErrInvalidSettings)
		}
	default:
		return fmt.Errorf("%w: unknown journal driver %q", ErrInvalidSettings, s.Journal.Driver)
	}
	if s.Notify.Enabled && s.Notify.Topic == "" {
		return fmt.Errorf("%w: notify topic is required", ErrInvalidSettings)
	}
	return nil
}
