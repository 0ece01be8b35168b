/*
Package config provides type-safe configuration extraction and the engine
settings of an eventchain deployment.

# Basic Usage

	cfg := config.New(map[string]any{
	    "timeout": "30s",
	    "retries": 3,
	})

	timeout := cfg.Duration("timeout", 10*time.Second) // 30s
	retries := cfg.Int("retries", 5)                   // 3
	missing := cfg.String("missing", "default")        // "default"

# Engine Settings

LoadEngine reads a YAML or JSON file and decodes its "engine" section:

	settings, err := config.LoadEngine("eventchain.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	svc, err := eventchain.NewService(reg, eventchain.ServiceOptionsFrom(settings)...)

Missing keys fall back to DefaultEngineSettings. Settings are validated:
max_depth must be positive and a sqlite journal needs a path.

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
