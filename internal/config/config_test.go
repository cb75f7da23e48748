package config_test

import (
	"testing"
	"time"

	"QuonkLedger/internal/config"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("QUONK_DISCORD_TOKEN", "token")

	cfg := config.FromEnv()
	if cfg.Storage != config.StoragePostgres {
		t.Errorf("storage: got %s, want postgres", cfg.Storage)
	}
	if cfg.QuoteProvider != config.QuotesYahoo {
		t.Errorf("quote provider: got %s, want yahoo", cfg.QuoteProvider)
	}
	if cfg.QuoteTimeout != 10*time.Second {
		t.Errorf("quote timeout: got %s, want 10s", cfg.QuoteTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("QUONK_DISCORD_TOKEN", "token")
	t.Setenv("QUONK_STORAGE", "memory")
	t.Setenv("QUONK_QUOTE_PROVIDER", "random")
	t.Setenv("QUONK_QUOTE_TIMEOUT", "3s")
	t.Setenv("QUONK_NATS_URL", "nats://localhost:4222")

	cfg := config.FromEnv()
	if cfg.Storage != config.StorageMemory {
		t.Errorf("storage: got %s, want memory", cfg.Storage)
	}
	if cfg.QuoteProvider != config.QuotesRandom {
		t.Errorf("quote provider: got %s, want random", cfg.QuoteProvider)
	}
	if cfg.QuoteTimeout != 3*time.Second {
		t.Errorf("quote timeout: got %s, want 3s", cfg.QuoteTimeout)
	}
	if cfg.NATSURL != "nats://localhost:4222" {
		t.Errorf("nats url: got %s", cfg.NATSURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("overrides should validate: %v", err)
	}
}

func TestFromEnv_BareSecondsTimeout(t *testing.T) {
	t.Setenv("QUONK_QUOTE_TIMEOUT", "7")

	cfg := config.FromEnv()
	if cfg.QuoteTimeout != 7*time.Second {
		t.Errorf("quote timeout: got %s, want 7s", cfg.QuoteTimeout)
	}
}

func TestValidate_Rejections(t *testing.T) {
	base := func() config.Config {
		return config.Config{
			DiscordToken:  "token",
			Storage:       config.StorageMemory,
			QuoteProvider: config.QuotesRandom,
			QuoteTimeout:  time.Second,
		}
	}

	cfg := base()
	cfg.DiscordToken = ""
	if err := cfg.Validate(); err == nil {
		t.Error("missing discord token should fail")
	}

	cfg = base()
	cfg.Storage = "etcd"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown storage should fail")
	}

	cfg = base()
	cfg.Storage = config.StoragePostgres
	cfg.PostgresDSN = ""
	if err := cfg.Validate(); err == nil {
		t.Error("postgres storage without dsn should fail")
	}

	cfg = base()
	cfg.QuoteProvider = "crystal-ball"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown quote provider should fail")
	}

	cfg = base()
	cfg.QuoteTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero quote timeout should fail")
	}
}
