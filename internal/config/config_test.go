package config

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", StorageMemory)
	t.Setenv("API_PORT", "8080")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("SERVER_URL", "https://custos.example.com/")
	t.Setenv("EVM_RPC_URL", "https://rpc.example.com")
	t.Setenv("STROLLMANAGER_ADDRESS", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	t.Setenv("RULES_CHECK_INTERVAL", "15m")
	t.Setenv("REQUEST_TIMEOUT", "not-a-duration")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.APIPort != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.APIPort)
	}
	if cfg.RulesCheckInterval != 15*time.Minute {
		t.Fatalf("expected 15m interval, got %v", cfg.RulesCheckInterval)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("expected default timeout, got %v", cfg.RequestTimeout)
	}
	if cfg.EVMNetworkID != 80001 {
		t.Fatalf("expected default network 80001, got %d", cfg.EVMNetworkID)
	}
	if cfg.WebhookURL() != "https://custos.example.com/webhook/123:abc" {
		t.Fatalf("unexpected webhook url %s", cfg.WebhookURL())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "memory", cfg: Config{StorageBackend: StorageMemory, RequestTimeout: time.Second}},
		{name: "unknown storage", cfg: Config{StorageBackend: "sqlite", RequestTimeout: time.Second}, wantErr: true},
		{name: "postgres without host", cfg: Config{StorageBackend: StoragePostgres, PostgresDB: "custos", RequestTimeout: time.Second}, wantErr: true},
		{name: "bot without server url", cfg: Config{StorageBackend: StorageMemory, TelegramBotToken: "t", RequestTimeout: time.Second}, wantErr: true},
		{name: "bad contract", cfg: Config{StorageBackend: StorageMemory, EVMRPCURL: "http://x", StrollManagerAddress: "0x1", RequestTimeout: time.Second}, wantErr: true},
		{name: "zero timeout", cfg: Config{StorageBackend: StorageMemory}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestWebhookSecretDefaultsToBotToken(t *testing.T) {
	cfg := Config{StorageBackend: StorageMemory, TelegramBotToken: "tok", ServerURL: "http://x", RequestTimeout: time.Second}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.WebhookPath() != "/webhook/tok" {
		t.Fatalf("unexpected path %s", cfg.WebhookPath())
	}
}
