package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Chain    ChainConfig    `yaml:"chain"`
	Curator  CuratorConfig  `yaml:"curator"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	CORS     CORSConfig     `yaml:"cors"`
	Admin    AdminConfig    `yaml:"admin"`
	Ramp     RampConfig     `yaml:"ramp"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig message server configuration
type NATSConfig struct {
	URL             string `yaml:"url"`
	Timeout         int    `yaml:"timeout"`
	ReconnectWait   int    `yaml:"reconnect_wait"`
	MaxReconnects   int    `yaml:"max_reconnects"`
	EnableJetStream bool   `yaml:"enable_jetstream"`
	StreamName      string `yaml:"stream_name"`
}

// ChainConfig blockchain configuration
type ChainConfig struct {
	ChainID        int64  `yaml:"chainId"`
	RPCURL         string `yaml:"rpcUrl"`
	EscrowContract string `yaml:"escrowContract"`
	USDCContract   string `yaml:"usdcContract"`
	PrivateKey     string `yaml:"privateKey"` // hex, without 0x prefix
	// Verifiers maps platform ids to their verifier contract addresses.
	Verifiers map[string]string `yaml:"verifiers"`
	// GatingService is the intent gating service address posted with payee data.
	GatingService string `yaml:"gatingService"`
	// IntentTTLSeconds is the on-chain intent lifetime.
	IntentTTLSeconds int `yaml:"intentTtlSeconds"`
	// PollIntervalSeconds drives the read-model refresh loop.
	PollIntervalSeconds int `yaml:"pollIntervalSeconds"`
}

// CuratorConfig curator backend configuration
type CuratorConfig struct {
	BaseURL string `yaml:"baseUrl"`
	Timeout int    `yaml:"timeout"`
}

// BridgeConfig cross-asset bridge pricing configuration
type BridgeConfig struct {
	LiFiBaseURL string `yaml:"lifiBaseUrl"`
	Timeout     int    `yaml:"timeout"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// AdminConfig admin API access control configuration
type AdminConfig struct {
	JWTSecret      string `yaml:"jwtSecret"`
	PasswordBcrypt string `yaml:"passwordBcrypt"` // bcrypt hash of the admin password
	TOTPSecret     string `yaml:"totpSecret"`
	TokenTTLHours  int    `yaml:"tokenTtlHours"`
}

// RampConfig settlement-core tunables
type RampConfig struct {
	// MinDepositAmount is the protocol floor in token base units.
	MinDepositAmount string `yaml:"minDepositAmount"`
	// TokenDecimals is the escrow stablecoin's decimal count.
	TokenDecimals int `yaml:"tokenDecimals"`
}

var AppConfig *Config

// LoadConfig reads the YAML configuration, preferring config.local.yaml when
// present, and applies environment-variable overrides on top.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	AppConfig = &config
	return nil
}

// overrideFromEnv applies environment-variable overrides; env values always
// win over file values.
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}

	if rpcURL := os.Getenv("CHAIN_RPC_URL"); rpcURL != "" {
		config.Chain.RPCURL = rpcURL
	}
	if chainID := os.Getenv("CHAIN_ID"); chainID != "" {
		if id, err := strconv.ParseInt(chainID, 10, 64); err == nil {
			config.Chain.ChainID = id
		}
	}
	if escrow := os.Getenv("ESCROW_CONTRACT"); escrow != "" {
		config.Chain.EscrowContract = escrow
	}
	if usdc := os.Getenv("USDC_CONTRACT"); usdc != "" {
		config.Chain.USDCContract = usdc
	}
	if privateKey := os.Getenv("PRIVATE_KEY"); privateKey != "" {
		config.Chain.PrivateKey = privateKey
	}

	if curator := os.Getenv("CURATOR_BASE_URL"); curator != "" {
		config.Curator.BaseURL = curator
	}
	if lifi := os.Getenv("LIFI_BASE_URL"); lifi != "" {
		config.Bridge.LiFiBaseURL = lifi
	}

	if jwtSecret := os.Getenv("ADMIN_JWT_SECRET"); jwtSecret != "" {
		config.Admin.JWTSecret = jwtSecret
	}
	if totpSecret := os.Getenv("ADMIN_TOTP_SECRET"); totpSecret != "" {
		config.Admin.TOTPSecret = totpSecret
	}
	if passwordHash := os.Getenv("ADMIN_PASSWORD_BCRYPT"); passwordHash != "" {
		config.Admin.PasswordBcrypt = passwordHash
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}

func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.NATS.StreamName == "" {
		config.NATS.StreamName = "RAMP_EVENTS"
	}
	if config.Bridge.LiFiBaseURL == "" {
		config.Bridge.LiFiBaseURL = "https://li.quest/v1"
	}
	if config.Chain.IntentTTLSeconds == 0 {
		config.Chain.IntentTTLSeconds = 1800
	}
	if config.Chain.PollIntervalSeconds == 0 {
		config.Chain.PollIntervalSeconds = 5
	}
	if config.Ramp.TokenDecimals == 0 {
		config.Ramp.TokenDecimals = 6
	}
	if config.Ramp.MinDepositAmount == "" {
		config.Ramp.MinDepositAmount = "100000" // 0.1 USDC
	}
	if config.Admin.TokenTTLHours == 0 {
		config.Admin.TokenTTLHours = 12
	}
}
