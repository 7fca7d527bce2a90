package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database    DatabaseConfig
	Server      ServerConfig
	JWT         JWTConfig
	Solana      SolanaConfig
	Marketplace MarketplaceConfig
	IPFS        IPFSConfig
	Cache       CacheConfig
	Price       PriceConfig
	Log         LogConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SQLitePath string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

// JWTConfig holds token signing settings
type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

// SolanaConfig holds RPC and program settings
type SolanaConfig struct {
	Network        string
	RPCURL         string
	ProgramID      string
	WalletKeypair  string
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	ResendInterval time.Duration
}

// MarketplaceConfig holds the marketplace instance the server operates on
type MarketplaceConfig struct {
	Name              string
	DemoFallback      bool
	DefaultRoyaltyBps uint16
}

// IPFSConfig holds Pinata credentials and gateway mirrors
type IPFSConfig struct {
	PinataAPIKey    string
	PinataSecretKey string
	PinataEndpoint  string
	Gateways        []string
	Timeout         time.Duration
	UploadTimeout   time.Duration
}

// CacheConfig holds read-model cache settings
type CacheConfig struct {
	TTL          time.Duration
	WarmInterval time.Duration
}

// PriceConfig holds the SOL/USD rate sources
type PriceConfig struct {
	CoinGeckoURL     string
	CryptoCompareURL string
	TTL              time.Duration
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string
	Development bool
}

const (
	DefaultProgramID       = "711gctwBN1aGqzRhQbDD3qiescrzg4m9Zjj1ZGndLDis"
	DefaultMarketplaceName = "hack-123-x-5-3"
	DefaultPinataEndpoint  = "https://api.pinata.cloud/pinning/pinFileToIPFS"
)

// DefaultGateways are tried in order when resolving IPFS content
var DefaultGateways = []string{
	"https://gateway.pinata.cloud/ipfs/",
	"https://ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "sqlite"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", ""),
			DBName:     getEnv("DB_NAME", "model_marketplace"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "marketplace.db"),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			TTL:    getDuration("JWT_TTL", 24*time.Hour),
		},
		Solana: SolanaConfig{
			Network:        getEnv("SOLANA_NETWORK", "devnet"),
			RPCURL:         getEnv("SOLANA_RPC_URL", ""),
			ProgramID:      getEnv("MARKETPLACE_PROGRAM_ID", DefaultProgramID),
			WalletKeypair:  getEnv("SOLANA_WALLET_KEYPAIR", ""),
			ConfirmTimeout: getDuration("SOLANA_CONFIRM_TIMEOUT", 90*time.Second),
			PollInterval:   getDuration("SOLANA_POLL_INTERVAL", 2*time.Second),
			ResendInterval: getDuration("SOLANA_RESEND_INTERVAL", 2*time.Second),
		},
		Marketplace: MarketplaceConfig{
			Name:              getEnv("MARKETPLACE_NAME", DefaultMarketplaceName),
			DemoFallback:      getBool("MARKETPLACE_DEMO_FALLBACK", false),
			DefaultRoyaltyBps: uint16(getInt("MARKETPLACE_DEFAULT_ROYALTY_BPS", 550)),
		},
		IPFS: IPFSConfig{
			PinataAPIKey:    getEnv("PINATA_API_KEY", ""),
			PinataSecretKey: getEnv("PINATA_SECRET_API_KEY", ""),
			PinataEndpoint:  getEnv("PINATA_ENDPOINT", DefaultPinataEndpoint),
			Gateways:        getList("IPFS_GATEWAYS", DefaultGateways),
			Timeout:         getDuration("IPFS_TIMEOUT", 10*time.Second),
			UploadTimeout:   getDuration("IPFS_UPLOAD_TIMEOUT", 30*time.Minute),
		},
		Cache: CacheConfig{
			TTL:          getDuration("CACHE_TTL", 10*time.Second),
			WarmInterval: getDuration("CACHE_WARM_INTERVAL", 30*time.Second),
		},
		Price: PriceConfig{
			CoinGeckoURL:     getEnv("PRICE_COINGECKO_URL", ""),
			CryptoCompareURL: getEnv("PRICE_CRYPTOCOMPARE_URL", ""),
			TTL:              getDuration("PRICE_TTL", 30*time.Second),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getBool("LOG_DEVELOPMENT", false),
		},
	}

	if config.Solana.RPCURL == "" {
		rpcURL, err := NetworkRPCURL(config.Solana.Network)
		if err != nil {
			return nil, err
		}
		config.Solana.RPCURL = rpcURL
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the fields every binary needs
func (c *Config) Validate() error {
	if c.Solana.ProgramID == "" {
		return fmt.Errorf("MARKETPLACE_PROGRAM_ID is required")
	}
	if c.Marketplace.Name == "" {
		return fmt.Errorf("MARKETPLACE_NAME is required")
	}
	if len(c.Marketplace.Name) > 32 {
		return fmt.Errorf("MARKETPLACE_NAME must be at most 32 bytes, got %d", len(c.Marketplace.Name))
	}
	if c.Marketplace.DefaultRoyaltyBps > 10000 {
		return fmt.Errorf("MARKETPLACE_DEFAULT_ROYALTY_BPS must be at most 10000")
	}
	if len(c.IPFS.Gateways) == 0 {
		return fmt.Errorf("at least one IPFS gateway is required")
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	return nil
}

// NetworkRPCURL maps a cluster name to its public RPC endpoint
func NetworkRPCURL(network string) (string, error) {
	switch network {
	case "mainnet-beta", "mainnet":
		return "https://api.mainnet-beta.solana.com", nil
	case "devnet":
		return "https://api.devnet.solana.com", nil
	case "testnet":
		return "https://api.testnet.solana.com", nil
	case "localnet", "localhost":
		return "http://127.0.0.1:8899", nil
	default:
		return "", fmt.Errorf("unknown SOLANA_NETWORK %q", network)
	}
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
