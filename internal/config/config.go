package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// NativeMint is the wrapped-SOL mint address used to tag native transfers.
const NativeMint = "So11111111111111111111111111111111111111112"

// HeliusPageLimit is the maximum page size the Helius transaction-history
// API returns per request.
const HeliusPageLimit = 100

// Token describes one monitored asset: its mint and the account whose
// transaction history is walked.
type Token struct {
	Symbol  string
	Mint    string
	Account string
}

// Native reports whether the token is the chain's native asset.
func (t Token) Native() bool {
	return t.Mint == NativeMint
}

type Config struct {
	DBSource string
	Port     string
	Env      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	HeliusEndpoint string
	HeliusAPIKey   string

	PageSize  int
	PageDelay time.Duration

	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	MonitorInterval    time.Duration
	FullUpdateInterval time.Duration

	MinDonationAmount float64
	ReceivingAccount  string

	Tokens []Token
}

// defaultTokens is the static monitored-account table. The tracker does no
// account discovery; adding an asset means adding a row here.
var defaultTokens = []Token{
	{Symbol: "SOL", Mint: NativeMint, Account: "FWznbcNXWQuHTawe9RxvQ2LdCENssh12dsznf4RiouN5"},
	{Symbol: "MINIDOGE", Mint: "8J6CexwfJ8CSzn2DgWhzQe1NHd2hK9DKX59FCNNMo2hu", Account: "8fiAHtmdP3g8ah4TceoDcgjtH81krQHco8RaUSmC3kVi"},
	{Symbol: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Account: "DD7nZPcgbhfM7qMG33iuKJ3in8U3wbUzVnheB5ob27pf"},
	{Symbol: "USDT", Mint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Account: "VQkRW7jv4NVe5TJeSMTYMvWUzZUoHYeHZKa39MbYnMN"},
}

func Load() (*Config, error) {
	// Optional .env for local development; deployments set the environment
	// directly.
	_ = godotenv.Load()

	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	apiKey := os.Getenv("HELIUS_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("HELIUS_API_KEY environment variable is required")
	}

	cfg := &Config{
		DBSource: dbSource,
		Port:     getEnv("SERVER_PORT", "8080"),
		Env:      getEnv("ENVIRONMENT", "development"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		HeliusEndpoint: getEnv("HELIUS_ENDPOINT", "https://api.helius.xyz/v0"),
		HeliusAPIKey:   apiKey,

		PageSize:  getEnvInt("PAGE_SIZE", HeliusPageLimit),
		PageDelay: getEnvDuration("PAGE_DELAY", 500*time.Millisecond),

		RetryMaxAttempts:  getEnvInt("RETRY_MAX_ATTEMPTS", 10),
		RetryInitialDelay: getEnvDuration("RETRY_INITIAL_DELAY", time.Second),
		RetryMaxDelay:     getEnvDuration("RETRY_MAX_DELAY", 10*time.Second),

		MonitorInterval:    getEnvDuration("MONITOR_INTERVAL", time.Minute),
		FullUpdateInterval: getEnvDuration("FULL_UPDATE_INTERVAL", 5*time.Minute),

		MinDonationAmount: getEnvFloat("MIN_DONATION_AMOUNT", 0.0001),
		ReceivingAccount:  os.Getenv("RECEIVING_ACCOUNT"),

		Tokens: defaultTokens,
	}

	if cfg.PageSize < 1 || cfg.PageSize > HeliusPageLimit {
		cfg.PageSize = HeliusPageLimit
	}

	// Donations are transfers into the SOL monitored account unless
	// overridden.
	if cfg.ReceivingAccount == "" {
		for _, t := range cfg.Tokens {
			if t.Native() {
				cfg.ReceivingAccount = t.Account
				break
			}
		}
	}
	if cfg.ReceivingAccount == "" {
		return nil, fmt.Errorf("RECEIVING_ACCOUNT is required when no native token is configured")
	}

	return cfg, nil
}

// TokenByMint resolves a configured token by its mint address.
func (c *Config) TokenByMint(mint string) (Token, bool) {
	for _, t := range c.Tokens {
		if t.Mint == mint {
			return t, true
		}
	}
	return Token{}, false
}

// SymbolTable maps mint address to display symbol for every configured token.
func (c *Config) SymbolTable() map[string]string {
	m := make(map[string]string, len(c.Tokens))
	for _, t := range c.Tokens {
		m[t.Mint] = t.Symbol
	}
	return m
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
