package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type API struct {
	Addr           string
	AllowedOrigins []string
}

type Settlement struct {
	// AuthToken authenticates the completion channel: only callers
	// presenting it may deliver settlement outcomes.
	AuthToken string
	// DispatchTimeout bounds the HTTP delivery of one settlement
	// request, not the wait for its confirmation (there is none).
	DispatchTimeout time.Duration
	QueueSize       int
}

type Store struct {
	DataDir string
}

type Config struct {
	API        API
	Settlement Settlement
	Store      Store
}

func Default() Config {
	return Config{
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Settlement: Settlement{
			AuthToken:       "settlor-dev-token",
			DispatchTimeout: 5 * time.Second,
			QueueSize:       256,
		},
		Store: Store{
			DataDir: "data/ledger.db",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if addr := os.Getenv("API_ADDR"); addr != "" {
		cfg.API.Addr = addr
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = strings.Split(origins, ",")
	}
	if token := os.Getenv("SETTLE_AUTH_TOKEN"); token != "" {
		cfg.Settlement.AuthToken = token
	}
	if timeout := os.Getenv("SETTLE_TIMEOUT_MS"); timeout != "" {
		if ms, err := strconv.Atoi(timeout); err == nil {
			cfg.Settlement.DispatchTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if size := os.Getenv("SETTLE_QUEUE_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil && n > 0 {
			cfg.Settlement.QueueSize = n
		}
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Store.DataDir = dir
	}

	return cfg
}
