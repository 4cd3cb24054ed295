package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ClientConfig, cmd/mqvi-watch gibi client araçlarının ayarları.
type ClientConfig struct {
	ServerURL string // REST base URL (ör: http://localhost:9090)
	Token     string // JWT access token
	PageSize  int    // ilk sayfa fetch limiti
	StaleTime time.Duration
	GCTime    time.Duration
}

// LoadClient, MQVI_* environment variable'larından ClientConfig oluşturur.
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load()

	var p parser
	pageSize := p.integer("MQVI_PAGE_SIZE", 50)
	staleSeconds := p.integer("MQVI_STALE_SECONDS", 0)
	gcMinutes := p.integer("MQVI_GC_MINUTES", 5)
	if p.err != nil {
		return nil, p.err
	}

	token := strings.TrimSpace(getEnv("MQVI_TOKEN", ""))
	if token == "" {
		return nil, fmt.Errorf("MQVI_TOKEN environment variable is required")
	}

	serverURL := strings.TrimRight(getEnv("MQVI_SERVER_URL", "http://localhost:9090"), "/")
	u, err := url.Parse(serverURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid MQVI_SERVER_URL %q (want http(s)://host[:port])", serverURL)
	}

	return &ClientConfig{
		ServerURL: serverURL,
		Token:     token,
		PageSize:  pageSize,
		StaleTime: time.Duration(staleSeconds) * time.Second,
		GCTime:    time.Duration(gcMinutes) * time.Minute,
	}, nil
}

// GatewayURL, REST base URL'inden WebSocket gateway adresini türetir:
// http → ws, https → wss, path /ws.
func (c *ClientConfig) GatewayURL() string {
	u, _ := url.Parse(c.ServerURL)
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}
