// Package config, uygulamanın tüm konfigürasyonunu merkezi olarak yönetir.
// Environment variable'lardan okur, .env dosyasını da destekler.
//
// Go'da "struct" bir veri yapısıdır — birden fazla field'ı bir arada tutar.
// Config struct'ı tüm ayarları tek bir yerde toplar, böylece
// her yerde ayrı ayrı os.Getenv() çağırmak yerine tek bir Config nesnesi taşırız.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/akinalp/mqvi-sync/broker"
)

// Config, uygulamanın tüm konfigürasyon değerlerini taşır.
// Her alt bölüm ayrı bir struct — Single Responsibility: her struct tek bir concern'ü temsil eder.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Broker    broker.Options
	MarkRead  RateLimitConfig
	ReadState ReadStateConfig
}

// ServerConfig, HTTP server ayarları.
type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string // "*" tüm origin'lere izin verir (development)
}

// DatabaseConfig, SQLite database ayarları.
type DatabaseConfig struct {
	Path string // SQLite dosya yolu (ör: ./data/mqvi.db)
}

// JWTConfig, JWT token ayarları. Token'ı kimlik servisi üretir; burada sadece doğrulanır.
type JWTConfig struct {
	Secret string // Token imzalama anahtarı — GİZLİ TUTULMALI
}

// RateLimitConfig, WS mark_read rate limiter ayarları (window + cooldown).
type RateLimitConfig struct {
	MaxActions int
	Window     time.Duration
	Cooldown   time.Duration
}

// ReadStateConfig, unread aggregation ayarları.
type ReadStateConfig struct {
	AggregationConcurrency int // GetUnreadCounts'taki paralel sorgu üst sınırı
}

// Load, environment variable'lardan Config oluşturur.
// .env dosyası varsa önce onu yükler (development kolaylığı için).
func Load() (*Config, error) {
	// .env dosyasını yükle — dosya yoksa hata vermez, sessizce devam eder.
	// Production'da bu dosya olmaz, gerçek env variable'lar kullanılır.
	_ = godotenv.Load()

	var p parser
	port := p.integer("SERVER_PORT", 9090)
	redisDB := p.integer("REDIS_DB", 0)
	markReadRate := p.integer("MARK_READ_RATE", 20)
	markReadWindow := p.integer("MARK_READ_WINDOW_SECONDS", 5)
	markReadCooldown := p.integer("MARK_READ_COOLDOWN_SECONDS", 10)
	concurrency := p.integer("AGGREGATION_CONCURRENCY", 8)
	if p.err != nil {
		return nil, p.err
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	kind := broker.Kind(getEnv("BROKER", string(broker.KindLocal)))
	switch kind {
	case broker.KindLocal, broker.KindRedis, broker.KindNATS:
	default:
		return nil, fmt.Errorf("invalid BROKER %q (want local, redis or nats)", kind)
	}

	hostname, _ := os.Hostname()

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        port,
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./data/mqvi.db"),
		},
		JWT: JWTConfig{
			Secret: jwtSecret,
		},
		Broker: broker.Options{
			Kind:          kind,
			NodeID:        getEnv("NODE_ID", hostname),
			Topic:         getEnv("BROKER_TOPIC", broker.DefaultTopic),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       redisDB,
			NATSURL:       getEnv("NATS_URL", "nats://localhost:4222"),
		},
		MarkRead: RateLimitConfig{
			MaxActions: markReadRate,
			Window:     time.Duration(markReadWindow) * time.Second,
			Cooldown:   time.Duration(markReadCooldown) * time.Second,
		},
		ReadState: ReadStateConfig{
			AggregationConcurrency: concurrency,
		},
	}

	return cfg, nil
}

// Addr, HTTP server'ın dinleyeceği adresi döner (ör: "0.0.0.0:8080").
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// parser, sayısal env değerlerini okur ve ilk hatayı saklar.
type parser struct {
	err error
}

func (p *parser) integer(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || p.err != nil {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
		return fallback
	}
	return n
}

// getEnv, environment variable'ı okur, yoksa fallback değeri döner.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// splitList, virgülle ayrılmış listeyi boşlukları kırparak böler.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
