// Package main — Service katmanı başlatma.
//
// initServices, tüm service implementasyonlarını oluşturur.
// Her service, ihtiyaç duyduğu repository interface'lerini ve diğer
// dependency'leri constructor injection ile alır.
package main

import (
	"github.com/akinalp/mqvi-sync/config"
	"github.com/akinalp/mqvi-sync/pkg/ratelimit"
	"github.com/akinalp/mqvi-sync/services"
	"github.com/akinalp/mqvi-sync/ws"
)

// Services, tüm service instance'larını tutan container struct.
type Services struct {
	Token     services.TokenService
	ReadState services.ReadStateService
	Message   services.MessageService
}

// RateLimiters, tüm rate limiter instance'larını tutan container.
type RateLimiters struct {
	MarkRead *ratelimit.ActionRateLimiter
}

// Close, limiter'ların cleanup goroutine'lerini durdurur.
func (l *RateLimiters) Close() {
	l.MarkRead.Close()
}

// initServices, service'leri ve rate limiter'ları oluşturur.
// hub, service'lere sadece ws.EventPublisher olarak geçer.
func initServices(repos *Repositories, hub ws.EventPublisher, cfg *config.Config) (*Services, *RateLimiters) {
	svcs := &Services{
		Token: services.NewTokenService(cfg.JWT.Secret),
		ReadState: services.NewReadStateService(
			repos.ReadState,
			repos.Message,
			repos.Conversation,
			repos.Mention,
			cfg.ReadState.AggregationConcurrency,
		),
		Message: services.NewMessageService(
			repos.Message,
			repos.Conversation,
			repos.User,
			repos.MessageWriter,
			hub,
		),
	}

	limiters := &RateLimiters{
		MarkRead: ratelimit.NewActionRateLimiter(cfg.MarkRead.MaxActions, cfg.MarkRead.Window, cfg.MarkRead.Cooldown),
	}

	return svcs, limiters
}
