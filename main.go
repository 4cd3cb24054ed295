// Package main, mqvi-sync sunucusunun giriş noktasıdır.
//
// Bu dosyanın görevi — Dependency Injection "wire-up":
//  1. Config'i yükle
//  2. Database'i başlat (embedded migration'lar ile)
//  3. Repository'leri oluştur
//  4. Broker'ı aç, WebSocket Hub'ı başlat
//  5. Service'leri oluştur (repository'ler + hub ile)
//  6. Hub callback'lerini bağla
//  7. Handler'ları ve route'ları kur
//  8. CORS yapılandır, HTTP Server'ı başlat
//  9. Graceful shutdown
//
// Global değişken YOK — her şey bu fonksiyonda oluşturulup birbirine bağlanıyor.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/akinalp/mqvi-sync/broker"
	"github.com/akinalp/mqvi-sync/config"
	"github.com/akinalp/mqvi-sync/database"
	"github.com/akinalp/mqvi-sync/ws"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] mqvi-sync server starting...")

	// ─── 1. Config ───
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] failed to load config: %v", err)
	}
	log.Printf("[main] config loaded (port=%d, broker=%s, node=%s)", cfg.Server.Port, cfg.Broker.Kind, cfg.Broker.NodeID)

	// ─── 2. Database ───
	db, err := database.New(cfg.Database.Path, database.Migrations())
	if err != nil {
		log.Fatalf("[main] failed to initialize database: %v", err)
	}
	defer db.Close()

	// ─── 3. Repository Layer ───
	repos := initRepositories(db.Conn)

	// ─── 4. Broker + WebSocket Hub ───
	//
	// ctx, Hub'ın event loop'unu ve broker aboneliğini yönetir.
	// Sinyal geldiğinde cancel edilir.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := broker.Open(ctx, cfg.Broker)
	if err != nil {
		log.Fatalf("[main] failed to open %s broker: %v", cfg.Broker.Kind, err)
	}

	hub := ws.NewHub(b)
	if err := hub.Start(ctx); err != nil {
		log.Fatalf("[main] failed to start hub: %v", err)
	}

	// ─── 5. Service Layer ───
	svcs, limiters := initServices(repos, hub, cfg)
	defer limiters.Close()

	receipts := ws.NewReadStateBroadcaster(hub, repos.User)

	// ─── 6. Hub Callbacks ───
	registerHubCallbacks(hub, repos, svcs, receipts, limiters)

	// ─── 7. Handlers + Routes ───
	h := initHandlers(svcs, repos, receipts, hub, cfg)

	mux := http.NewServeMux()
	initRoutes(mux, h, svcs.Token, repos)

	// ─── 8. CORS + HTTP Server ───
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      corsHandler.Handler(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[main] server listening on %s", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[main] server error: %v", err)
		}
	}()

	// ─── 9. Graceful Shutdown ───
	<-ctx.Done()
	log.Println("[main] shutting down...")

	// Önce WebSocket bağlantılarını kapat (broker da burada kapanır),
	// sonra HTTP server yeni request kabul etmeyi durdurur.
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] forced shutdown: %v", err)
	}

	log.Println("[main] server stopped gracefully")
}
