// mqvi-watch, gateway'e bağlanıp kullanıcının okunmamış sayaçlarını canlı
// izleyen küçük bir client. Client katmanlarının (transport, api, querycache,
// reconcile) gerçek bir sunucuya karşı birlikte çalıştığı yerdir.
//
//	MQVI_SERVER_URL=http://localhost:9090 MQVI_TOKEN=<jwt> go run ./cmd/mqvi-watch
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akinalp/mqvi-sync/client/api"
	"github.com/akinalp/mqvi-sync/client/querycache"
	"github.com/akinalp/mqvi-sync/client/reconcile"
	"github.com/akinalp/mqvi-sync/client/transport"
	"github.com/akinalp/mqvi-sync/config"
	"github.com/akinalp/mqvi-sync/protocol"
)

const reportInterval = 30 * time.Second

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("[watch] config error: %v", err)
	}
	claims, err := api.ClaimsFromToken(cfg.Token)
	if err != nil {
		log.Fatalf("[watch] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token := func() string { return cfg.Token }
	conn := transport.New(transport.Options{URL: cfg.GatewayURL(), Token: token})
	client := api.New(api.Options{BaseURL: cfg.ServerURL, Token: token})

	store := querycache.New(querycache.Options{StaleTime: cfg.StaleTime, GCTime: cfg.GCTime})
	defer store.Close()

	session := reconcile.New(conn, client, store, reconcile.Options{UserID: claims.UserID, PageSize: cfg.PageSize})
	defer session.Close()

	report := func() {
		counters := session.Counters() // bayatsa arka planda tazelenir
		if counters == nil {
			return
		}
		log.Printf("[watch] %d unread across %d conversations", counters.TotalUnread(), counters.Len())
	}

	// Session'ın handler'larından sonra abone olunur: sayaçlar güncellenmiş okunur.
	for _, op := range []protocol.Op{protocol.OpMessageCreate, protocol.OpReadStateUpdate} {
		session.Bus().Subscribe(op, func(protocol.Envelope) { report() })
	}
	conn.OnConnect(func() {
		log.Printf("[watch] connected as %s (session %s)", claims.Username, conn.SessionID())
		report()
	})
	conn.OnDisconnect(func(err error) {
		log.Printf("[watch] disconnected: %v", err)
	})

	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				report()
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Printf("[watch] connecting to %s", cfg.GatewayURL())
	if err := conn.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, transport.ErrUnauthorized) {
			log.Fatalf("[watch] token rejected, get a fresh MQVI_TOKEN")
		}
		log.Fatalf("[watch] %v", err)
	}
	log.Println("[watch] stopped")
}
