package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/salon-storefront/internal/config"
	kafkax "github.com/ariefcatur/salon-storefront/internal/kafka"
	"github.com/ariefcatur/salon-storefront/internal/notify"
	"github.com/ariefcatur/salon-storefront/internal/orders"
	"github.com/ariefcatur/salon-storefront/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	d := &notify.Dispatcher{
		Mail:       &notify.SMTPMailer{Addr: cfg.SMTPAddr, From: cfg.MailFrom},
		Dedup:      &redisx.Dedup{RDB: rdb, Scope: "notifier"},
		AdminEmail: cfg.AdminEmail,
	}

	// Consumer
	topics := []string{orders.TopicOrderPaid, orders.TopicBookingPaid, orders.TopicPaymentFailed}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, topics, cfg.NotifierWorkers)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Printf("notifier consumer started: group=%s topics=%v workers=%d", cfg.NotifierGroup, topics, cfg.NotifierWorkers)
		if err := cons.Start(ctx, d.Handle); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down consumer...")
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Println("consumer did not stop in time")
	}
}
