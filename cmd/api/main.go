package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/salon-storefront/internal/bookings"
	"github.com/ariefcatur/salon-storefront/internal/cart"
	"github.com/ariefcatur/salon-storefront/internal/catalog"
	"github.com/ariefcatur/salon-storefront/internal/checkout"
	"github.com/ariefcatur/salon-storefront/internal/config"
	"github.com/ariefcatur/salon-storefront/internal/gateway"
	"github.com/ariefcatur/salon-storefront/internal/httpx"
	kafkax "github.com/ariefcatur/salon-storefront/internal/kafka"
	"github.com/ariefcatur/salon-storefront/internal/memstore"
	"github.com/ariefcatur/salon-storefront/internal/notify"
	"github.com/ariefcatur/salon-storefront/internal/orders"
	"github.com/ariefcatur/salon-storefront/internal/payments"
	"github.com/ariefcatur/salon-storefront/internal/postgres"
	"github.com/ariefcatur/salon-storefront/internal/redisx"
	"github.com/ariefcatur/salon-storefront/internal/users"
)

type stores struct {
	catalog  catalog.Store
	carts    cart.Store
	orders   orders.Store
	bookings bookings.Store
	users    users.Store
	close    func()
}

func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	if cfg.StoreDriver == "memory" {
		log.Printf("store driver=memory, data is lost on restart")
		m := memstore.New()
		m.SeedDemo()
		return stores{catalog: m, carts: m, orders: m.Orders(), bookings: m.Bookings(), users: m, close: func() {}}, nil
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return stores{}, err
	}
	return stores{
		catalog:  &catalog.Repo{DB: db},
		carts:    &cart.Repo{DB: db},
		orders:   &orders.Repo{DB: db},
		bookings: &bookings.Repo{DB: db},
		users:    &users.Repo{DB: db},
		close:    db.Close,
	}, nil
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if cfg.WebhookSecret == "" {
		log.Printf("WEBHOOK_SECRET is empty: every webhook delivery will be rejected")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores
	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer st.close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("redis ping: %v (fast paths degrade to the database)", err)
	}

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	mat := &cart.Materializer{Catalog: st.catalog, Timeout: cfg.CatalogTimeout}
	carts := cart.NewCoalescer(st.carts, cfg.CoalesceWindow)
	status := &redisx.StatusCache{RDB: rdb}

	api := &httpx.API{
		Cart:  mat,
		Carts: carts,
		Checkout: &checkout.Service{
			Cart:         mat,
			Orders:       st.orders,
			Gateway:      gateway.NewClient(cfg.GatewayURL, cfg.GatewayAPIKey),
			Idem:         &redisx.Idempotency{RDB: rdb},
			ShippingCost: cfg.ShippingCost,
			Currency:     cfg.Currency,
			SuccessURL:   cfg.SuccessURL,
			CancelURL:    cfg.CancelURL,
		},
		Orders: st.orders,
		Payments: &payments.Processor{
			Secret:    cfg.WebhookSecret,
			Tolerance: cfg.WebhookTolerance,
			Orders:    st.orders,
			Bookings:  st.bookings,
			Users:     st.users,
			Notify:    &notify.Publisher{Producer: prod, Service: cfg.ServiceName},
			Dedup:     &redisx.Dedup{RDB: rdb, Scope: "webhook"},
			Status:    status,
		},
		Status:   status,
		AdminKey: cfg.AdminToken,
	}

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: httpx.NewRouter(api), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if err := carts.Close(ctx2); err != nil {
		log.Printf("cart flush on shutdown: %v", err)
	}
	prod.Close()
	cancel()
	prod.WaitClosed()
}
