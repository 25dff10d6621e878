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

	"github.com/joho/godotenv"

	"github.com/zhouzirui/fiora-client/backend/internal/config"
	"github.com/zhouzirui/fiora-client/backend/internal/handler"
	"github.com/zhouzirui/fiora-client/backend/internal/service/fiora"
	"github.com/zhouzirui/fiora-client/backend/internal/service/notify"
	"github.com/zhouzirui/fiora-client/backend/internal/service/socket"
	"github.com/zhouzirui/fiora-client/backend/internal/storage"
)

// version 通过 -ldflags "-X main.version=..." 注入
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	credentials, closeStore, err := openCredentials(cfg.Storage)
	if err != nil {
		log.Fatalf("failed to open credential store: %v", err)
	}
	defer closeStore()

	hub := notify.NewHub(nil)

	opts := cfg.Fiora.ClientOptions(version)
	opts.Notifier = hub
	opts.Credentials = credentials
	client := fiora.NewClient(socket.NewSession(cfg.Fiora.SocketOptions()), opts)
	defer client.Close()

	client.Open()
	go autoLogin(ctx, client, cfg.Fiora)

	router := handler.NewRouter(client, hub, handler.Options{SilentSend: cfg.Fiora.SilentSend})

	startServer(ctx, cfg.Server, router)
}

func openCredentials(cfg config.StorageConfig) (fiora.CredentialStore, func(), error) {
	if cfg.InMemory() {
		log.Println("凭据仅保存在内存中")
		return storage.NewMemoryStore(""), func() {}, nil
	}

	store, err := storage.NewSQLiteStore(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			log.Printf("warning: failed to close credential store: %v", err)
		}
	}, nil
}

// autoLogin 启动后先用保存的凭据静默登录，没有凭据时再尝试配置中的账号
func autoLogin(ctx context.Context, client *fiora.Client, cfg config.FioraConfig) {
	user, err := client.RestoreSession(ctx)
	if err != nil {
		log.Printf("[fiora] silent login failed: %v", err)
	}
	if user != nil {
		log.Printf("[fiora] restored session for %s", user.Username)
		return
	}

	if !cfg.HasCredentials() {
		log.Println("[fiora] no stored session, waiting for POST /api/login")
		return
	}

	log.Printf("[fiora] 正在尝试登录账号 %s", cfg.Username)
	if user, err = client.Login(ctx, cfg.Username, cfg.Password); err != nil {
		log.Printf("[fiora] login failed: %v", err)
		return
	}
	if user == nil {
		log.Println("[fiora] login returned no profile")
		return
	}
	log.Printf("[fiora] logged in as %s", user.Username)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Fiora bridge listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
