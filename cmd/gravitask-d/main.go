package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gravitask/gravitask/pkg/api"
	"github.com/gravitask/gravitask/pkg/store"
	"github.com/gravitask/gravitask/pkg/store/redis"
	"github.com/gravitask/gravitask/web"
)

const buildVersion = "1.0.0"

func main() {
	fmt.Println(`{"level":"info","msg":"system_started","component":"gravitask-d"}`)

	config, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Printf(`{"level":"fatal","msg":"invalid_config","error":"%v"}`+"\n", err)
		os.Exit(1)
	}

	st, err := store.NewStore(config.DBPath)
	if err != nil {
		fmt.Printf(`{"level":"fatal","msg":"failed_to_init_store","error":"%v"}`+"\n", err)
		os.Exit(1)
	}
	fmt.Printf(`{"level":"info","msg":"store_initialized","path":"%s"}`+"\n", config.DBPath)

	server := api.NewServer(st, config.Addr)
	server.SetBuildVersion(buildVersion)
	if config.Token != "" {
		server.SetToken(config.Token)
		fmt.Println(`{"level":"info","msg":"auth_enabled"}`)
	}
	if config.TLSCert != "" {
		server.SetTLS(config.TLSCert, config.TLSKey)
	}
	if assets, err := web.Assets(); err == nil {
		server.SetStaticFS(assets)
	} else {
		fmt.Printf(`{"level":"warn","msg":"web_assets_unavailable","error":"%v"}`+"\n", err)
	}

	// The layout cache is optional: an unreachable redis logs a warning
	// and the daemon serves layouts uncached.
	var redisClient *goredis.Client
	if config.RedisAddr != "" {
		redisClient = goredis.NewClient(&goredis.Options{Addr: config.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			fmt.Printf(`{"level":"warn","msg":"layout_cache_unavailable","addr":"%s","error":"%v"}`+"\n", config.RedisAddr, err)
			redisClient.Close()
			redisClient = nil
		} else {
			server.SetLayoutCache(redis.NewLayoutCache(redisClient, config.LayoutTTL), redis.Fingerprint)
			fmt.Printf(`{"level":"info","msg":"layout_cache_enabled","addr":"%s","ttl":"%s"}`+"\n", config.RedisAddr, config.LayoutTTL)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		fmt.Printf(`{"level":"info","msg":"shutdown_initiated","signal":"%s"}`+"\n", sig)
	case err := <-errCh:
		fmt.Printf(`{"level":"fatal","msg":"server_failed","error":"%v"}`+"\n", err)
		if closeErr := st.Close(); closeErr != nil {
			fmt.Printf(`{"level":"error","msg":"failed_to_close_store","error":"%v"}`+"\n", closeErr)
		}
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_stop_server","error":"%v"}`+"\n", err)
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			fmt.Printf(`{"level":"error","msg":"failed_to_close_redis","error":"%v"}`+"\n", err)
		}
	}

	if err := st.Close(); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_close_store","error":"%v"}`+"\n", err)
	} else {
		fmt.Println(`{"level":"info","msg":"store_closed"}`)
	}

	fmt.Println(`{"level":"info","msg":"shutdown_complete"}`)
}
