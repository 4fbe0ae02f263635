package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"orbit-api/ai"
	"orbit-api/api"
	"orbit-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tables := storage.Tables{
		Items:    os.Getenv("ITEMS_TABLE"),
		Habits:   os.Getenv("HABITS_TABLE"),
		Checks:   os.Getenv("CHECKS_TABLE"),
		Projects: os.Getenv("PROJECTS_TABLE"),
		Settings: os.Getenv("SETTINGS_TABLE"),
	}
	eventsQueue := os.Getenv("EVENTS_QUEUE")
	if connStr == "" || tables.Items == "" || tables.Habits == "" || tables.Checks == "" ||
		tables.Projects == "" || tables.Settings == "" || eventsQueue == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, tables, eventsQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc := redis.NewClient(redisOptions(redisConn))

	cacheTTL := envDuration("CACHE_TTL", 5*time.Minute)
	cached := storage.NewCache(store, rc, cacheTTL)

	deduperTTL := envDuration("DEDUPER_TTL", 24*time.Hour)
	deduper := api.NewRedisDeduper(rc, deduperTTL)

	var auth *api.Auth
	if os.Getenv("AUTH_TEST_MODE") == "1" {
		auth = api.NewAuth(nil, "", "")
	} else {
		audience := os.Getenv("AUTH0_AUDIENCE")
		domain := os.Getenv("AUTH0_DOMAIN")
		if audience == "" || domain == "" {
			log.Fatal("missing Auth0 config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, audience, "https://"+domain+"/")
	}

	logger := log.New()

	// The capture assistant is optional; without a key the organize
	// endpoint answers 503.
	var organizer api.Organizer
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		organizer = ai.New(key, logger, ai.WithModel(os.Getenv("ANTHROPIC_MODEL")))
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Idempotency-Key"},
	}))
	e.Use(api.GzipRequestMiddleware())

	api.Register(e, cached, store, auth, deduper, organizer, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// redisOptions supports both redis URLs and the comma-separated
// host,password=...,ssl=true form hosted caches hand out.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func envDuration(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return d
}
