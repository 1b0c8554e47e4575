package config

import (
	"os"
	"time"
)

type Config struct {
	Port               string
	DatabaseURL        string
	SessionIdleTimeout time.Duration // a session with no inbound events this long is reaped
	InviteTTL          time.Duration // pending invitations older than this expire
}

func FromEnv() Config {
	c := Config{}
	c.Port = getenv("PORT", "8080")
	c.DatabaseURL = getenv("DATABASE_URL", "postgres://localhost:5432/crostic?sslmode=disable")
	c.SessionIdleTimeout = getdur("SESSION_IDLE_TIMEOUT", 30*time.Minute)
	c.InviteTTL = getdur("INVITE_TTL", 5*time.Minute)
	return c
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
