package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr        string
	DBDSN           string
	JWTIssuer       string
	JWTSecret       string
	JWTTTL          time.Duration
	InternalToken   string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	BaseCurrency    string
	AllowFlip       bool
	LogLevel        string
	LogFile         string
	LogConsole      bool
	ShutdownTimeout time.Duration
}

// Load reads everything from the environment. DB_DSN and REDIS_ADDR are
// optional: without them the service runs on in-memory storage and an
// in-process price cache.
func Load() (Config, error) {
	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		c.JWTIssuer = "tradecore"
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	jwtTTL := os.Getenv("JWT_TTL")
	if jwtTTL == "" {
		c.JWTTTL = 24 * time.Hour
	} else {
		d, err := time.ParseDuration(jwtTTL)
		if err != nil {
			return c, errors.New("invalid JWT_TTL")
		}
		c.JWTTTL = d
	}
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}
	c.RedisAddr = os.Getenv("REDIS_ADDR")
	c.RedisPassword = os.Getenv("REDIS_PASSWORD")
	redisDB := strings.TrimSpace(os.Getenv("REDIS_DB"))
	if redisDB != "" {
		n, err := strconv.Atoi(redisDB)
		if err != nil {
			return c, errors.New("invalid REDIS_DB")
		}
		c.RedisDB = n
	}
	c.BaseCurrency = strings.ToUpper(strings.TrimSpace(os.Getenv("BASE_CURRENCY")))
	if c.BaseCurrency == "" {
		c.BaseCurrency = "USD"
	}
	allowFlip := os.Getenv("ALLOW_POSITION_FLIP")
	if allowFlip != "" {
		b, err := strconv.ParseBool(allowFlip)
		if err != nil {
			return c, errors.New("invalid ALLOW_POSITION_FLIP")
		}
		c.AllowFlip = b
	}
	c.LogLevel = os.Getenv("LOG_LEVEL")
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.LogFile = os.Getenv("LOG_FILE")
	logConsole := os.Getenv("LOG_CONSOLE")
	if logConsole == "" {
		c.LogConsole = true
	} else {
		b, err := strconv.ParseBool(logConsole)
		if err != nil {
			return c, errors.New("invalid LOG_CONSOLE")
		}
		c.LogConsole = b
	}
	shutdown := os.Getenv("SHUTDOWN_TIMEOUT")
	if shutdown == "" {
		c.ShutdownTimeout = 10 * time.Second
	} else {
		d, err := time.ParseDuration(shutdown)
		if err != nil {
			return c, errors.New("invalid SHUTDOWN_TIMEOUT")
		}
		c.ShutdownTimeout = d
	}
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}
