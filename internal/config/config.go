package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	DatabaseURL    string
	RedisURL       string
	KafkaBrokers   string
	NatsURL        string
	JaegerEndpoint string
	Port           string
	PublicBaseURL  string
	SiteTitle      string
	SignupURL      string
	ThanksURL      string
	CancelURL      string
	AdminSetupURL  string
	AdminJWTSecret string
	BTCPay         Settings
}

// Settings is the plugin configuration surface. Credentials stored by the
// setup wizard take precedence over the env values loaded here.
type Settings struct {
	ServerURL        string
	APIKey           string
	StoreID          string
	WebhookSecret    string
	TxSpeed          string
	RefundPercentage decimal.Decimal
	Debug            bool
	SendRefundEmail  bool
	RequestTimeout   time.Duration
}

// Configured reports whether every credential needed to talk to the
// remote store and to verify webhooks is present.
func (s Settings) Configured() bool {
	return s.ServerURL != "" && s.APIKey != "" && s.StoreID != "" && s.WebhookSecret != ""
}

// ReceiptURL is the payer-facing receipt page on the remote server.
func (s Settings) ReceiptURL(receiptID string) string {
	return strings.TrimRight(s.ServerURL, "/") + "/i/" + receiptID + "/receipt"
}

// ValidServerURL accepts absolute http(s) URLs only.
func ValidServerURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func Load() *Config {
	port := getEnv("PORT", "8084")
	baseURL := strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/")

	return &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		KafkaBrokers:   os.Getenv("KAFKA_BROKERS"),
		NatsURL:        getEnv("NATS_URL", "nats://localhost:4222"),
		JaegerEndpoint: os.Getenv("JAEGER_ENDPOINT"),
		Port:           port,
		PublicBaseURL:  baseURL,
		SiteTitle:      getEnv("SITE_TITLE", "Members"),
		SignupURL:      getEnv("SIGNUP_URL", baseURL+"/signup"),
		ThanksURL:      getEnv("THANKS_URL", baseURL+"/thanks"),
		CancelURL:      getEnv("CANCEL_URL", baseURL+"/cancel"),
		AdminSetupURL:  getEnv("ADMIN_SETUP_URL", baseURL+"/admin/btcpay/setup"),
		AdminJWTSecret: os.Getenv("ADMIN_JWT_SECRET"),
		BTCPay: Settings{
			ServerURL:        strings.TrimRight(os.Getenv("BTCPAY_SERVER_URL"), "/"),
			APIKey:           os.Getenv("BTCPAY_API_KEY"),
			StoreID:          os.Getenv("BTCPAY_STORE_ID"),
			WebhookSecret:    os.Getenv("BTCPAY_WEBHOOK_SECRET"),
			TxSpeed:          os.Getenv("BTCPAY_TXSPEED"),
			RefundPercentage: getEnvAsDecimal("BTCPAY_REFUND_PERCENTAGE", decimal.Zero),
			Debug:            getEnvAsBool("BTCPAY_DEBUG", false),
			SendRefundEmail:  getEnvAsBool("BTCPAY_SEND_REFUND_EMAIL", false),
			RequestTimeout:   getEnvAsDuration("BTCPAY_REQUEST_TIMEOUT", 15*time.Second),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getEnvAsDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}
