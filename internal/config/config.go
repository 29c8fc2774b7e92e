package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Telegram TelegramConfig
	Panel    PanelConfig
	YooKassa YooKassaConfig
	Referral ReferralConfig
	Regions  []RegionConfig
	Tariffs  []Tariff
}

type ServerConfig struct {
	Port         string
	Environment  string
	APIKey       string
	AllowOrigins string
	PublicURL    string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type TelegramConfig struct {
	BotToken       string
	AdminIDs       []int64
	SupportContact string
}

type PanelConfig struct {
	Username  string
	Password  string
	InboundID int
}

type YooKassaConfig struct {
	ShopID    string
	SecretKey string
	ReturnURL string
	BaseURL   string
}

type ReferralConfig struct {
	Cap              int
	PerReferralDays  int
	MilestoneDays    int
	PaidBonusDivisor int
}

// RegionConfig describes one edge server. Variants like "fi2" share the
// parent region "fi" and only one of them participates in a fan-out.
type RegionConfig struct {
	Code      string
	Parent    string
	PanelURL  string
	Host      string
	PublicKey string
	SNI       string
	ShortID   string
	Label     string
}

// Tariff is a purchasable plan: one payload, one duration, one price per channel.
type Tariff struct {
	Payload    string
	Days       int
	PriceRUB   int
	PriceStars int
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Name + "?sslmode=" + d.SSLMode
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	inboundID, _ := strconv.Atoi(getEnv("PANEL_INBOUND_ID", "1"))

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			APIKey:       getEnv("API_KEY", ""),
			AllowOrigins: getEnv("ALLOW_ORIGINS", "*"),
			PublicURL:    getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "vpn"),
			Password: getEnv("DB_PASSWORD", "vpn"),
			Name:     getEnv("DB_NAME", "vpn"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Telegram: TelegramConfig{
			BotToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
			AdminIDs:       parseInt64List(getEnv("ADMIN_IDS", "")),
			SupportContact: getEnv("SUPPORT_CONTACT", "@vpn_support"),
		},
		Panel: PanelConfig{
			Username:  getEnv("PANEL_USERNAME", "admin"),
			Password:  getEnv("PANEL_PASSWORD", ""),
			InboundID: inboundID,
		},
		YooKassa: YooKassaConfig{
			ShopID:    getEnv("YOOKASSA_SHOP_ID", ""),
			SecretKey: getEnv("YOOKASSA_SECRET_KEY", ""),
			ReturnURL: getEnv("YOOKASSA_RETURN_URL", "https://t.me"),
			BaseURL:   getEnv("YOOKASSA_BASE_URL", "https://api.yookassa.ru/v3"),
		},
		Referral: ReferralConfig{
			Cap:              getEnvInt("REFERRAL_CAP", 7),
			PerReferralDays:  getEnvInt("REFERRAL_DAYS", 2),
			MilestoneDays:    getEnvInt("REFERRAL_MILESTONE_DAYS", 15),
			PaidBonusDivisor: getEnvInt("REFERRAL_PAID_DIVISOR", 10),
		},
		Regions: loadRegions(getEnv("SERVER_ORDER", "fi")),
		Tariffs: loadTariffs(),
	}

	return cfg, nil
}

func loadRegions(order string) []RegionConfig {
	var regions []RegionConfig
	for _, code := range strings.Split(order, ",") {
		code = strings.TrimSpace(strings.ToLower(code))
		if code == "" {
			continue
		}
		prefix := "REGION_" + strings.ToUpper(code) + "_"
		regions = append(regions, RegionConfig{
			Code:      code,
			Parent:    parentRegion(code),
			PanelURL:  getEnv(prefix+"PANEL_URL", ""),
			Host:      getEnv(prefix+"HOST", ""),
			PublicKey: getEnv(prefix+"PBK", ""),
			SNI:       getEnv(prefix+"SNI", "yahoo.com"),
			ShortID:   getEnv(prefix+"SID", ""),
			Label:     getEnv(prefix+"LABEL", "VPN "+strings.ToUpper(parentRegion(code))),
		})
	}
	return regions
}

func loadTariffs() []Tariff {
	return []Tariff{
		{Payload: "sub_1m", Days: 31, PriceRUB: getEnvInt("PRICE_1M_RUB", 149), PriceStars: getEnvInt("PRICE_1M_STAR", 149)},
		{Payload: "sub_3m", Days: 93, PriceRUB: getEnvInt("PRICE_3M_RUB", 349), PriceStars: getEnvInt("PRICE_3M_STAR", 349)},
		{Payload: "sub_6m", Days: 180, PriceRUB: getEnvInt("PRICE_6M_RUB", 599), PriceStars: getEnvInt("PRICE_6M_STAR", 599)},
		{Payload: "sub_12m", Days: 365, PriceRUB: getEnvInt("PRICE_12M_RUB", 999), PriceStars: getEnvInt("PRICE_12M_STAR", 999)},
	}
}

// parentRegion strips the trailing variant digits: "fi2" -> "fi".
func parentRegion(code string) string {
	return strings.TrimRight(code, "0123456789")
}

// FanOutRegions returns one region per parent, in configured order.
func (c *Config) FanOutRegions() []RegionConfig {
	seen := make(map[string]bool)
	var out []RegionConfig
	for _, r := range c.Regions {
		if seen[r.Parent] {
			continue
		}
		seen[r.Parent] = true
		out = append(out, r)
	}
	return out
}

func (c *Config) Region(code string) (RegionConfig, bool) {
	for _, r := range c.Regions {
		if r.Code == code {
			return r, true
		}
	}
	return RegionConfig{}, false
}

func (c *Config) Tariff(payload string) (Tariff, bool) {
	for _, t := range c.Tariffs {
		if t.Payload == payload {
			return t, true
		}
	}
	return Tariff{}, false
}

func (c *Config) IsAdmin(tgID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == tgID {
			return true
		}
	}
	return false
}

// InvoiceTTL bounds how long a payment invoice stays pending.
func (c *Config) InvoiceTTL() time.Duration {
	return time.Duration(getEnvInt("INVOICE_TTL_SECONDS", 240)) * time.Second
}

// ReservationTTL reads the slot hold duration and clamps it to a sane window.
func (c *Config) ReservationTTL() time.Duration {
	ttl := time.Duration(getEnvInt("RESERVATION_TTL_SECONDS", 60)) * time.Second
	if ttl < MinReservationTTL {
		return MinReservationTTL
	}
	if ttl > MaxReservationTTL {
		return MaxReservationTTL
	}
	return ttl
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func parseInt64List(s string) []int64 {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// Durations and fixed plan parameters
const (
	MinReservationTTL = 30 * time.Second
	MaxReservationTTL = 90 * time.Second

	CardPollInterval  = 30 * time.Second
	ClickCoalesceTTL  = 3 * time.Second
	ProfileUpdateFreq = 12 // hours, advertised to subscription clients

	TrialDays = 3
)
