// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是所有服务共享的配置结构，按服务取用自己关心的部分。
type Config struct {
	App        AppConfig        `yaml:"app"`
	Infra      InfraConfig      `yaml:"infra"`
	Payment    PaymentConfig    `yaml:"payment"`
	Auth       AuthConfig       `yaml:"auth"`
	Checkout   CheckoutConfig   `yaml:"checkout"`
	Assignment AssignmentConfig `yaml:"assignment"`
}

type AppConfig struct {
	LogLevel         string   `yaml:"logLevel"`
	Currency         string   `yaml:"currency"`
	CORSAllowOrigins []string `yaml:"corsAllowOrigins"`
}

type InfraConfig struct {
	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`
	MySQL struct {
		DSN         string `yaml:"dsn"`
		AutoMigrate bool   `yaml:"autoMigrate"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers          []string `yaml:"brokers"`
		OrderEventsTopic string   `yaml:"orderEventsTopic"`
	} `yaml:"kafka"`
	Nacos struct {
		Enabled   bool   `yaml:"enabled"`
		Addrs     string `yaml:"addrs"`
		Namespace string `yaml:"namespace"`
		Group     string `yaml:"group"`
	} `yaml:"nacos"`
	Zookeeper struct {
		Servers []string `yaml:"servers"`
	} `yaml:"zookeeper"`
}

type PaymentConfig struct {
	BaseURL   string        `yaml:"baseUrl"`
	KeyID     string        `yaml:"keyId"`
	KeySecret string        `yaml:"keySecret"`
	Timeout   time.Duration `yaml:"timeout"`
	IntentTTL time.Duration `yaml:"intentTTL"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
}

type CheckoutConfig struct {
	IntentTimeout  time.Duration `yaml:"intentTimeout"`
	PaymentTimeout time.Duration `yaml:"paymentTimeout"`
	PersistTimeout time.Duration `yaml:"persistTimeout"`
	AssignTimeout  time.Duration `yaml:"assignTimeout"`
	// 函数服务地址；启用 Nacos 时按服务名发现，这里作为兜底。
	Services map[string]string `yaml:"services"`
}

type AssignmentConfig struct {
	VendorPolicy  string        `yaml:"vendorPolicy"`
	StalledAfter  time.Duration `yaml:"stalledAfter"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

var currentConfig atomic.Pointer[Config]

// DefaultConfig 返回本地开发可直接使用的默认值。
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.App.LogLevel = "info"
	cfg.App.Currency = "INR"
	cfg.App.CORSAllowOrigins = []string{"*"}
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.MySQL.DSN = "root:root@tcp(localhost:3306)/tiffin"
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Kafka.OrderEventsTopic = "order-events"
	cfg.Infra.Nacos.Addrs = "localhost:8848"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	cfg.Payment.BaseURL = "https://api.razorpay.com"
	cfg.Payment.Timeout = 10 * time.Second
	cfg.Payment.IntentTTL = 15 * time.Minute
	cfg.Checkout.IntentTimeout = 10 * time.Second
	cfg.Checkout.PaymentTimeout = 10 * time.Minute
	cfg.Checkout.PersistTimeout = 10 * time.Second
	cfg.Checkout.AssignTimeout = 15 * time.Second
	cfg.Checkout.Services = map[string]string{}
	cfg.Assignment.VendorPolicy = "vendor.active"
	cfg.Assignment.StalledAfter = 10 * time.Minute
	cfg.Assignment.SweepInterval = time.Minute
	return cfg
}

// Init 加载 .env、配置文件与环境变量覆盖，并设为当前配置。
func Init() *Config {
	_ = godotenv.Load()
	cfg, err := LoadConfig(getEnv("CONFIG_FILE", "configs/config.yaml"))
	if err != nil {
		panic(err)
	}
	currentConfig.Store(cfg)
	return cfg
}

// LoadConfig 读取 YAML；文件不存在时使用默认值，再叠加环境变量。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	case os.IsNotExist(err):
	default:
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// checkoutPersistAttempts 与结账落单步骤的重试次数一致。
const (
	checkoutPersistAttempts = 3
	checkoutPersistBackoff  = 2 * time.Second
)

// PersistBudget 是客户端落单步骤最长可能占用的时间，包含全部重试和退避。
func (c CheckoutConfig) PersistBudget() time.Duration {
	return checkoutPersistAttempts*c.PersistTimeout + checkoutPersistBackoff
}

// Validate 检查跨服务的时间配置。支付意图必须活过收银台等待和全部落单重试，
// 否则已扣款的支付会因意图过期而无法落单。
func (c *Config) Validate() error {
	need := c.Checkout.PaymentTimeout + c.Checkout.PersistBudget()
	if c.Payment.IntentTTL <= need {
		return errors.Errorf("payment.intentTTL (%s) must exceed checkout.paymentTimeout plus the persist budget (%s)",
			c.Payment.IntentTTL, need)
	}
	return nil
}

// GetCurrentConfig 返回最近一次加载的配置；未初始化时返回默认值。
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig()
}

// SetCurrentConfig 供测试替换配置。
func SetCurrentConfig(cfg *Config) {
	currentConfig.Store(cfg)
}

// 密钥类配置只允许来自环境变量或 .env，不进配置文件。
func applyEnv(cfg *Config) {
	overrideString(&cfg.App.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.Infra.Jaeger.Endpoint, "JAEGER_ENDPOINT")
	overrideString(&cfg.Infra.MySQL.DSN, "MYSQL_DSN")
	overrideString(&cfg.Infra.Redis.Addr, "REDIS_ADDR")
	overrideString(&cfg.Infra.Redis.Password, "REDIS_PASSWORD")
	overrideString(&cfg.Infra.Nacos.Addrs, "NACOS_SERVER_ADDRS")
	overrideString(&cfg.Infra.Nacos.Namespace, "NACOS_NAMESPACE")
	overrideString(&cfg.Infra.Nacos.Group, "NACOS_GROUP")
	overrideString(&cfg.Payment.KeyID, "PAYMENT_KEY_ID")
	overrideString(&cfg.Payment.KeySecret, "PAYMENT_KEY_SECRET")
	overrideString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok && v != "" {
		cfg.Infra.Kafka.Brokers = splitCSV(v)
	}
	if v, ok := os.LookupEnv("ZK_SERVERS"); ok && v != "" {
		cfg.Infra.Zookeeper.Servers = splitCSV(v)
	}
	if v, ok := os.LookupEnv("NACOS_ENABLED"); ok {
		cfg.Infra.Nacos.Enabled = v == "true"
	}
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
