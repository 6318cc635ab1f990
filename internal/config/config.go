package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultPath 是默认配置文件路径。
const DefaultPath = "configs/config.json"

// Config 保存应用程序配置。
type Config struct {
	App     AppConfig     `json:"app"`
	MySQL   MySQLConfig   `json:"mysql"`
	Redis   RedisConfig   `json:"redis"`
	Session SessionConfig `json:"session"`
	Message MessageConfig `json:"message"`
	CORS    CORSConfig    `json:"cors"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env      string `json:"env"`       // 运行环境: local / prod
	LogLevel string `json:"log_level"` // 日志级别: debug / info / warn / error
	HTTPAddr string `json:"http_addr"` // API 服务监听地址
	SeedDemo bool   `json:"seed_demo"` // 启动时是否写入演示账号
}

// IsProduction 报告是否运行在生产环境（错误信息需脱敏）。
func (a AppConfig) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(a.Env))
	return env == "prod" || env == "production"
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN         string `json:"dsn"`          // 数据库连接字符串
	AutoMigrate bool   `json:"auto_migrate"` // 启动时是否执行 gorm AutoMigrate
}

// RedisConfig Redis 缓存配置（会话 token 存储）。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
	DB       int    `json:"db"`       // Redis DB 编号
}

// SessionConfig 会话 token 配置。
type SessionConfig struct {
	TokenTTL  time.Duration `json:"token_ttl"`  // 滑动过期窗口（默认 7 天）
	ClockSkew time.Duration `json:"clock_skew"` // Redis key 在过期时间之后额外保留的时长
}

// MessageConfig 消息相关配置。
type MessageConfig struct {
	SendDedupWindow time.Duration `json:"send_dedup_window"` // 同一消息 ID 的 Redis 占位窗口
	MaxPageSize     int           `json:"max_page_size"`     // 单次查询最多返回条数
}

// CORSConfig 跨域配置。
type CORSConfig struct {
	AllowOrigins []string `json:"allow_origins"`
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
// 读取后依次应用默认值、.env 文件以及环境变量覆盖。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json"）
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := DefaultPath
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	// .env 只补充尚未设置的环境变量，文件不存在时忽略
	_ = godotenv.Load()

	// 如果配置文件不存在，使用默认配置
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Save 保存配置到 JSON 文件。
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Default 返回一份默认配置（不读取文件和环境变量）。
func Default() *Config {
	return getDefaultConfig()
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:      "local",
			LogLevel: "info",
			HTTPAddr: ":7001",
			SeedDemo: false,
		},
		MySQL: MySQLConfig{
			DSN:         "root:root@tcp(localhost:3306)/SayHi?parseTime=true&loc=Local",
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		},
		Session: SessionConfig{
			TokenTTL:  7 * 24 * time.Hour,
			ClockSkew: 5 * time.Minute,
		},
		Message: MessageConfig{
			SendDedupWindow: time.Minute,
			MaxPageSize:     100,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Session.TokenTTL == 0 {
		cfg.Session.TokenTTL = defaults.Session.TokenTTL
	}
	if cfg.Session.ClockSkew == 0 {
		cfg.Session.ClockSkew = defaults.Session.ClockSkew
	}
	if cfg.Message.SendDedupWindow == 0 {
		cfg.Message.SendDedupWindow = defaults.Message.SendDedupWindow
	}
	if cfg.Message.MaxPageSize <= 0 {
		cfg.Message.MaxPageSize = defaults.Message.MaxPageSize
	}
	if len(cfg.CORS.AllowOrigins) == 0 {
		cfg.CORS.AllowOrigins = defaults.CORS.AllowOrigins
	}
}

func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.AutomaticEnv()

	_ = v.BindEnv("db_host", "DB_HOST")
	_ = v.BindEnv("db_password", "DB_PASSWORD")
	_ = v.BindEnv("redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis_db", "REDIS_DB")
	_ = v.BindEnv("session_token_ttl", "SESSION_TOKEN_TTL")
	_ = v.BindEnv("session_clock_skew", "SESSION_CLOCK_SKEW")
	_ = v.BindEnv("message_send_dedup_window", "MESSAGE_SEND_DEDUP_WINDOW")
	_ = v.BindEnv("message_max_page_size", "MESSAGE_MAX_PAGE_SIZE")
	_ = v.BindEnv("cors_allow_origins", "CORS_ALLOW_ORIGINS")

	if val := os.Getenv("APP_ENV"); val != "" {
		cfg.App.Env = val
	}
	if val := os.Getenv("APP_LOG_LEVEL"); val != "" {
		cfg.App.LogLevel = val
	}
	if val := os.Getenv("APP_HTTP_ADDR"); val != "" {
		cfg.App.HTTPAddr = val
	}
	if val := os.Getenv("APP_SEED_DEMO"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.App.SeedDemo = b
		}
	}
	if val := os.Getenv("MYSQL_AUTO_MIGRATE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.MySQL.AutoMigrate = b
		}
	}

	if val := os.Getenv("DB_DSN"); val != "" {
		cfg.MySQL.DSN = val
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if host := v.GetString("db_host"); host != "" {
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = host + ":" + port
		} else if port := os.Getenv("DB_PORT"); port != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + port
		}
		if user := os.Getenv("DB_USER"); user != "" {
			parsed.User = user
		}
		if pass := v.GetString("db_password"); pass != "" {
			parsed.Passwd = pass
		}
		if name := os.Getenv("DB_NAME"); name != "" {
			parsed.DBName = name
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if val := v.GetString("redis_addr"); val != "" {
		cfg.Redis.Addr = val
	}
	if val := v.GetString("redis_password"); val != "" {
		cfg.Redis.Password = val
	}
	if val := v.GetString("redis_db"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = i
		}
	}

	if val := v.GetString("session_token_ttl"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			cfg.Session.TokenTTL = d
		}
	}
	if val := v.GetString("session_clock_skew"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d >= 0 {
			cfg.Session.ClockSkew = d
		}
	}
	if val := v.GetString("message_send_dedup_window"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			cfg.Message.SendDedupWindow = d
		}
	}
	if val := v.GetString("message_max_page_size"); val != "" {
		if i, err := strconv.Atoi(val); err == nil && i > 0 {
			cfg.Message.MaxPageSize = i
		}
	}
	if val := v.GetString("cors_allow_origins"); val != "" {
		origins := make([]string, 0)
		for _, o := range strings.Split(val, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.CORS.AllowOrigins = origins
		}
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fallbackAddr == "" {
		return defaultValue
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := func() *mysql.Config {
		cfg := mysql.NewConfig()
		cfg.User = "root"
		cfg.Net = "tcp"
		cfg.Addr = "localhost:3306"
		cfg.DBName = "SayHi"
		cfg.ParseTime = true
		return cfg
	}
	if dsn == "" {
		return fallback()
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback()
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串（如 "168h"）。
func (s *SessionConfig) UnmarshalJSON(data []byte) error {
	aux := struct {
		TokenTTL  string `json:"token_ttl"`
		ClockSkew string `json:"clock_skew"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.TokenTTL != "" {
		d, err := time.ParseDuration(aux.TokenTTL)
		if err != nil {
			return fmt.Errorf("invalid token_ttl format: %w", err)
		}
		s.TokenTTL = d
	}
	if aux.ClockSkew != "" {
		d, err := time.ParseDuration(aux.ClockSkew)
		if err != nil {
			return fmt.Errorf("invalid clock_skew format: %w", err)
		}
		s.ClockSkew = d
	}
	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (s SessionConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TokenTTL  string `json:"token_ttl"`
		ClockSkew string `json:"clock_skew"`
	}{
		TokenTTL:  s.TokenTTL.String(),
		ClockSkew: s.ClockSkew.String(),
	})
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (m *MessageConfig) UnmarshalJSON(data []byte) error {
	type Alias MessageConfig
	aux := &struct {
		SendDedupWindow string `json:"send_dedup_window"`
		*Alias
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.SendDedupWindow != "" {
		d, err := time.ParseDuration(aux.SendDedupWindow)
		if err != nil {
			return fmt.Errorf("invalid send_dedup_window format: %w", err)
		}
		m.SendDedupWindow = d
	}
	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (m MessageConfig) MarshalJSON() ([]byte, error) {
	type Alias MessageConfig
	return json.Marshal(&struct {
		SendDedupWindow string `json:"send_dedup_window"`
		*Alias
	}{
		SendDedupWindow: m.SendDedupWindow.String(),
		Alias:           (*Alias)(&m),
	})
}
