package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/fiora-client/backend/internal/service/fiora"
	"github.com/zhouzirui/fiora-client/backend/internal/service/socket"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Fiora   FioraConfig
	Storage StorageConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	fioraCfg, err := loadFioraConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Fiora: fioraCfg, Storage: loadStorageConfig()}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// FioraConfig 描述 Fiora 服务连接与客户端行为。
type FioraConfig struct {
	URL               string
	Origin            string
	SocketPath        string
	EIO               int
	ClientName        string
	Username          string
	Password          string
	AckTimeout        time.Duration
	SealCooldown      time.Duration
	Reconnect         bool
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	SilentSend        bool
}

// HasCredentials 是否配置了用户名密码。
func (c FioraConfig) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// SocketOptions 使用配置创建传输层参数。
func (c FioraConfig) SocketOptions() *socket.Options {
	opts := socket.DefaultOptions(c.URL)
	opts.EIO = c.EIO
	opts.Origin = c.Origin
	if c.SocketPath != "" {
		opts.Path = c.SocketPath
	}
	opts.Reconnection = c.Reconnect
	opts.ReconnectionDelay = c.ReconnectDelay
	opts.ReconnectionDelayMax = c.ReconnectDelayMax
	return opts
}

// ClientOptions 使用配置创建客户端参数，version 写入登录时的环境描述。
func (c FioraConfig) ClientOptions(version string) fiora.Options {
	return fiora.Options{
		BaseURL:      c.URL,
		ClientInfo:   fiora.ClientInfo{Browser: c.ClientName},
		Version:      version,
		AckTimeout:   c.AckTimeout,
		SealCooldown: c.SealCooldown,
	}
}

func loadFioraConfig() (FioraConfig, error) {
	rawURL := getEnvOrDefault("FIORA_URL", fiora.DefaultBaseURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return FioraConfig{}, fmt.Errorf("invalid FIORA_URL value %q", rawURL)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return FioraConfig{}, fmt.Errorf("invalid FIORA_URL scheme %q", u.Scheme)
	}

	eio := 3
	if override, err := parseOptionalIntEnv("FIORA_EIO"); err != nil {
		return FioraConfig{}, err
	} else if override != nil {
		if *override != 3 && *override != 4 {
			return FioraConfig{}, fmt.Errorf("invalid FIORA_EIO value %d: only 3 and 4 are supported", *override)
		}
		eio = *override
	}

	ackTimeout, err := parseDurationEnv("FIORA_ACK_TIMEOUT", fiora.DefaultAckTimeout)
	if err != nil {
		return FioraConfig{}, err
	}

	sealCooldown, err := parseDurationEnv("FIORA_SEAL_COOLDOWN", fiora.SealUserTimeout)
	if err != nil {
		return FioraConfig{}, err
	}

	reconnect, err := parseBoolEnv("FIORA_RECONNECT", true)
	if err != nil {
		return FioraConfig{}, err
	}

	delay, err := parseMillisEnv("FIORA_RECONNECT_DELAY_MS", time.Second)
	if err != nil {
		return FioraConfig{}, err
	}

	delayMax, err := parseMillisEnv("FIORA_RECONNECT_DELAY_MAX_MS", 5*time.Second)
	if err != nil {
		return FioraConfig{}, err
	}
	if delayMax < delay {
		delayMax = delay
	}

	silent, err := parseBoolEnv("FIORA_SILENT_SEND", false)
	if err != nil {
		return FioraConfig{}, err
	}

	// Origin 默认与服务地址一致
	origin := getEnvOrDefault("FIORA_ORIGIN", u.Scheme+"://"+u.Host)

	return FioraConfig{
		URL:               strings.TrimRight(rawURL, "/"),
		Origin:            origin,
		SocketPath:        getEnvOrDefault("FIORA_SOCKET_PATH", ""),
		EIO:               eio,
		ClientName:        getEnvOrDefault("FIORA_CLIENT_NAME", fiora.DefaultClientName),
		Username:          strings.TrimSpace(os.Getenv("FIORA_USERNAME")),
		Password:          os.Getenv("FIORA_PASSWORD"),
		AckTimeout:        ackTimeout,
		SealCooldown:      sealCooldown,
		Reconnect:         reconnect,
		ReconnectDelay:    delay,
		ReconnectDelayMax: delayMax,
		SilentSend:        silent,
	}, nil
}

// MemoryStoragePath 使凭据只保存在进程内存中。
const MemoryStoragePath = "memory"

// StorageConfig 描述凭据存储位置。
type StorageConfig struct {
	Path string
}

// InMemory 凭据是否只保存在内存中。
func (c StorageConfig) InMemory() bool {
	return c.Path == MemoryStoragePath
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{Path: getEnvOrDefault("FIORA_DB_PATH", "fiora.db")}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseDurationEnv 接受 "30s" 这类时长，"0" 表示不限制。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	if raw == "0" {
		return 0, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseMillisEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	ms, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if ms == nil {
		return defaultValue, nil
	}
	if *ms <= 0 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *ms)
	}
	return time.Duration(*ms) * time.Millisecond, nil
}
