package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Payngo  PayngoConfig  `mapstructure:"payngo"`
	Common  CommonConfig  `mapstructure:"common"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// PayngoConfig holds the catalog site and output layout settings
type PayngoConfig struct {
	Domain                 string   `mapstructure:"domain"`
	HomePage               string   `mapstructure:"home_page"`
	BaseDirectory          string   `mapstructure:"base_directory"`
	SaveNewServerTaskPath  string   `mapstructure:"save_new_server_task_path"`
	StoreName              string   `mapstructure:"store_name"`
	ProductDetailsFileName string   `mapstructure:"product_details_file_name"`
	ImageNamePrefix        string   `mapstructure:"image_name_prefix"`
	MoreImageNamePrefix    string   `mapstructure:"more_image_name_prefix"`
	VideoNamePrefix        string   `mapstructure:"video_name_prefix"`
	WaitMin                int      `mapstructure:"wait_min"`       // seconds
	WaitMax                int      `mapstructure:"wait_max"`       // seconds
	DetailRetries          int      `mapstructure:"detail_retries"` // attempts per product page
	TimeoutCall            int      `mapstructure:"timeout_call"`   // seconds
	RetryDelay             int      `mapstructure:"retry_delay"`    // seconds
	MaxRequestsPerSecond   int      `mapstructure:"max_requests_per_second"`
	Proxies                []string `mapstructure:"proxies"`
}

// CommonConfig holds the media storage and remote service settings shared by all store scrapers
type CommonConfig struct {
	ErrorLog                           string `mapstructure:"error_log"`
	SaveImageDirectoryPath             string `mapstructure:"save_image_directory_path"`
	SaveVideoDirectoryPath             string `mapstructure:"save_video_directory_path"`
	SaveImageDirectoryPublicPathPrefix string `mapstructure:"save_image_directory_public_path_prefix"`
	SaveVideoDirectoryPublicPathPrefix string `mapstructure:"save_video_directory_public_path_prefix"`

	// Remote task service
	Email                              string `mapstructure:"email"`
	Password                           string `mapstructure:"password"`
	AuthURL                            string `mapstructure:"auth_url"`
	CheckVideoExistsURL                string `mapstructure:"check_video_exists_url"`
	SaveNewServerTaskForSaveProductURL string `mapstructure:"save_new_server_task_for_save_product_url"`
	CompleteTaskURL                    string `mapstructure:"complete_task_url"`
	RemoteRetryDelay                   int    `mapstructure:"remote_retry_delay"` // seconds
	RemoteMaxAttempts                  int    `mapstructure:"remote_max_attempts"`
	CompletionGrace                    int    `mapstructure:"completion_grace"` // seconds a completion report may outlive shutdown

	FFmpegPath string `mapstructure:"ffmpeg_path"`

	// Accepts a JSON array string (COMMON_USER_AGENTS) or a YAML list
	UserAgents []string `mapstructure:"-"`
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	Database      int    `mapstructure:"database"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	Consumer      string `mapstructure:"consumer"`
	MinIdleTime   int    `mapstructure:"min_idle_time"` // seconds
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"` // empty disables the listener
}

// Load loads configuration from an optional YAML file with environment variable overrides.
// PAYNGO_WAIT_MIN overrides payngo.wait_min, COMMON_AUTH_URL overrides common.auth_url and so on.
// An empty path looks for ./config.yaml and tolerates its absence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	agents, err := decodeList(v.Get("common.user_agents"))
	if err != nil {
		return nil, fmt.Errorf("unable to decode common.user_agents: %w", err)
	}
	config.Common.UserAgents = agents

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// decodeList accepts a JSON array string, a comma separated string or a YAML list.
func decodeList(raw any) ([]string, error) {
	s, ok := raw.(string)
	if !ok {
		return cast.ToStringSliceE(raw)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "[") {
		var list []string
		if err := json.Unmarshal([]byte(s), &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	parts := strings.Split(s, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			list = append(list, p)
		}
	}
	return list, nil
}

// Validate checks the settings a scrape run cannot do without
func (c *Config) Validate() error {
	var errs []error

	if c.Payngo.Domain == "" {
		errs = append(errs, errors.New("payngo.domain is required"))
	}
	if c.Payngo.BaseDirectory == "" {
		errs = append(errs, errors.New("payngo.base_directory is required"))
	}
	if c.Payngo.WaitMin < 0 || c.Payngo.WaitMax < c.Payngo.WaitMin {
		errs = append(errs, fmt.Errorf("invalid wait bounds [%d, %d]", c.Payngo.WaitMin, c.Payngo.WaitMax))
	}
	if c.Payngo.DetailRetries < 1 {
		errs = append(errs, errors.New("payngo.detail_retries must be at least 1"))
	}
	if c.Payngo.TimeoutCall <= 0 {
		errs = append(errs, errors.New("payngo.timeout_call must be positive"))
	}
	if len(c.Common.UserAgents) == 0 {
		errs = append(errs, errors.New("common.user_agents must not be empty"))
	}
	if c.Common.RemoteMaxAttempts < 1 {
		errs = append(errs, errors.New("common.remote_max_attempts must be at least 1"))
	}
	if c.Common.CompletionGrace < 1 {
		errs = append(errs, errors.New("common.completion_grace must be positive"))
	}

	return errors.Join(errs...)
}

func (c PayngoConfig) WaitMinDuration() time.Duration    { return seconds(c.WaitMin) }
func (c PayngoConfig) WaitMaxDuration() time.Duration    { return seconds(c.WaitMax) }
func (c PayngoConfig) Timeout() time.Duration            { return seconds(c.TimeoutCall) }
func (c PayngoConfig) RetryDelayDuration() time.Duration { return seconds(c.RetryDelay) }

func (c CommonConfig) RemoteRetryDelayDuration() time.Duration {
	return seconds(c.RemoteRetryDelay)
}

func (c CommonConfig) CompletionGraceDuration() time.Duration {
	return seconds(c.CompletionGrace)
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c RedisConfig) MinIdleDuration() time.Duration {
	return seconds(c.MinIdleTime)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("payngo.domain", "https://www.payngo.co.il")
	v.SetDefault("payngo.home_page", "https://www.payngo.co.il/")
	v.SetDefault("payngo.base_directory", "./data")
	v.SetDefault("payngo.save_new_server_task_path", "./data")
	v.SetDefault("payngo.store_name", "payngo")
	v.SetDefault("payngo.product_details_file_name", "products.json")
	v.SetDefault("payngo.image_name_prefix", "payngo_")
	v.SetDefault("payngo.more_image_name_prefix", "payngo_more_")
	v.SetDefault("payngo.video_name_prefix", "payngo_video_")
	v.SetDefault("payngo.wait_min", 2)
	v.SetDefault("payngo.wait_max", 5)
	v.SetDefault("payngo.detail_retries", 3)
	v.SetDefault("payngo.timeout_call", 30)
	v.SetDefault("payngo.retry_delay", 5)
	v.SetDefault("payngo.max_requests_per_second", 2)
	v.SetDefault("payngo.proxies", []string{})

	v.SetDefault("common.error_log", "")
	v.SetDefault("common.save_image_directory_path", "./data/images")
	v.SetDefault("common.save_video_directory_path", "./data/videos")
	v.SetDefault("common.save_image_directory_public_path_prefix", "/images/")
	v.SetDefault("common.save_video_directory_public_path_prefix", "/videos/")
	v.SetDefault("common.email", "")
	v.SetDefault("common.password", "")
	v.SetDefault("common.auth_url", "")
	v.SetDefault("common.check_video_exists_url", "")
	v.SetDefault("common.save_new_server_task_for_save_product_url", "")
	v.SetDefault("common.complete_task_url", "")
	v.SetDefault("common.remote_retry_delay", 120)
	v.SetDefault("common.remote_max_attempts", 100000)
	v.SetDefault("common.completion_grace", 600)
	v.SetDefault("common.ffmpeg_path", "ffmpeg")
	v.SetDefault("common.user_agents", `["Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"]`)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.consumer_group", "payngo_consumer")
	v.SetDefault("redis.consumer", "payngo-scraper")
	v.SetDefault("redis.min_idle_time", 3600)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("metrics.listen_addr", "")
}
