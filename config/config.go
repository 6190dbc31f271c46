package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Worker     WorkerConfig     `yaml:"worker"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	JSONCargo  JSONCargoConfig  `yaml:"jsoncargo"`
	Datalastic DatalasticConfig `yaml:"datalastic"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	SNS        SNSConfig        `yaml:"sns"`
	Log        LogConfig        `yaml:"log"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"gt=0"`
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password" json:"-"`
	DBName   string `yaml:"name" validate:"required"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.Username, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

type KafkaConfig struct {
	Host                       string `yaml:"host"`
	Port                       int    `yaml:"port"`
	ShipmentUpdatedTopicName   string `yaml:"shipment_updated_topic_name"`
	NotificationTasksTopicName string `yaml:"notification_tasks_topic_name"`
}

// Enabled is false when no broker is configured: events are not published then.
func (k KafkaConfig) Enabled() bool { return k.Host != "" }

func (k KafkaConfig) Brokers() []string {
	return []string{net.JoinHostPort(k.Host, strconv.Itoa(k.Port))}
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (r RedisConfig) Enabled() bool { return r.Host != "" }

func (r RedisConfig) Addr() string { return net.JoinHostPort(r.Host, strconv.Itoa(r.Port)) }

const (
	NotificationModeDirect = "direct"
	NotificationModeQueue  = "queue"
)

type WorkerConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	IntervalSeconds       int `yaml:"interval_seconds" validate:"gt=0"`
	BatchSize             int `yaml:"batch_size" validate:"gt=0,lte=1000"`
	Concurrency           int `yaml:"concurrency" validate:"gte=1,lte=16"`
	FetchTimeoutSeconds   int `yaml:"fetch_timeout_seconds" validate:"gt=0"`
	VesselTimeoutSeconds  int `yaml:"vessel_timeout_seconds" validate:"gt=0"`
	NotifyTimeoutSeconds  int `yaml:"notify_timeout_seconds" validate:"gt=0"`
	LockTTLSeconds        int `yaml:"lock_ttl_seconds" validate:"gt=0"`
	RetryAttempts         int `yaml:"retry_attempts" validate:"gte=1,lte=10"`
	RetryInitialMillis    int `yaml:"retry_initial_ms" validate:"gt=0"`
	RateLimitPerMinute    int `yaml:"rate_limit_per_minute" validate:"gte=0"`
	VesselCacheTTLSeconds int `yaml:"vessel_cache_ttl_seconds" validate:"gt=0"`

	TrackingProvider string `yaml:"tracking_provider" validate:"oneof=jsoncargo fake"`
	VesselProvider   string `yaml:"vessel_provider" validate:"omitempty,oneof=datalastic fake"`
	NotificationMode string `yaml:"notification_mode" validate:"oneof=direct queue"`
}

func (w WorkerConfig) Interval() time.Duration       { return seconds(w.IntervalSeconds) }
func (w WorkerConfig) FetchTimeout() time.Duration   { return seconds(w.FetchTimeoutSeconds) }
func (w WorkerConfig) VesselTimeout() time.Duration  { return seconds(w.VesselTimeoutSeconds) }
func (w WorkerConfig) NotifyTimeout() time.Duration  { return seconds(w.NotifyTimeoutSeconds) }
func (w WorkerConfig) LockTTL() time.Duration        { return seconds(w.LockTTLSeconds) }
func (w WorkerConfig) VesselCacheTTL() time.Duration { return seconds(w.VesselCacheTTLSeconds) }
func (w WorkerConfig) RetryInitial() time.Duration {
	return time.Duration(w.RetryInitialMillis) * time.Millisecond
}

type DispatcherConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	ConsumerGroup      string `yaml:"consumer_group"`
	Attempts           int    `yaml:"attempts" validate:"gte=1"`
	SendTimeoutSeconds int    `yaml:"send_timeout_seconds" validate:"gt=0"`
	DedupTTLHours      int    `yaml:"dedup_ttl_hours" validate:"gt=0"`
}

func (d DispatcherConfig) SendTimeout() time.Duration { return seconds(d.SendTimeoutSeconds) }
func (d DispatcherConfig) DedupTTL() time.Duration {
	return time.Duration(d.DedupTTLHours) * time.Hour
}

type JSONCargoConfig struct {
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	APIKey  string `yaml:"api_key" json:"-"`
}

type DatalasticConfig struct {
	BaseURL       string  `yaml:"base_url" validate:"omitempty,url"`
	APIKey        string  `yaml:"api_key" json:"-"`
	RatePerSecond float64 `yaml:"rate_per_second" validate:"gte=0"`
	Burst         int     `yaml:"burst" validate:"gte=0"`
}

type SMTPConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	From           string `yaml:"from" validate:"omitempty,email"`
	FromName       string `yaml:"from_name"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password" json:"-"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (s SMTPConfig) Timeout() time.Duration { return seconds(s.TimeoutSeconds) }

type SNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// LoadConfig reads .env (if present), the YAML file, secret overrides from the environment,
// and fills defaults. It does not validate: call Validate before starting work.
func LoadConfig(filename string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	config.applyEnv()
	config.Defaults()
	return &config, nil
}

// Секреты удобнее держать в окружении, а не в yaml.
func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&c.JSONCargo.APIKey, "JSONCARGO_API_KEY")
	override(&c.Datalastic.APIKey, "DATALASTIC_API_KEY")
	override(&c.SMTP.Password, "SMTP_PASSWORD")
	override(&c.Database.Password, "DATABASE_PASSWORD")
}

func (c *Config) Defaults() {
	if c.Database.Port <= 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Kafka.Port <= 0 {
		c.Kafka.Port = 9092
	}
	if c.Kafka.ShipmentUpdatedTopicName == "" {
		c.Kafka.ShipmentUpdatedTopicName = "shipment.updated"
	}
	if c.Kafka.NotificationTasksTopicName == "" {
		c.Kafka.NotificationTasksTopicName = "notification.tasks"
	}
	if c.Redis.Port <= 0 {
		c.Redis.Port = 6379
	}

	w := &c.Worker
	if w.HTTPAddr == "" {
		w.HTTPAddr = ":8081"
	}
	if w.IntervalSeconds <= 0 {
		w.IntervalSeconds = 30 * 60
	}
	if w.BatchSize <= 0 {
		w.BatchSize = 100
	}
	if w.Concurrency <= 0 {
		w.Concurrency = 8
	}
	if w.FetchTimeoutSeconds <= 0 {
		w.FetchTimeoutSeconds = 30
	}
	if w.VesselTimeoutSeconds <= 0 {
		w.VesselTimeoutSeconds = 30
	}
	if w.NotifyTimeoutSeconds <= 0 {
		w.NotifyTimeoutSeconds = 15
	}
	if w.LockTTLSeconds <= 0 {
		w.LockTTLSeconds = 120
	}
	if w.RetryAttempts <= 0 {
		w.RetryAttempts = 3
	}
	if w.RetryInitialMillis <= 0 {
		w.RetryInitialMillis = 500
	}
	if w.VesselCacheTTLSeconds <= 0 {
		w.VesselCacheTTLSeconds = 300
	}
	if w.TrackingProvider == "" {
		w.TrackingProvider = "jsoncargo"
	}
	if w.NotificationMode == "" {
		w.NotificationMode = NotificationModeDirect
	}

	d := &c.Dispatcher
	if d.HTTPAddr == "" {
		d.HTTPAddr = ":8082"
	}
	if d.ConsumerGroup == "" {
		d.ConsumerGroup = "notify-dispatcher"
	}
	if d.Attempts <= 0 {
		d.Attempts = 3
	}
	if d.SendTimeoutSeconds <= 0 {
		d.SendTimeoutSeconds = 15
	}
	if d.DedupTTLHours <= 0 {
		d.DedupTTLHours = 72
	}

	if c.Datalastic.RatePerSecond <= 0 {
		c.Datalastic.RatePerSecond = 2
	}
	if c.Datalastic.Burst <= 0 {
		c.Datalastic.Burst = 1
	}
	if c.SMTP.Port <= 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.TimeoutSeconds <= 0 {
		c.SMTP.TimeoutSeconds = 15
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

var validate = validator.New()

// Validate fails on misconfiguration that would otherwise only show up mid-run,
// such as a selected provider without credentials.
func (c *Config) Validate() error {
	if err := validateTags(c); err != nil {
		return err
	}

	var problems []string
	if c.Worker.TrackingProvider == "jsoncargo" && c.JSONCargo.APIKey == "" {
		problems = append(problems, "jsoncargo.api_key is required (or JSONCARGO_API_KEY)")
	}
	if c.Worker.VesselProvider == "datalastic" && c.Datalastic.APIKey == "" {
		problems = append(problems, "datalastic.api_key is required (or DATALASTIC_API_KEY)")
	}
	problems = append(problems, c.channelProblems()...)
	if c.Worker.NotificationMode == NotificationModeQueue && !c.Kafka.Enabled() {
		problems = append(problems, "kafka.host is required for notification_mode=queue")
	}
	return joinProblems(problems)
}

// ValidateDispatcher checks only what notify-dispatcher reads: kafka, the dispatcher
// section and the delivery channels. Worker settings and provider keys are not required.
func (c *Config) ValidateDispatcher() error {
	for _, section := range []any{c.Dispatcher, c.SMTP, c.SNS, c.Log} {
		if err := validateTags(section); err != nil {
			return err
		}
	}

	var problems []string
	if !c.Kafka.Enabled() {
		problems = append(problems, "kafka.host is required for notify-dispatcher")
	}
	if !c.SMTP.Enabled && !c.SNS.Enabled {
		problems = append(problems, "enable smtp and/or sns for notify-dispatcher")
	}
	problems = append(problems, c.channelProblems()...)
	return joinProblems(problems)
}

func (c *Config) channelProblems() []string {
	var problems []string
	if c.SMTP.Enabled && (c.SMTP.Host == "" || c.SMTP.From == "") {
		problems = append(problems, "smtp.host and smtp.from are required when smtp is enabled")
	}
	if c.SNS.Enabled && c.SNS.Region == "" {
		problems = append(problems, "sns.region is required when sns is enabled")
	}
	return problems
}

func validateTags(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func joinProblems(problems []string) error {
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
