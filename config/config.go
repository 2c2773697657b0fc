package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"db"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Mail         MailConfig         `mapstructure:"mail"`
	Log          LogConfig          `mapstructure:"log"`
	Registration RegistrationConfig `mapstructure:"registration"`
	Feature      FeatureConfig      `mapstructure:"feature"`
	Jobs         JobsConfig         `mapstructure:"jobs"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port     int        `mapstructure:"port"`
	BaseURL  string     `mapstructure:"base_url"`
	Timezone string     `mapstructure:"timezone"`
	CORS     CORSConfig `mapstructure:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（Token 黑名单、分布式时段锁、通知队列）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// LockTTL 时段锁最长持有时间
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// AuthConfig JWT 认证配置
type AuthConfig struct {
	JWTSecret               string        `mapstructure:"jwt_secret"`
	AccessTokenTTL          time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTLDefault  time.Duration `mapstructure:"refresh_token_ttl_default"`
	RefreshTokenTTLRemember time.Duration `mapstructure:"refresh_token_ttl_remember_me"`
	AttendanceTokenTTL      time.Duration `mapstructure:"attendance_token_ttl"`
}

// MailConfig SMTP 邮件配置
type MailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// TLS: mandatory | opportunistic | none
	TLS string `mapstructure:"tls"`
	// Timeout 单封邮件连接与发送的总时限
	Timeout time.Duration `mapstructure:"timeout"`
	// Disabled 为 true 时仅记录日志，不真正投递
	Disabled bool `mapstructure:"disabled"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RegistrationConfig 报名引擎配置（对应平台通用设置）
type RegistrationConfig struct {
	ActivateTrainingQuotas          bool   `mapstructure:"activate_training_quotas"`
	DefaultTrainingQuota            int    `mapstructure:"default_training_quota"`
	NbDaysSlotReminder              int    `mapstructure:"nb_days_slot_reminder"`
	NbDaysSpeakerSlotReminder       int    `mapstructure:"nb_days_speaker_slot_reminder"`
	NbWeeksStructuresSlotReminder   int    `mapstructure:"nb_weeks_structures_slot_reminder"`
	StructuresReminderWeekday       string `mapstructure:"structures_reminder_weekday"`
	AutoSlotUnsubscribeDelay        int    `mapstructure:"auto_slot_unsubscribe_delay"`
	AttestationDocumentDepositDelay int    `mapstructure:"attestation_document_deposit_delay"`
	GlobalMailingList               string `mapstructure:"global_mailing_list"`
	// DisabilityNotification never | auto | on_demand
	DisabilityNotification  string `mapstructure:"disability_notification"`
	DisabilityReferentEmail string `mapstructure:"disability_referent_email"`
}

// FeatureConfig 功能开关配置
type FeatureConfig struct {
	ActivateCohort bool `mapstructure:"activate_cohort"`
}

// JobsConfig 定时任务配置
type JobsConfig struct {
	MailingListDir        string        `mapstructure:"mailing_list_dir"`
	StatisticsDir         string        `mapstructure:"statistics_dir"`
	InstitutionsURL       string        `mapstructure:"institutions_url"`
	HTTPTimeout           time.Duration `mapstructure:"http_timeout"`
	UnactivatedAccountTTL time.Duration `mapstructure:"unactivated_account_ttl"`
}

// 平台通用设置的原始环境变量名
var settingEnvBindings = map[string]string{
	"registration.activate_training_quotas":           "ACTIVATE_TRAINING_QUOTAS",
	"registration.default_training_quota":             "DEFAULT_TRAINING_QUOTA",
	"registration.nb_days_slot_reminder":              "NB_DAYS_SLOT_REMINDER",
	"registration.nb_days_speaker_slot_reminder":      "NB_DAYS_SPEAKER_SLOT_REMINDER",
	"registration.nb_weeks_structures_slot_reminder":  "NB_WEEKS_STRUCTURES_SLOT_REMINDER",
	"registration.auto_slot_unsubscribe_delay":        "AUTO_SLOT_UNSUBSCRIBE_DELAY",
	"registration.global_mailing_list":                "GLOBAL_MAILING_LIST",
	"registration.attestation_document_deposit_delay": "ATTESTATION_DOCUMENT_DEPOSIT_DELAY",
}

// Load 从 .env、配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.timezone", "Europe/Paris")
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "immersion")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "Europe/Paris")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "10s")

	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl_default", "24h")
	v.SetDefault("auth.refresh_token_ttl_remember_me", "168h")
	v.SetDefault("auth.attendance_token_ttl", "12h")

	v.SetDefault("mail.smtp_port", 25)
	v.SetDefault("mail.from", "no-reply@immersion.local")
	v.SetDefault("mail.tls", "opportunistic")
	v.SetDefault("mail.timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("registration.activate_training_quotas", false)
	v.SetDefault("registration.default_training_quota", 2)
	v.SetDefault("registration.nb_days_slot_reminder", DefaultSlotReminderDays)
	v.SetDefault("registration.nb_days_speaker_slot_reminder", DefaultSlotReminderDays)
	v.SetDefault("registration.nb_weeks_structures_slot_reminder", 1)
	v.SetDefault("registration.structures_reminder_weekday", "sunday")
	v.SetDefault("registration.auto_slot_unsubscribe_delay", 2)
	v.SetDefault("registration.attestation_document_deposit_delay", 5)
	v.SetDefault("registration.disability_notification", "never")

	v.SetDefault("feature.activate_cohort", true)

	v.SetDefault("jobs.mailing_list_dir", "./var/mailing_lists")
	v.SetDefault("jobs.statistics_dir", "./var/statistics")
	v.SetDefault("jobs.institutions_url", "https://data.enseignementsup-recherche.gouv.fr/api/explore/v2.1/catalog/datasets/fr-esr-principaux-etablissements-enseignement-superieur/records")
	v.SetDefault("jobs.http_timeout", "20s")
	v.SetDefault("jobs.unactivated_account_ttl", "168h")

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("IMMERSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range settingEnvBindings {
		if err := v.BindEnv(key, "IMMERSION_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.Registration.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultSlotReminderDays 时段提醒默认提前天数
const DefaultSlotReminderDays = 4

// Normalize 将非法的提醒配置回退为默认值
func (r *RegistrationConfig) Normalize() {
	if r.NbDaysSlotReminder < 1 {
		r.NbDaysSlotReminder = DefaultSlotReminderDays
	}
	if r.NbDaysSpeakerSlotReminder < 1 {
		r.NbDaysSpeakerSlotReminder = DefaultSlotReminderDays
	}
	if r.NbWeeksStructuresSlotReminder < 1 {
		r.NbWeeksStructuresSlotReminder = 1
	}
	if r.AutoSlotUnsubscribeDelay < 0 {
		r.AutoSlotUnsubscribeDelay = 0
	}
	if r.StructuresReminderWeekday == "" {
		r.StructuresReminderWeekday = "sunday"
	}
	switch r.DisabilityNotification {
	case "never", "auto", "on_demand":
	default:
		r.DisabilityNotification = "never"
	}
}

// ReminderWeekday 解析结构周提醒的执行星期
func (r *RegistrationConfig) ReminderWeekday() (time.Weekday, error) {
	days := map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
		"saturday": time.Saturday,
	}
	d, ok := days[strings.ToLower(r.StructuresReminderWeekday)]
	if !ok {
		return time.Sunday, fmt.Errorf("无效的星期配置 %q", r.StructuresReminderWeekday)
	}
	return d, nil
}

// Location 返回业务时区
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if c.Registration.ActivateTrainingQuotas && c.Registration.DefaultTrainingQuota < 0 {
		return fmt.Errorf("配置校验失败: registration.default_training_quota 不能为负数")
	}
	if _, err := c.Registration.ReminderWeekday(); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	return nil
}
