package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone         = "UTC"
	defaultSweepSchedule    = "0 0 * * *"
	defaultSweepCutoff      = "23:59:59"
	defaultSweepConcurrency = 4
)

// 環境変数による上書き。秘密情報は YAML に置かず .env か環境変数で渡します。
const (
	envJWTSecret        = "AUTH_JWT_SECRET"
	envSweepToken       = "ATTENDANCE_SWEEP_TOKEN"
	envDatabasePassword = "DATABASE_PASSWORD"
)

// Config はアプリケーション全体の設定を表現します。
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Attendance AttendanceConfig `yaml:"attendance"`
}

// ServerConfig は gRPC サーバーに関する設定です。
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DatabaseConfig は PostgreSQL 接続に関する設定です。
type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	SSLMode            string        `yaml:"ssl_mode"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"-"`
	ConnMaxIdleTime    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw string        `yaml:"conn_max_idle_time"`
}

// AuthConfig は認証サービスが発行する JWT の検証設定です。
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// AttendanceConfig は勤務日の基準タイムゾーンと自動ログアウトの設定です。
type AttendanceConfig struct {
	Timezone         string `yaml:"timezone"`
	SweepSchedule    string `yaml:"sweep_schedule"`
	SweepCutoffRaw   string `yaml:"sweep_cutoff"`
	SweepToken       string `yaml:"sweep_token"`
	SweepConcurrency int    `yaml:"sweep_concurrency"`
	SweepEnabledRaw  *bool  `yaml:"sweep_enabled"`

	Location     *time.Location `yaml:"-"`
	SweepCutoff  time.Duration  `yaml:"-"`
	SweepEnabled bool           `yaml:"-"`
}

// LoadDotEnv は .env ファイルを環境変数へ読み込みます。既存の環境変数は上書きしません。
// 存在しないファイルは無視します。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: stat %s: %w", p, err)
		}
		existing = append(existing, p)
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("config: load env file: %w", err)
	}
	return nil
}

// Load は指定されたパスから設定ファイルを読み込みます。
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(envJWTSecret); ok && v != "" {
		c.Auth.JWTSecret = v
	}
	if v, ok := lookup(envSweepToken); ok && v != "" {
		c.Attendance.SweepToken = v
	}
	if v, ok := lookup(envDatabasePassword); ok && v != "" {
		c.Database.Password = v
	}
}

func (c *Config) validateAndNormalize() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must be set")
	}

	if err := c.Database.validateAndNormalize(); err != nil {
		return err
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.jwt_secret must be set")
	}

	return c.Attendance.validateAndNormalize()
}

func (d *DatabaseConfig) validateAndNormalize() error {
	if d.Host == "" {
		return fmt.Errorf("config: database.host must be set")
	}
	if d.Port == 0 {
		return fmt.Errorf("config: database.port must be set")
	}
	if d.User == "" {
		return fmt.Errorf("config: database.user must be set")
	}
	if d.Password == "" {
		return fmt.Errorf("config: database.password must be set")
	}
	if d.Name == "" {
		return fmt.Errorf("config: database.name must be set")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	return nil
}

func (a *AttendanceConfig) validateAndNormalize() error {
	if a.Timezone == "" {
		a.Timezone = defaultTimezone
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return fmt.Errorf("config: attendance.timezone: %w", err)
	}
	a.Location = loc

	if a.SweepSchedule == "" {
		a.SweepSchedule = defaultSweepSchedule
	}
	if _, err := cron.ParseStandard(a.SweepSchedule); err != nil {
		return fmt.Errorf("config: attendance.sweep_schedule: %w", err)
	}

	if a.SweepCutoffRaw == "" {
		a.SweepCutoffRaw = defaultSweepCutoff
	}
	cutoff, err := parseTimeOfDay(a.SweepCutoffRaw)
	if err != nil {
		return fmt.Errorf("config: attendance.sweep_cutoff: %w", err)
	}
	a.SweepCutoff = cutoff

	if a.SweepToken == "" {
		return fmt.Errorf("config: attendance.sweep_token must be set")
	}

	if a.SweepConcurrency == 0 {
		a.SweepConcurrency = defaultSweepConcurrency
	}
	if a.SweepConcurrency < 0 {
		return fmt.Errorf("config: attendance.sweep_concurrency must be positive")
	}

	a.SweepEnabled = a.SweepEnabledRaw == nil || *a.SweepEnabledRaw

	return nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// parseTimeOfDay は HH:MM または HH:MM:SS を 0 時からのオフセットに変換します。
func parseTimeOfDay(raw string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", raw)
	}

	limits := []int{23, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}

	var total time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time of day %q", raw)
		}
		total += time.Duration(n) * units[i]
	}
	if total == 0 {
		return 0, fmt.Errorf("time of day %q must be after midnight", raw)
	}
	return total, nil
}

// DSN は pgx 用の接続文字列を返します。
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	return u.String()
}
