package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level process configuration.
type Config struct {
	AMI        AMIConfig        `yaml:"ami"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	ControlAPI ControlAPIConfig `yaml:"control_api"`
	Database   DatabaseConfig   `yaml:"database"`
	CRM        CRMConfig        `yaml:"crm"`
	Settings   SettingsConfig   `yaml:"settings"`
	Log        LogConfig        `yaml:"log"`
}

// AMIConfig is the Asterisk Manager Interface connection the core dials out to.
type AMIConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	Username          string `yaml:"username"`
	Secret            string `yaml:"secret"`
	ReconnectInterval int    `yaml:"reconnect_interval"`
	ActionTimeoutMS   int    `yaml:"action_timeout_ms"`
}

// GatewayConfig is the websocket push interface exposed to subscribers (§6).
type GatewayConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	BroadcastEveryMS int    `yaml:"broadcast_every_ms"`
}

// ControlAPIConfig fronts supervisor operations behind the JWT guard.
type ControlAPIConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// CRMConfig is the downstream sink §4.4.1 publishes call records to.
type CRMConfig struct {
	Endpoint      string `yaml:"endpoint"`
	TimeoutMS     int    `yaml:"timeout_ms"`
	QueueCapacity int    `yaml:"queue_capacity"`
}

// SettingsConfig seeds the §2 "external source" of monitored extensions and
// the meaningful-number filter rules (Open Question 3).
type SettingsConfig struct {
	MonitoredExtensions   []string `yaml:"monitored_extensions"`
	DialplanContexts      []string `yaml:"dialplan_contexts"`
	PriorityArtifactPrefix string  `yaml:"priority_artifact_prefix"`
	PriorityArtifactLength int     `yaml:"priority_artifact_length"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config yaml: %w", err)
	}

	overrideWithEnv(&cfg)

	return &cfg, nil
}

func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("CALLCORE_AMI_USERNAME"); v != "" {
		cfg.AMI.Username = v
	}
	if v := os.Getenv("CALLCORE_AMI_SECRET"); v != "" {
		cfg.AMI.Secret = v
	}
	if v := os.Getenv("CALLCORE_DB_USERNAME"); v != "" {
		cfg.Database.Username = v
	}
	if v := os.Getenv("CALLCORE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("CALLCORE_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("CALLCORE_DB_DATABASE"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("CALLCORE_CRM_ENDPOINT"); v != "" {
		cfg.CRM.Endpoint = v
	}
	if v := os.Getenv("CALLCORE_JWT_SECRET"); v != "" {
		cfg.ControlAPI.JWTSecret = v
	}
}

// Address returns host:port for the AMI socket.
func (a AMIConfig) Address() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Address returns host:port for the gateway's websocket listener.
func (g GatewayConfig) Address() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// Address returns host:port for the control API listener.
func (c ControlAPIConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DSN returns the MySQL data source name for the go-sql-driver.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}
