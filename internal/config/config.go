package config

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// DBCredential struct
type DBCredential struct {
	Address     string `yaml:"address"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Port        string `yaml:"port"`
	Database    string `yaml:"database"`
	TablePrefix string `yaml:"table_prefix"`
}

func (c *DBCredential) Dsn() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s",
		c.Address, c.Port, c.User, c.Password, c.Database)
}

// GetRedisAddress prints redis credential info.
func (c *DBCredential) GetRedisAddress() string {
	return fmt.Sprintf("%v:%v", c.Address, c.Port)
}

// Configuration struct
type Configuration struct {
	LogLevel         string       `yaml:"log_level"`
	Environment      string       `yaml:"environment"`
	RedisCredential  DBCredential `yaml:"redis"`
	Postgres         DBCredential `yaml:"postgres"`
	Aws              Aws          `yaml:"aws"`
	DiscordBot       DiscordBot   `yaml:"discord_bot"`
	HTTP             HTTP         `yaml:"http"`
	SentryDSN        string       `yaml:"sentry_dsn"`
	LarkAlarmWebhook string       `yaml:"lark_alarm_webhook"`
	Leveling         Leveling     `yaml:"leveling"`
}

type DiscordBot struct {
	AppID     string `yaml:"app_id"`
	AuthToken string `yaml:"auth_token"`
	// TokenParameter names an SSM parameter holding the token, used when AuthToken is empty.
	TokenParameter string `yaml:"token_parameter"`
	CommandPrefix  string `yaml:"command_prefix"`
}

func (in DiscordBot) IsMe(appID string) bool {
	return in.AppID == appID
}

type HTTP struct {
	Port int `yaml:"port"`
}

type Aws struct {
	Region        string `yaml:"region"`
	ArchiveBucket string `yaml:"archive_bucket"`
}

// Enabled reports whether aws clients should be created at all.
func (in Aws) Enabled() bool {
	return in.Region != ""
}

// Leveling holds the level ladder and the knobs of the xp engine.
type Leveling struct {
	Thresholds             []int         `yaml:"thresholds"`
	DefaultQuestExp        int           `yaml:"default_quest_xp"`
	MaxQuestExp            int           `yaml:"max_quest_xp"`
	BadgeNameExp           int           `yaml:"badge_name_xp"`
	ConfirmTimeout         time.Duration `yaml:"confirm_timeout"`
	WelcomeTTL             time.Duration `yaml:"welcome_ttl"`
	Workers                int           `yaml:"workers"`
	RoleMutationsPerSecond int           `yaml:"role_mutations_per_second"`
	NotificationsPerMinute int           `yaml:"notifications_per_minute"`
	GuildConfigTTL         time.Duration `yaml:"guild_config_ttl"`
}

// DefaultThresholds is the xp needed for levels 1 through 10.
var DefaultThresholds = []int{0, 100, 500, 1200, 2200, 3500, 5100, 7000, 9200, 11700}

const (
	defaultCommandPrefix = "-"
	defaultHTTPPort      = 3000
)

func (c *Configuration) applyDefaults() {
	if c.DiscordBot.CommandPrefix == "" {
		c.DiscordBot.CommandPrefix = defaultCommandPrefix
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = defaultHTTPPort
	}
	l := &c.Leveling
	if len(l.Thresholds) == 0 {
		l.Thresholds = append([]int(nil), DefaultThresholds...)
	}
	if l.DefaultQuestExp == 0 {
		l.DefaultQuestExp = 50
	}
	if l.MaxQuestExp == 0 {
		l.MaxQuestExp = 10000
	}
	if l.BadgeNameExp == 0 {
		l.BadgeNameExp = 5
	}
	if l.ConfirmTimeout == 0 {
		l.ConfirmTimeout = 30 * time.Second
	}
	if l.WelcomeTTL == 0 {
		l.WelcomeTTL = 10 * time.Second
	}
	if l.Workers == 0 {
		l.Workers = 32
	}
	if l.RoleMutationsPerSecond == 0 {
		l.RoleMutationsPerSecond = 5
	}
	if l.NotificationsPerMinute == 0 {
		l.NotificationsPerMinute = 30
	}
	if l.GuildConfigTTL == 0 {
		l.GuildConfigTTL = 10 * time.Minute
	}
}

func (c *Configuration) applyEnv() {
	if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil && port > 0 {
		c.HTTP.Port = port
	}
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		c.DiscordBot.AuthToken = token
	}
}

// Validate checks the parts of the configuration the engine cannot run without.
func (c *Configuration) Validate() error {
	t := c.Leveling.Thresholds
	if len(t) != 10 {
		return fmt.Errorf("leveling.thresholds: want 10 entries, got %d", len(t))
	}
	if t[0] != 0 {
		return fmt.Errorf("leveling.thresholds: level 1 must start at 0, got %d", t[0])
	}
	for i := 1; i < len(t); i++ {
		if t[i] <= t[i-1] {
			return fmt.Errorf("leveling.thresholds: not strictly ascending at level %d", i+1)
		}
	}
	if c.Leveling.DefaultQuestExp < 0 || c.Leveling.DefaultQuestExp > c.Leveling.MaxQuestExp {
		return fmt.Errorf("leveling.default_quest_xp must be within 0..%d", c.Leveling.MaxQuestExp)
	}
	if c.DiscordBot.AuthToken == "" && c.DiscordBot.TokenParameter == "" {
		return fmt.Errorf("discord_bot: auth_token or token_parameter required")
	}
	return nil
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Configuration, error) {
	dat, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file %s does not exist", path)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(dat)
}

// Parse decodes yaml bytes, then applies defaults, environment overrides and validation.
func Parse(dat []byte) (*Configuration, error) {
	t := Configuration{}
	if err := yaml.Unmarshal(dat, &t); err != nil {
		return nil, fmt.Errorf("fail to decode config error: %w", err)
	}
	t.applyDefaults()
	t.applyEnv()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

var Global *Configuration

// Read reads configuration information from yml.
func Read() {
	configFilePath := flag.String("config-path", "internal/config/config.yml", "The path to the configuration file")
	flag.Parse()
	logrus.Infof("Loading configuration file from %s", *configFilePath)
	globalConfig, err := Load(*configFilePath)
	if err != nil {
		logrus.Fatal(err)
	}
	Global = globalConfig
}
