package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	ErrRootMissing       = errors.New("root path does not exist")
	ErrOutputNotWritable = errors.New("cannot write to output directory")
	ErrDomainMissing     = errors.New("domain is required")
)

const (
	defaultCrawlInterval  = 24 * time.Hour
	defaultProbeTimeout   = 10 * time.Second
	defaultBlacklistPath  = "blackList.json"
	defaultSitemapOutput  = "./sitemap.xml"
	defaultDatabaseDriver = "sqlite3"
)

type Config struct {
	Sitemap struct {
		Domain    string
		Root      string
		Output    string
		Quiet     bool
		LiveCheck bool
	}
	Crawler struct {
		Blacklist     string
		RespectRobots bool
		SkipNoIndex   bool
	}
	Live struct {
		UserAgent string
		Timeout   string
		RateLimit float64
	}
	Database struct {
		Driver string
		URL    string
	}
	Server struct {
		Port int
	}
	Schedule struct {
		Interval string
	}
	Logging struct {
		Dir string
	}
}

// Flags returns the command line surface of the generator. Flag names are
// camelCase for compatibility with existing invocations.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("sitemap", pflag.ContinueOnError)
	fs.String("domain", "", "Domain for the sitemap")
	fs.String("path", "", "Root directory for crawling")
	fs.Bool("quiet", false, "Suppress live logging")
	fs.Bool("liveCheck", false, "Only add paths that exist on that domain")
	fs.String("output", defaultSitemapOutput, "XML File output")
	fs.String("config", "", "Path to a config file")
	return fs
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"sitemap.domain":    "domain",
		"sitemap.root":      "path",
		"sitemap.quiet":     "quiet",
		"sitemap.livecheck": "liveCheck",
		"sitemap.output":    "output",
	}
	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// LoadConfig reads .env, config.yaml (optional), SITEMAP_* environment
// variables and, when given, parsed command line flags, in increasing precedence.
func LoadConfig(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Only warn if the file exists but could not be loaded.
		if _, statErr := os.Stat(".env"); statErr == nil {
			log.Printf("Warning: .env file found but could not be loaded: %v", err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
		}
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix("SITEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sitemap.domain", "")
	v.SetDefault("sitemap.root", "")
	v.SetDefault("sitemap.output", defaultSitemapOutput)
	v.SetDefault("sitemap.quiet", false)
	v.SetDefault("sitemap.livecheck", false)
	v.SetDefault("crawler.blacklist", defaultBlacklistPath)
	v.SetDefault("crawler.respectrobots", false)
	v.SetDefault("crawler.skipnoindex", false)
	v.SetDefault("live.useragent", "Local SiteMap Generator/1.0")
	v.SetDefault("live.timeout", "10s")
	v.SetDefault("live.ratelimit", 0)
	v.SetDefault("database.driver", defaultDatabaseDriver)
	v.SetDefault("database.url", "sitemap.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("schedule.interval", "24h")
	v.SetDefault("logging.dir", "")
}

func (c *Config) GetCrawlDuration() time.Duration {
	duration, err := time.ParseDuration(c.Schedule.Interval)
	if err != nil || duration <= 0 {
		return defaultCrawlInterval
	}
	return duration
}

func (c *Config) GetProbeTimeout() time.Duration {
	duration, err := time.ParseDuration(c.Live.Timeout)
	if err != nil || duration <= 0 {
		return defaultProbeTimeout
	}
	return duration
}

// Validate checks the preconditions of a generation run: a domain, an existing
// root directory and a writable output directory. Nothing is written on failure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Sitemap.Domain) == "" {
		return ErrDomainMissing
	}

	info, err := os.Stat(c.Sitemap.Root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrRootMissing, c.Sitemap.Root)
	}

	return CheckWritableDir(filepath.Dir(c.Sitemap.Output))
}

// CheckWritableDir probes dir by creating and removing a temporary file.
func CheckWritableDir(dir string) error {
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, ".sitemap-probe-*")
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrOutputNotWritable, dir, err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return nil
}
