package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "IPWNEDYOU"

type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`

	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Auth        AuthConfig        `mapstructure:"auth" yaml:"auth"`
	Paths       PathsConfig       `mapstructure:"paths" yaml:"paths"`
	Upload      UploadConfig      `mapstructure:"upload" yaml:"upload"`
	DNS         DNSConfig         `mapstructure:"dns" yaml:"dns"`
	Whois       WhoisConfig       `mapstructure:"whois" yaml:"whois"`
	Geolocation GeolocationConfig `mapstructure:"geolocation" yaml:"geolocation"`
	Geocode     GeocodeConfig     `mapstructure:"geocode" yaml:"geocode"`
	OCR         OCRConfig         `mapstructure:"ocr" yaml:"ocr"`
	Reverse     ReverseConfig     `mapstructure:"reverse_search" yaml:"reverse_search"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr" yaml:"listen_addr"`
	SessionLifetime int    `mapstructure:"session_lifetime" yaml:"session_lifetime"` // seconds
	SecureCookie    bool   `mapstructure:"secure_cookie" yaml:"secure_cookie"`
}

type AuthConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

type PathsConfig struct {
	Uploads string `mapstructure:"uploads" yaml:"uploads"`
	Reports string `mapstructure:"reports" yaml:"reports"`
}

type UploadConfig struct {
	MaxBytes          int64    `mapstructure:"max_bytes" yaml:"max_bytes"`
	AllowedExtensions []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions"`
}

type DNSConfig struct {
	// Servers empty means the system resolver.
	Servers           []string `mapstructure:"servers" yaml:"servers"`
	Timeout           int      `mapstructure:"timeout" yaml:"timeout"`
	SubdomainPrefixes []string `mapstructure:"subdomain_prefixes" yaml:"subdomain_prefixes"`
}

type WhoisConfig struct {
	Timeout int `mapstructure:"timeout" yaml:"timeout"`
}

type GeolocationConfig struct {
	Endpoint      string `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout       int    `mapstructure:"timeout" yaml:"timeout"`
	RatePerMinute int    `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
}

type GeocodeConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout   int    `mapstructure:"timeout" yaml:"timeout"`
	DelayMs   int    `mapstructure:"delay_ms" yaml:"delay_ms"`
}

type OCRConfig struct {
	Tesseract string `mapstructure:"tesseract" yaml:"tesseract"`
	Language  string `mapstructure:"language" yaml:"language"`
	Timeout   int    `mapstructure:"timeout" yaml:"timeout"`
}

type SearchEngine struct {
	Name string `mapstructure:"name" yaml:"name"`
	URL  string `mapstructure:"url" yaml:"url"`
}

type ReverseConfig struct {
	Engines []SearchEngine `mapstructure:"engines" yaml:"engines"`
}

// Seconds converts a seconds setting into a duration, falling back to def when unset.
func Seconds(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

// Load reads the optional config file, applies IPWNEDYOU_* env overrides and
// returns the decoded configuration.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "unable to read config %s", configFile)
		}
	} else {
		v.SetConfigName("ipwnedyou")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".ipwnedyou"))
		}
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.Wrap(err, "unable to read config")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unable to decode config")
	}
	return &cfg, nil
}

// Default returns the built-in configuration without consulting files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	v.SetDefault("server.listen_addr", "127.0.0.1:5000")
	v.SetDefault("server.session_lifetime", 1800)
	v.SetDefault("server.secure_cookie", false)

	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.password", "admin123")

	v.SetDefault("paths.uploads", "uploads")
	v.SetDefault("paths.reports", "reports")

	v.SetDefault("upload.max_bytes", 16*1024*1024)
	v.SetDefault("upload.allowed_extensions", []string{"png", "jpg", "jpeg", "gif", "bmp"})

	v.SetDefault("dns.servers", []string{})
	v.SetDefault("dns.timeout", 5)
	v.SetDefault("dns.subdomain_prefixes", []string{
		"www", "mail", "ftp", "admin", "webmail", "smtp", "pop", "ns1", "ns2", "blog",
		"dev", "api", "test", "staging", "vpn", "portal", "shop", "m", "cdn", "remote",
	})

	v.SetDefault("whois.timeout", 10)

	v.SetDefault("geolocation.endpoint", "http://ip-api.com/json/")
	v.SetDefault("geolocation.timeout", 10)
	v.SetDefault("geolocation.rate_per_minute", 45)

	v.SetDefault("geocode.endpoint", "https://nominatim.openstreetmap.org/reverse")
	v.SetDefault("geocode.user_agent", "ipwnedyou_osint_v1")
	v.SetDefault("geocode.timeout", 10)
	v.SetDefault("geocode.delay_ms", 1000)

	v.SetDefault("ocr.tesseract", "tesseract")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.timeout", 30)

	v.SetDefault("reverse_search.engines", []map[string]string{
		{"name": "Google Lens", "url": "https://lens.google.com/"},
		{"name": "Google Images", "url": "https://images.google.com/"},
		{"name": "Yandex Images", "url": "https://yandex.com/images/"},
		{"name": "Bing Visual Search", "url": "https://www.bing.com/visualsearch"},
		{"name": "TinEye", "url": "https://tineye.com/"},
	})
}

// WriteDefault writes the built-in configuration as YAML to path. Existing
// files are left untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Errorf("config file %s already exists", path)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return errors.Wrap(err, "encode default config")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "create config directory")
		}
	}
	header := []byte("# ipwnedyou configuration\n")
	return os.WriteFile(path, append(header, data...), 0644)
}
