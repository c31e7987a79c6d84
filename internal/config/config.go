package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env    string       `yaml:"env" env:"ENV" env-default:"local"`
	DSN    string       `yaml:"dsn" env:"DATABASE_URL" env-required:"true"`
	HTTP   HTTPConfig   `yaml:"http"`
	Redis  RedisConf    `yaml:"redis"`
	Media  MediaConfig  `yaml:"media"`
	Scrape ScrapeConfig `yaml:"scrape"`
	View   ViewConfig   `yaml:"view"`
}

type HTTPConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port" env:"PORT" env-default:"8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"10s"`
	SessionSecret   string        `yaml:"session_secret" env:"SESSION_SECRET" env-default:"inspirations-dev"`
}

type RedisConf struct {
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl" env-default:"720h"`
}

// MediaConfig selects the media store. Driver "r2" talks to an S3 compatible bucket,
// "local" keeps files under BaseDir and serves them from the http server.
type MediaConfig struct {
	Driver          string        `yaml:"driver" env:"MEDIA_DRIVER" env-default:"local"`
	Endpoint        string        `yaml:"endpoint" env:"R2_ENDPOINT"`
	Region          string        `yaml:"region" env-default:"auto"`
	AccessKeyID     string        `yaml:"access_key_id" env:"R2_ACCESS_KEY_ID"`
	SecretAccessKey string        `yaml:"secret_access_key" env:"R2_SECRET_ACCESS_KEY"`
	Bucket          string        `yaml:"bucket" env-default:"inspirations"`
	PublicURL       string        `yaml:"public_url" env:"MEDIA_PUBLIC_URL" env-default:"http://localhost:8080/media"`
	PresignTTL      time.Duration `yaml:"presign_ttl" env-default:"1h"`
	BaseDir         string        `yaml:"base_dir" env-default:"./uploads"`
	MaxSize         int64         `yaml:"max_size" env-default:"26214400"`
}

type ScrapeConfig struct {
	UserAgent      string        `yaml:"user_agent" env-default:"Mozilla/5.0 (compatible; inspirations-bot/1.0)"`
	Timeout        time.Duration `yaml:"timeout" env-default:"10s"`
	MaxPageBytes   int64         `yaml:"max_page_bytes" env-default:"2097152"`
	MaxImageBytes  int64         `yaml:"max_image_bytes" env-default:"10485760"`
	FallbackURL    string        `yaml:"fallback_url" env-default:"https://api.microlink.io/"`
	RatePerSecond  float64       `yaml:"rate_per_second" env-default:"4"`
	TweetCacheTTL  time.Duration `yaml:"tweet_cache_ttl" env-default:"1h"`
	SyndicationURL string        `yaml:"syndication_url" env-default:"https://cdn.syndication.twimg.com"`
}

type ViewConfig struct {
	DeleteGrace time.Duration `yaml:"delete_grace" env-default:"3s"`
	IdleTTL     time.Duration `yaml:"idle_ttl" env-default:"30m"`
}

func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}

	return MustLoadPath(path)
}

func MustLoadPath(configPath string) *Config {
	// check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	return &cfg
}

func fetchConfigPath() string {
	var res string

	// --config="path/to/config.yaml"
	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
