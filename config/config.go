package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string            `yaml:"environment"`
	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
	Script      ScriptConfig      `yaml:"script"`
	Audio       AudioConfig       `yaml:"audio"`
	Assets      AssetsConfig      `yaml:"assets"`
	Render      RenderConfig      `yaml:"render"`
	Paths       PathsConfig       `yaml:"paths"`
	Cleanup     CleanupConfig     `yaml:"cleanup"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Jobs        JobsConfig        `yaml:"jobs"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Storage     StorageConfig     `yaml:"storage"`
	Research    ResearchConfig    `yaml:"research"`
	Upload      UploadConfig      `yaml:"upload"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

type ServerConfig struct {
	Addr    string `yaml:"addr"`
	Version string `yaml:"version"`
}

type ScriptConfig struct {
	WordsPerMinute  int     `yaml:"words_per_minute"`
	IntroShare      float64 `yaml:"intro_share"`
	ConclusionShare float64 `yaml:"conclusion_share"`
	TemplatesFile   string  `yaml:"templates_file"`
}

type AudioConfig struct {
	BaseURL         string            `yaml:"base_url"`
	ModelID         string            `yaml:"model_id"`
	MaxChars        int               `yaml:"max_chars"`
	Timeout         time.Duration     `yaml:"timeout"`
	Stability       float64           `yaml:"stability"`
	SimilarityBoost float64           `yaml:"similarity_boost"`
	Style           float64           `yaml:"style"`
	SpeakerBoost    bool              `yaml:"speaker_boost"`
	Voices          map[string]string `yaml:"voices"` // voice style -> provider voice id
}

type AssetsConfig struct {
	PexelsURL       string        `yaml:"pexels_url"`
	UnsplashURL     string        `yaml:"unsplash_url"`
	DesiredClips    int           `yaml:"desired_clips"`
	MinClips        int           `yaml:"min_clips"`
	MaxImages       int           `yaml:"max_images"`
	PerPage         int           `yaml:"per_page"`
	MinWidth        int           `yaml:"min_width"`
	SearchTimeout   time.Duration `yaml:"search_timeout"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

type RenderConfig struct {
	FFmpegBin       string        `yaml:"ffmpeg_bin"`
	Width           int           `yaml:"width"`
	Height          int           `yaml:"height"`
	FPS             int           `yaml:"fps"`
	MinSegmentSec   float64       `yaml:"min_segment_sec"`
	FadeSec         float64       `yaml:"fade_sec"`
	VolumeGain      float64       `yaml:"volume_gain"`
	BackgroundColor string        `yaml:"background_color"`
	VideoCodec      string        `yaml:"video_codec"`
	AudioCodec      string        `yaml:"audio_codec"`
	AudioBitrate    string        `yaml:"audio_bitrate"`
	Preset          string        `yaml:"preset"`
	CRF             int           `yaml:"crf"`
	ColorGrade      bool          `yaml:"color_grade"`
	Timeout         time.Duration `yaml:"timeout"`
}

type PathsConfig struct {
	Output string `yaml:"output"`
	Temp   string `yaml:"temp"`
}

type CleanupConfig struct {
	RetainFailed bool          `yaml:"retain_failed"`
	MaxAge       time.Duration `yaml:"max_age"`
	Schedule     string        `yaml:"schedule"` // cron spec for the retained temp sweep, empty disables it
}

type CredentialsConfig struct {
	Source   string `yaml:"source"` // env | mysql
	MySQLDSN string `yaml:"mysql_dsn"`
}

type JobsConfig struct {
	Backend       string        `yaml:"backend"` // local | asynq
	Store         string        `yaml:"store"`   // memory | redis
	Concurrency   int           `yaml:"concurrency"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	StateTTL      time.Duration `yaml:"state_ttl"`
	TaskTimeout   time.Duration `yaml:"task_timeout"`
	Queue         string        `yaml:"queue"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type StorageConfig struct {
	Backend       string        `yaml:"backend"` // none | s3 | minio
	Bucket        string        `yaml:"bucket"`
	Prefix        string        `yaml:"prefix"`
	Region        string        `yaml:"region"`
	Profile       string        `yaml:"profile"`
	UsePathStyle  bool          `yaml:"use_path_style"`
	Endpoint      string        `yaml:"endpoint"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	UseSSL        bool          `yaml:"use_ssl"`
	PresignExpiry time.Duration `yaml:"presign_expiry"`
}

type ResearchConfig struct {
	Subreddits map[string][]string `yaml:"subreddits"` // category -> subreddits
	Feeds      map[string][]string `yaml:"feeds"`      // category -> RSS urls
	TimeFilter string              `yaml:"time_filter"`
	Limit      int                 `yaml:"limit"`
	MinScore   int                 `yaml:"min_score"`
}

type UploadConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Visibility        string `yaml:"visibility"`
	CategoryID        string `yaml:"category_id"`
	MadeForKids       bool   `yaml:"made_for_kids"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
	TitleMaxChars     int    `yaml:"title_max_chars"`
}

// Default returns the built-in configuration every file is layered on top of.
func Default() *Config {
	return &Config{
		Environment: "development",
		Log:         LogConfig{Level: "info", Format: "text"},
		Server:      ServerConfig{Addr: ":8080", Version: "1.0.0"},
		Script: ScriptConfig{
			WordsPerMinute:  150,
			IntroShare:      0.15,
			ConclusionShare: 0.10,
		},
		Audio: AudioConfig{
			BaseURL:         "https://api.elevenlabs.io",
			ModelID:         "eleven_monolingual_v1",
			MaxChars:        4500,
			Timeout:         120 * time.Second,
			Stability:       0.5,
			SimilarityBoost: 0.5,
			Style:           0.5,
			SpeakerBoost:    true,
		},
		Assets: AssetsConfig{
			PexelsURL:       "https://api.pexels.com",
			UnsplashURL:     "https://api.unsplash.com",
			DesiredClips:    5,
			MinClips:        3,
			MaxImages:       3,
			PerPage:         5,
			MinWidth:        1280,
			SearchTimeout:   15 * time.Second,
			DownloadTimeout: 30 * time.Second,
		},
		Render: RenderConfig{
			FFmpegBin:       "ffmpeg",
			Width:           1920,
			Height:          1080,
			FPS:             30,
			MinSegmentSec:   3,
			FadeSec:         0.5,
			VolumeGain:      1.5,
			BackgroundColor: "0x1a1a2e",
			VideoCodec:      "libx264",
			AudioCodec:      "aac",
			AudioBitrate:    "192k",
			Preset:          "medium",
			CRF:             23,
			ColorGrade:      true,
			Timeout:         300 * time.Second,
		},
		Paths:       PathsConfig{Output: "output", Temp: "temp"},
		Cleanup:     CleanupConfig{RetainFailed: true, MaxAge: 72 * time.Hour, Schedule: "@hourly"},
		Credentials: CredentialsConfig{Source: "env"},
		Jobs: JobsConfig{
			Backend:     "local",
			Store:       "memory",
			Concurrency: 2,
			RedisAddr:   "localhost:6379",
			StateTTL:    7 * 24 * time.Hour,
			TaskTimeout: 30 * time.Minute,
			Queue:       "videos",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "video-requests",
			GroupID: "video-essay-pipeline",
		},
		Storage: StorageConfig{Backend: "none", Prefix: "videos/", Region: "us-east-1", PresignExpiry: 24 * time.Hour},
		Research: ResearchConfig{
			Subreddits: map[string][]string{
				"finance":   {"personalfinance", "povertyfinance"},
				"investing": {"investing", "Bogleheads"},
				"crypto":    {"CryptoCurrency", "Bitcoin"},
				"ai":        {"artificial", "MachineLearning"},
				"startups":  {"startups", "Entrepreneur"},
				"business":  {"business", "smallbusiness"},
			},
			Feeds: map[string][]string{
				"finance":   {"https://www.cnbc.com/id/10000664/device/rss/rss.html"},
				"investing": {"https://feeds.marketwatch.com/marketwatch/topstories/"},
				"crypto":    {"https://www.coindesk.com/arc/outboundfeeds/rss/"},
				"ai":        {"https://techcrunch.com/category/artificial-intelligence/feed/"},
				"startups":  {"https://techcrunch.com/category/startups/feed/"},
				"business":  {"https://feeds.bbci.co.uk/news/business/rss.xml"},
			},
			TimeFilter: "week",
			Limit:      10,
			MinScore:   50,
		},
		Upload: UploadConfig{
			Visibility:        "private",
			CategoryID:        "27",
			NotifySubscribers: true,
			TitleMaxChars:     100,
		},
	}
}

// Load reads path on top of Default and then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Environment = getParam("APP_ENV", c.Environment)
	c.Log.Level = getParam("LOG_LEVEL", c.Log.Level)
	c.Server.Addr = getParam("SERVER_ADDR", c.Server.Addr)
	c.Paths.Output = getParam("OUTPUT_DIR", c.Paths.Output)
	c.Paths.Temp = getParam("TEMP_DIR", c.Paths.Temp)
	c.Render.FFmpegBin = getParam("FFMPEG_BIN", c.Render.FFmpegBin)
	c.Credentials.Source = getParam("CREDENTIALS_SOURCE", c.Credentials.Source)
	c.Credentials.MySQLDSN = getParam("MYSQL_DSN", c.Credentials.MySQLDSN)
	c.Jobs.Backend = getParam("JOBS_BACKEND", c.Jobs.Backend)
	c.Jobs.Store = getParam("JOBS_STORE", c.Jobs.Store)
	c.Jobs.RedisAddr = getParam("REDIS_ADDR", c.Jobs.RedisAddr)
	c.Jobs.RedisPassword = getParam("REDIS_PASSWORD", c.Jobs.RedisPassword)
	c.Jobs.Concurrency = getInt("JOBS_CONCURRENCY", c.Jobs.Concurrency)
	if brokers := os.Getenv("KAFKA_BOOTSTRAP_SERVERS"); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}
	c.Kafka.Topic = getParam("KAFKA_TOPIC", c.Kafka.Topic)
	c.Kafka.GroupID = getParam("KAFKA_GROUP_ID", c.Kafka.GroupID)
	c.Storage.Backend = getParam("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Bucket = getParam("S3_BUCKET", c.Storage.Bucket)
	c.Storage.Region = getParam("AWS_REGION", c.Storage.Region)
	c.Storage.Endpoint = getParam("MINIO_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKey = getParam("MINIO_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = getParam("MINIO_SECRET_KEY", c.Storage.SecretKey)
}

// Validate catches settings that would make every run fail.
func (c *Config) Validate() error {
	if c.Script.WordsPerMinute <= 0 {
		return fmt.Errorf("script.words_per_minute must be positive")
	}
	if share := c.Script.IntroShare + c.Script.ConclusionShare; share < 0 || share >= 1 {
		return fmt.Errorf("script intro and conclusion shares must leave room for sections")
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 || c.Render.FPS <= 0 {
		return fmt.Errorf("render width, height and fps must be positive")
	}
	if c.Audio.MaxChars <= 0 {
		return fmt.Errorf("audio.max_chars must be positive")
	}
	if c.Jobs.Concurrency <= 0 {
		c.Jobs.Concurrency = 1
	}
	return nil
}

func getParam(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
