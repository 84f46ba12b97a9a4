package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Library  LibraryConfig  `mapstructure:"library"`
	Frames   FramesConfig   `mapstructure:"frames"`
	AI       AIConfig       `mapstructure:"ai"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

// LibraryConfig locates the media root and the reserved subtrees inside
// it. The pipeline consumes these names, it never computes them.
type LibraryConfig struct {
	MediaRoot     string `mapstructure:"media_root"`
	AlbumsDir     string `mapstructure:"albums_dir"`     // top-level folder whose subdirectories are albums
	SystemDir     string `mapstructure:"system_dir"`     // reserved subtree for thumbnails/previews/temp frames
	ThumbnailsDir string `mapstructure:"thumbnails_dir"` // under SystemDir, long-lived artifacts
	TempDir       string `mapstructure:"temp_dir"`       // under SystemDir, per-call frame workspaces
}

// AlbumsRoot returns the absolute path of the reserved albums location.
func (c *LibraryConfig) AlbumsRoot() string {
	return joinRoot(c.MediaRoot, c.AlbumsDir)
}

// SystemRoot returns the absolute path of the reserved system subtree.
func (c *LibraryConfig) SystemRoot() string {
	return joinRoot(c.MediaRoot, c.SystemDir)
}

// ThumbnailsRoot returns where thumbnails and preview loops persist.
func (c *LibraryConfig) ThumbnailsRoot() string {
	return joinRoot(c.SystemRoot(), c.ThumbnailsDir)
}

// TempRoot returns where per-call sample frames are staged.
func (c *LibraryConfig) TempRoot() string {
	return joinRoot(c.SystemRoot(), c.TempDir)
}

func joinRoot(root, sub string) string {
	return strings.TrimRight(root, "/") + "/" + strings.Trim(sub, "/")
}

// FramesConfig holds the sampling constants used by frame extraction.
type FramesConfig struct {
	GifMaxFrames      int `mapstructure:"gif_max_frames"`
	VideoSampleFPS    int `mapstructure:"video_sample_fps"`
	VideoMaxFrames    int `mapstructure:"video_max_frames"`
	PreviewFPS        int `mapstructure:"preview_fps"`
	PreviewSeconds    int `mapstructure:"preview_seconds"`
	ThumbnailMaxWidth int `mapstructure:"thumbnail_max_width"`
}

type AIConfig struct {
	Provider       string `mapstructure:"provider"`
	Model          string `mapstructure:"model"`
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxTokens      int    `mapstructure:"max_tokens"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // local, s3
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/memelet.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("library.media_root", "./data/files")
	v.SetDefault("library.albums_dir", "albums")
	v.SetDefault("library.system_dir", ".memelet")
	v.SetDefault("library.thumbnails_dir", "thumbnails")
	v.SetDefault("library.temp_dir", "tmp")
	v.SetDefault("frames.gif_max_frames", 10)
	v.SetDefault("frames.video_sample_fps", 2)
	v.SetDefault("frames.video_max_frames", 20)
	v.SetDefault("frames.preview_fps", 10)
	v.SetDefault("frames.preview_seconds", 5)
	v.SetDefault("frames.thumbnail_max_width", 400)
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.timeout_seconds", 60)
	v.SetDefault("ai.max_tokens", 2048)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "memelet")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("library.media_root", "MEMES_DIR")
	v.BindEnv("database.path", "DB_PATH")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("ai.api_key", "OPENAI_API_KEY")
	v.BindEnv("ai.base_url", "OPENAI_BASE_URL")
	v.BindEnv("ai.model", "AI_MODEL")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
