package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Port string `mapstructure:"port"`
		Env  string `mapstructure:"env"`
	} `mapstructure:"app"`
	DB struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
	} `mapstructure:"kafka"`
	Auth struct {
		JWTSecret     string        `mapstructure:"jwt_secret"`
		TokenLifespan time.Duration `mapstructure:"token_lifespan"`
	} `mapstructure:"auth"`
	Storage struct {
		Root        string `mapstructure:"root"`
		MaxUploadMB int64  `mapstructure:"max_upload_mb"`
	} `mapstructure:"storage"`
	Thumbnails struct {
		Provider string `mapstructure:"provider"`
	} `mapstructure:"thumbnails"`
	Cloudinary struct {
		CloudName string `mapstructure:"cloud_name"`
		ApiKey    string `mapstructure:"api_key"`
		ApiSecret string `mapstructure:"api_secret"`
	} `mapstructure:"cloudinary"`
	Minio struct {
		Endpoint  string `mapstructure:"endpoint"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
		Bucket    string `mapstructure:"bucket"`
		UseSSL    bool   `mapstructure:"use_ssl"`
		PublicURL string `mapstructure:"public_url"`
	} `mapstructure:"minio"`
	Processing struct {
		Mode         string        `mapstructure:"mode"`
		Workers      int           `mapstructure:"workers"`
		Timeout      time.Duration `mapstructure:"timeout"`
		StaleAfter   time.Duration `mapstructure:"stale_after"`
		ReapInterval time.Duration `mapstructure:"reap_interval"`
		FFmpegPath   string        `mapstructure:"ffmpeg_path"`
		FFprobePath  string        `mapstructure:"ffprobe_path"`
	} `mapstructure:"processing"`
	Jaeger struct {
		OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	} `mapstructure:"jaeger"`
}

const (
	ThumbnailsLocal      = "local"
	ThumbnailsCloudinary = "cloudinary"
	ThumbnailsMinio      = "minio"
)

// Processing modes. In worker mode the API only accepts uploads and
// cmd/worker picks them up from Kafka.
const (
	ProcessingLocal  = "local"
	ProcessingWorker = "worker"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "3000")
	v.SetDefault("app.env", "development")
	v.SetDefault("auth.token_lifespan", 24*time.Hour)
	v.SetDefault("storage.root", "uploads")
	v.SetDefault("storage.max_upload_mb", 1024)
	v.SetDefault("thumbnails.provider", ThumbnailsLocal)
	v.SetDefault("minio.bucket", "thumbnails")
	v.SetDefault("processing.mode", ProcessingLocal)
	v.SetDefault("processing.workers", 2)
	v.SetDefault("processing.timeout", 2*time.Minute)
	v.SetDefault("processing.stale_after", 10*time.Minute)
	v.SetDefault("processing.reap_interval", time.Minute)
	v.SetDefault("processing.ffmpeg_path", "ffmpeg")
	v.SetDefault("processing.ffprobe_path", "ffprobe")
}

// LoadConfig reads config.yaml from path (optional), then .env, then the
// process environment. Later sources win.
func LoadConfig(path string) (cfg Config, err error) {
	if err = godotenv.Load(); err != nil {
		log.Println("warning: .env file not found, use default.")
	}

	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err = v.ReadInConfig(); err != nil {
		log.Printf("note: config.yaml not found, read env only. Error: %v", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("app.port", "APP_PORT", "PORT")
	v.BindEnv("app.env", "APP_ENV")
	v.BindEnv("db.dsn", "DB_DSN")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.token_lifespan", "TOKEN_LIFESPAN")
	v.BindEnv("storage.root", "STORAGE_ROOT")
	v.BindEnv("storage.max_upload_mb", "MAX_UPLOAD_MB")
	v.BindEnv("thumbnails.provider", "THUMBNAILS_PROVIDER")

	v.BindEnv("cloudinary.cloud_name", "CLOUDINARY_CLOUD_NAME")
	v.BindEnv("cloudinary.api_key", "CLOUDINARY_API_KEY")
	v.BindEnv("cloudinary.api_secret", "CLOUDINARY_API_SECRET")

	v.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	v.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("minio.bucket", "MINIO_BUCKET")
	v.BindEnv("minio.use_ssl", "MINIO_USE_SSL")
	v.BindEnv("minio.public_url", "MINIO_PUBLIC_URL")

	v.BindEnv("processing.mode", "PROCESSING_MODE")
	v.BindEnv("processing.workers", "PROCESSING_WORKERS")
	v.BindEnv("processing.timeout", "PROCESSING_TIMEOUT")
	v.BindEnv("processing.stale_after", "PROCESSING_STALE_AFTER")
	v.BindEnv("processing.reap_interval", "PROCESSING_REAP_INTERVAL")
	v.BindEnv("processing.ffmpeg_path", "FFMPEG_PATH")
	v.BindEnv("processing.ffprobe_path", "FFPROBE_PATH")

	v.BindEnv("jaeger.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	err = v.Unmarshal(&cfg)
	if err != nil {
		return
	}
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}

	switch cfg.Processing.Mode {
	case ProcessingLocal:
	case ProcessingWorker:
		if len(cfg.Kafka.Brokers) == 0 {
			err = fmt.Errorf("processing.mode %q requires kafka.brokers", cfg.Processing.Mode)
		}
	default:
		err = fmt.Errorf("unknown processing.mode %q", cfg.Processing.Mode)
	}
	return
}
