package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server Server `json:"server"`
	Upload Upload `json:"upload"`
	Auth   Auth   `json:"auth"`
	Amqp   Amqp   `json:"amqp"`
	Blob   Blob   `json:"blob"`
	Redis  Redis  `json:"redis"`
	Worker Worker `json:"worker"`
	Sentry Sentry `json:"sentry"`
}

type Server struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type Upload struct {
	MaxRequestBodyMB     int64 `json:"max_request_body"`
	MaxMultipartMemoryMB int64 `json:"max_multipart_memory"`
}

// Auth covers both sides of the identity collaborator: the auth service's
// own settings and the address the gateway uses to reach it.
type Auth struct {
	Address   string        `json:"address"`
	DSN       string        `json:"dsn"`
	JWTSecret string        `json:"jwt_secret"`
	TokenTTL  time.Duration `json:"token_ttl"` // hours
}

type Amqp struct {
	URL        string `json:"url"`
	VideoQueue string `json:"video_queue"`
	Mp3Queue   string `json:"mp3_queue"`
}

type Blob struct {
	Endpoint    string `json:"endpoint"` // S3-compatible endpoint (MinIO, R2)
	Region      string `json:"region"`
	Bucket      string `json:"bucket"`
	AccessKeyID string `json:"access_key_id"`
	SecretKey   string `json:"secret_key"`
}

type Redis struct {
	Addr        string        `json:"addr"`
	Password    string        `json:"password"`
	DatabaseID  int           `json:"database_id"`
	DialTimeout time.Duration `json:"dial_timeout"` // seconds
}

type Worker struct {
	MaxAttempts int    `json:"max_attempts"` // delivery attempts before DLQ
	TempDir     string `json:"temp_dir"`
	FFmpegPath  string `json:"ffmpeg_path"`
	Bitrate     string `json:"bitrate"`
}

type Sentry struct {
	SentryDSN   string `json:"sentry_dsn"`
	Environment string `json:"environment"`
}

func (s Server) Addr() string { return fmt.Sprintf(":%d", s.Port) }
