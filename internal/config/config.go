package config

import (
	"encoding/json"
	"os"
)

// Create new config instance
func NewConfig() *Config {
	return &Config{
		Worker: Worker{
			MaxAttempts: 3,
			FFmpegPath:  "ffmpeg",
			Bitrate:     "192k",
		},
	}
}

// Load configuration file in json format, then apply environment
// overrides so deployments can isolate queues and rewire addresses
// without touching the file.
func (c *Config) Read(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return err
	}

	c.applyEnv()
	return nil
}

func (c *Config) applyEnv() {
	overrideString(&c.Amqp.URL, "AMQP_URL")
	overrideString(&c.Amqp.VideoQueue, "VIDEO_QUEUE")
	overrideString(&c.Amqp.Mp3Queue, "MP3_QUEUE")
	overrideString(&c.Auth.Address, "AUTH_SVC_ADDRESS")
	overrideString(&c.Auth.DSN, "AUTH_DATABASE_DSN")
	overrideString(&c.Auth.JWTSecret, "JWT_SECRET")
	overrideString(&c.Blob.Endpoint, "BLOB_ENDPOINT")
	overrideString(&c.Blob.Bucket, "BLOB_BUCKET")
	overrideString(&c.Blob.AccessKeyID, "BLOB_ACCESS_KEY_ID")
	overrideString(&c.Blob.SecretKey, "BLOB_SECRET_KEY")
	overrideString(&c.Redis.Addr, "REDIS_ADDR")
	overrideString(&c.Redis.Password, "REDIS_PASSWORD")
	overrideString(&c.Sentry.SentryDSN, "SENTRY_DSN")
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
