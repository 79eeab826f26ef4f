package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port                          string        `mapstructure:"PORT"`
	DBType                        string        `mapstructure:"DB_TYPE"`
	DatabasePath                  string        `mapstructure:"DATABASE_PATH"`
	DatabaseURL                   string        `mapstructure:"DATABASE_URL"`
	JWTSecret                     string        `mapstructure:"JWT_SECRET"`
	QRSecret                      string        `mapstructure:"QR_SECRET"`
	QRMaxDistanceKM               float64       `mapstructure:"QR_MAX_DISTANCE_KM"`
	QRRequireLocation             bool          `mapstructure:"QR_REQUIRE_LOCATION"`
	QRDefaultTTL                  time.Duration `mapstructure:"QR_DEFAULT_TTL"`
	RequestTimeout                time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	Timezone                      string        `mapstructure:"TIMEZONE"`
	LogLevel                      string        `mapstructure:"LOG_LEVEL"`
	LogFormat                     string        `mapstructure:"LOG_FORMAT"`
	SeedTasks                     bool          `mapstructure:"SEED_TASKS"`
	SnapshotSchedule              string        `mapstructure:"SNAPSHOT_SCHEDULE"`
	DiscordClientID               string        `mapstructure:"DISCORD_CLIENT_ID"`
	DiscordClientSecret           string        `mapstructure:"DISCORD_CLIENT_SECRET"`
	DiscordRedirectURL            string        `mapstructure:"DISCORD_REDIRECT_URL"`
	DiscordGuildID                string        `mapstructure:"DISCORD_GUILD_ID"`
	DiscordBotToken               string        `mapstructure:"DISCORD_BOT_TOKEN"`
	DiscordNotificationsChannelID string        `mapstructure:"DISCORD_NOTIFICATIONS_CHANNEL_ID"`
	CloudinaryCloudName           string        `mapstructure:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey              string        `mapstructure:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret           string        `mapstructure:"CLOUDINARY_API_SECRET"`
	FrontendURL                   string        `mapstructure:"FRONTEND_URL"`
}

func LoadConfig() *Config {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	for _, key := range []string{
		"DATABASE_URL",
		"JWT_SECRET",
		"QR_SECRET",
		"DISCORD_CLIENT_ID",
		"DISCORD_CLIENT_SECRET",
		"DISCORD_GUILD_ID",
		"DISCORD_BOT_TOKEN",
		"DISCORD_NOTIFICATIONS_CHANNEL_ID",
		"CLOUDINARY_CLOUD_NAME",
		"CLOUDINARY_API_KEY",
		"CLOUDINARY_API_SECRET",
	} {
		v.BindEnv(key)
	}

	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_TYPE", "sqlite")
	v.SetDefault("DATABASE_PATH", "ecolearn.db")
	v.SetDefault("QR_MAX_DISTANCE_KM", 0.1)
	v.SetDefault("QR_REQUIRE_LOCATION", false)
	v.SetDefault("QR_DEFAULT_TTL", 24*time.Hour)
	v.SetDefault("REQUEST_TIMEOUT", 10*time.Second)
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SEED_TASKS", true)
	v.SetDefault("SNAPSHOT_SCHEDULE", "5 0 * * *")
	v.SetDefault("DISCORD_REDIRECT_URL", "http://127.0.0.1:8080/auth/discord/callback")
	v.SetDefault("FRONTEND_URL", "http://127.0.0.1:3000")
}

// Location resolves TIMEZONE, falling back to the process local zone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("Unknown TIMEZONE %q, using local time: %v", c.Timezone, err)
		return time.Local
	}
	return loc
}
