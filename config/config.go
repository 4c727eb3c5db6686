package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type GussConfiguration struct {
	DBHost string
	DBPort int
	DBUser string
	DBPass string
	DBName string

	BotToken       string
	GoogleAPIToken string
	AdminIDs       []int64

	// Reconciliation knobs, injected into the syncers instead of being read
	// from ambient state.
	PersonMatchThreshold      int
	CommitteeAttendancePoints int
	SyncIntervalMinutes       int
}

// DatabaseURL assembles the postgres DSN for the pgx pool.
func (c GussConfiguration) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}

func LoadEnvConfig(configName string) GussConfiguration {
	err := godotenv.Load(configName)
	if err != nil {
		log.Fatal("Error loading .env file")
	}

	return GussConfiguration{
		DBHost: os.Getenv("DB_HOST"),
		DBPort: mustInt("DB_PORT"),
		DBUser: os.Getenv("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBName: os.Getenv("DB_NAME"),

		BotToken:       os.Getenv("BOT_TOKEN"),
		GoogleAPIToken: os.Getenv("GOOGLE_API_TOKEN"),
		AdminIDs:       mustInt64List("ADMIN_IDS"),

		PersonMatchThreshold:      intOrDefault("PERSON_MATCH_THRESHOLD", 80),
		CommitteeAttendancePoints: intOrDefault("COMMITTEE_ATTENDANCE_POINTS", 1),
		SyncIntervalMinutes:       intOrDefault("SYNC_INTERVAL_MINUTES", 30),
	}
}

func mustInt(name string) int {
	value, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		log.Fatalf("failed to parse integer %s: %v", name, err)
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("failed to parse integer %s: %v", name, err)
	}
	return value
}

func mustInt64List(name string) []int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}

	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			log.Fatalf("failed to parse integer list %s: %v", name, err)
		}
		ids = append(ids, id)
	}
	return ids
}
