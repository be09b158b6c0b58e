// cmd/seeder/main.go
//
// Writes a sample campaign-group folder into the data directory so a local
// server has something to ingest, and applies the Postgres schemas when that
// backend is selected.
package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/unclebandit/dripleopard-backend/internal/config"
	"github.com/unclebandit/dripleopard-backend/internal/db"
	"github.com/unclebandit/dripleopard-backend/internal/logger"
	"github.com/unclebandit/dripleopard-backend/internal/repository"
	"github.com/unclebandit/dripleopard-backend/internal/store"
)

type seedSequence struct {
	Sequence  int    `json:"sequence"`
	StartTime string `json:"start_time"`
	Interval  string `json:"interval"`
}

type seedCampaign struct {
	CampaignID string         `json:"campaign_id"`
	Sequences  []seedSequence `json:"sequences"`
}

type seedTemplate struct {
	Sequence int    `yaml:"sequence"`
	Subject  string `yaml:"subject"`
	Content  string `yaml:"content"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("❌ failed to load configuration")
	}

	baseLog := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	log := baseLog.WithField("service", "seeder")

	groupKey := time.Now().Format("2006-01-02")
	campaignID := "welcome-drip"
	groupDir := filepath.Join(cfg.DataDir, groupKey)

	if err := seedGroupFolder(groupDir, campaignID, time.Now()); err != nil {
		log.WithError(err).Fatal("❌ failed to write sample campaign group")
	}
	log.WithFields(logrus.Fields{
		"dir":      groupDir,
		"campaign": campaignID,
	}).Info("✅ sample campaign group written")

	if cfg.StoreBackend == config.BackendPostgres {
		conn, err := db.Connect(cfg.DatabaseURL(), log)
		if err != nil {
			log.WithError(err).Fatal("❌ failed to connect to database")
		}
		defer conn.Close()

		for _, schema := range []string{store.Schema, repository.Schema} {
			if _, err := conn.Exec(schema); err != nil {
				log.WithError(err).Fatal("❌ failed to apply schema")
			}
		}
		log.Info("✅ database schemas applied")
	}

	log.Info("🏁 seeding completed")
}

// seedGroupFolder lays out one group the way the upstream schedule generator
// does: schedule.json at the root, then per-campaign templates.yaml and
// per-sequence contacts.csv. Sequence 2 gets no contacts file on purpose, so
// ingestion carries sequence 1's contacts forward.
func seedGroupFolder(groupDir, campaignID string, now time.Time) error {
	stageDir := filepath.Join(groupDir, campaignID, "1")
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return err
	}

	schedule := []seedCampaign{
		{
			CampaignID: campaignID,
			Sequences: []seedSequence{
				{Sequence: 1, StartTime: now.Add(1 * time.Minute).Format(time.RFC3339), Interval: "2m"},
				{Sequence: 2, StartTime: now.Add(10 * time.Minute).Format(time.RFC3339), Interval: "5m"},
			},
		},
	}
	scheduleJSON, err := json.MarshalIndent(schedule, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(groupDir, "schedule.json"), scheduleJSON, 0o644); err != nil {
		return err
	}

	templates := []seedTemplate{
		{
			Sequence: 1,
			Subject:  "Welcome aboard, {name}!",
			Content:  "Hi {name}, thanks for your interest at {company}. Let's find a time to talk.",
		},
		{
			Sequence: 2,
			Subject:  "Still interested, {name}?",
			Content:  "Hi {name}, just checking in with {company}. Happy to answer any questions.",
		},
	}
	templatesYAML, err := yaml.Marshal(templates)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(groupDir, campaignID, "templates.yaml"), templatesYAML, 0o644); err != nil {
		return err
	}

	contacts := "name,email,company,role\n" +
		"Alice Smith,alice@example.com,Acme,CTO\n" +
		"Bob Jones,bob@example.com,Globex,Engineer\n" +
		"Carol White,carol@example.com,Initech,PM\n"
	return os.WriteFile(filepath.Join(stageDir, "contacts.csv"), []byte(contacts), 0o644)
}
