// internal/ingest/parser.go
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/unclebandit/dripleopard-backend/internal/model"
)

// File names inside a campaign-group folder, as the upstream schedule
// generator produces them.
const (
	ScheduleFileName  = "schedule.json"
	TemplatesFileName = "templates.yaml"
	ContactsFileName  = "contacts.csv"
)

type scheduleEntry struct {
	CampaignID string          `json:"campaign_id"`
	Sequences  []sequenceEntry `json:"sequences"`
}

type sequenceEntry struct {
	Sequence  int             `json:"sequence"`
	StartTime model.StartTime `json:"start_time"`
	Interval  model.Duration  `json:"interval"`
}

type templateEntry struct {
	Sequence int    `yaml:"sequence"`
	Subject  string `yaml:"subject"`
	Content  string `yaml:"content"`
}

// Parser turns a campaign-group source folder into a campaign group
// document. Broken campaigns are logged and skipped; their siblings still
// parse. The lapsed start-time sentinel passes through untouched: the
// campaign manager applies the Skip/Completed force-set on add.
type Parser struct {
	log *logrus.Entry
}

func NewParser(log *logrus.Entry) *Parser {
	return &Parser{log: log}
}

// ParseGroupFolder parses dir into (groupKey, group document). The group key
// is the folder's base name. Fails when the schedule is unreadable or no
// campaign in it survives parsing.
func (p *Parser) ParseGroupFolder(dir string) (string, model.CampaignGroup, error) {
	groupKey := filepath.Base(filepath.Clean(dir))

	schedule, err := p.loadSchedule(filepath.Join(dir, ScheduleFileName))
	if err != nil {
		return groupKey, nil, err
	}

	group := model.CampaignGroup{}
	for _, entry := range schedule {
		campaign, err := p.buildCampaign(dir, entry)
		if err != nil {
			p.log.WithError(err).WithFields(logrus.Fields{
				"group":    groupKey,
				"campaign": entry.CampaignID,
			}).Error("❌ campaign skipped during parse")
			continue
		}
		group[entry.CampaignID] = campaign
	}
	if len(group) == 0 {
		return groupKey, nil, fmt.Errorf("no usable campaigns in %s", dir)
	}
	return groupKey, group, nil
}

func (p *Parser) loadSchedule(path string) ([]scheduleEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	var schedule []scheduleEntry
	if err := json.Unmarshal(raw, &schedule); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}
	if len(schedule) == 0 {
		return nil, fmt.Errorf("schedule %s lists no campaigns", path)
	}
	for _, entry := range schedule {
		if entry.CampaignID == "" {
			return nil, fmt.Errorf("schedule %s has a campaign without campaign_id", path)
		}
		if len(entry.Sequences) == 0 {
			return nil, fmt.Errorf("campaign %q has no sequences", entry.CampaignID)
		}
	}
	return schedule, nil
}

// buildCampaign assembles one campaign's stages from its schedule entry, its
// templates file and its per-sequence contacts files.
func (p *Parser) buildCampaign(dir string, entry scheduleEntry) (*model.Campaign, error) {
	sequences := append([]sequenceEntry(nil), entry.Sequences...)
	sort.Slice(sequences, func(i, j int) bool { return sequences[i].Sequence < sequences[j].Sequence })
	for i, seq := range sequences {
		if seq.Sequence != i+1 {
			return nil, fmt.Errorf("sequence numbers not contiguous from 1 (got %d at position %d)", seq.Sequence, i+1)
		}
	}
	if err := validateTimeOrder(sequences); err != nil {
		return nil, err
	}

	templates, err := p.loadTemplates(filepath.Join(dir, entry.CampaignID, TemplatesFileName))
	if err != nil {
		return nil, err
	}

	campaign := &model.Campaign{}
	var prevContacts map[string]*model.ContactState
	for _, seq := range sequences {
		template, ok := templates[seq.Sequence]
		if !ok {
			return nil, fmt.Errorf("no template for sequence %d", seq.Sequence)
		}

		contactsPath := filepath.Join(dir, entry.CampaignID, strconv.Itoa(seq.Sequence), ContactsFileName)
		contacts, err := p.loadContacts(contactsPath)
		if os.IsNotExist(err) {
			if seq.Sequence == 1 {
				return nil, fmt.Errorf("no contacts file for sequence 1")
			}
			// reuse the previous stage's contacts when this stage has none
			p.log.WithField("path", contactsPath).Warn("⚠️ contacts file missing, carrying previous stage's contacts")
			contacts = copyContacts(prevContacts)
		} else if err != nil {
			return nil, err
		}

		campaign.Stages = append(campaign.Stages, &model.Stage{
			Sequence:  seq.Sequence,
			StartTime: seq.StartTime,
			Interval:  seq.Interval,
			Template:  template,
			Contacts:  contacts,
		})
		prevContacts = contacts
	}
	return campaign, nil
}

func (p *Parser) loadTemplates(path string) (map[int]model.Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	var entries []templateEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("templates %s is empty", path)
	}

	templates := make(map[int]model.Template, len(entries))
	for _, entry := range entries {
		if entry.Sequence < 1 {
			return nil, fmt.Errorf("template with sequence %d", entry.Sequence)
		}
		if entry.Subject == "" || entry.Content == "" {
			return nil, fmt.Errorf("template %d missing subject or content", entry.Sequence)
		}
		templates[entry.Sequence] = model.Template{Subject: entry.Subject, Content: entry.Content}
	}
	return templates, nil
}

// loadContacts reads one contacts CSV: a header with name and email columns
// plus free-form info columns. Rows with invalid addresses are dropped with
// a warning; a file with no valid rows fails.
func (p *Parser) loadContacts(path string) (map[string]*model.ContactState, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read contacts %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("contacts %s has no data rows", path)
	}

	header := rows[0]
	emailCol := -1
	nameCol := -1
	for i, col := range header {
		switch strings.TrimSpace(strings.ToLower(col)) {
		case "email":
			emailCol = i
		case "name":
			nameCol = i
		}
	}
	if emailCol < 0 || nameCol < 0 {
		return nil, fmt.Errorf("contacts %s must contain name and email columns", path)
	}

	contacts := make(map[string]*model.ContactState)
	for _, row := range rows[1:] {
		if len(row) != len(header) {
			continue
		}
		address := strings.TrimSpace(row[emailCol])
		if !ValidEmail(address) {
			p.log.WithField("email", address).Warn("⚠️ invalid email skipped")
			continue
		}
		info := model.ContactInfo{}
		for i, col := range header {
			if i == emailCol {
				continue
			}
			info[strings.TrimSpace(strings.ToLower(col))] = strings.TrimSpace(row[i])
		}
		contacts[address] = &model.ContactState{Info: info}
	}
	if len(contacts) == 0 {
		return nil, fmt.Errorf("contacts %s has no valid rows", path)
	}
	return contacts, nil
}

func copyContacts(contacts map[string]*model.ContactState) map[string]*model.ContactState {
	out := make(map[string]*model.ContactState, len(contacts))
	for address, contact := range contacts {
		out[address] = &model.ContactState{Info: contact.Info.Copy()}
	}
	return out
}
