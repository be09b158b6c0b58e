// internal/model/group.go
package model

import "fmt"

// CampaignGroup maps campaign ID to campaign state for one ingested batch
// (one source folder).
type CampaignGroup map[string]*Campaign

// Completed reports whether every campaign in the group is Completed. True
// for an empty group.
func (g CampaignGroup) Completed() bool {
	for _, campaign := range g {
		if campaign == nil || campaign.Status != StatusCompleted {
			return false
		}
	}
	return true
}

func (g CampaignGroup) Copy() CampaignGroup {
	if g == nil {
		return nil
	}
	out := make(CampaignGroup, len(g))
	for id, campaign := range g {
		out[id] = campaign.Copy()
	}
	return out
}

// Validate checks the structural rules an ingested group must satisfy before
// it may enter the model: at least one campaign, at least one stage per
// campaign, sequence numbers contiguous from 1, a non-empty contact set per
// stage, and a parseable start time plus positive interval on every
// non-lapsed stage.
func (g CampaignGroup) Validate() error {
	if len(g) == 0 {
		return fmt.Errorf("group has no campaigns")
	}
	for id, campaign := range g {
		if campaign == nil {
			return fmt.Errorf("campaign %q is empty", id)
		}
		if len(campaign.Stages) == 0 {
			return fmt.Errorf("campaign %q has zero stages", id)
		}
		for i, stage := range campaign.Stages {
			if stage == nil {
				return fmt.Errorf("campaign %q stage %d is empty", id, i+1)
			}
			if stage.Sequence != i+1 {
				return fmt.Errorf("campaign %q stage sequence %d at position %d breaks 1-based contiguity", id, stage.Sequence, i+1)
			}
			if len(stage.Contacts) == 0 {
				return fmt.Errorf("campaign %q stage %d has no contacts", id, stage.Sequence)
			}
			for address, contact := range stage.Contacts {
				if address == "" {
					return fmt.Errorf("campaign %q stage %d has a contact with an empty address", id, stage.Sequence)
				}
				if contact == nil {
					return fmt.Errorf("campaign %q stage %d contact %q is empty", id, stage.Sequence, address)
				}
			}
			if stage.StartTime.Lapsed() {
				continue
			}
			if _, err := stage.StartTime.Time(); err != nil {
				return fmt.Errorf("campaign %q stage %d start time %q: %v", id, stage.Sequence, stage.StartTime, err)
			}
			if stage.Interval.Std() <= 0 {
				return fmt.Errorf("campaign %q stage %d interval must be positive, got %s", id, stage.Sequence, stage.Interval)
			}
		}
	}
	return nil
}

// Document is the persisted root mapping: group key to campaign group. The
// state store mirrors it verbatim.
type Document map[string]CampaignGroup

func (d Document) Copy() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for key, group := range d {
		out[key] = group.Copy()
	}
	return out
}
