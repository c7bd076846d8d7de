package queue

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"fondarelay/internal/models"
)

// drainPlan is the outcome of walking the eligible messages with a budget.
type drainPlan struct {
	items   []models.Item
	updates []models.DrainUpdate
	skipped map[int64]error
}

// sortForDrain orders messages oldest first by origination time, then
// creation time, then id.
func sortForDrain(messages []*models.StalledMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		if !a.OriginatedAt.Equal(b.OriginatedAt) {
			return a.OriginatedAt.Before(b.OriginatedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// planDrain consumes whole messages while they fit in budget. The first
// message that does not fit is split: its prefix is returned and its
// suffix stays pending. Messages whose payload cannot be decoded are left
// untouched and reported in skipped.
func planDrain(messages []*models.StalledMessage, budget int, now time.Time) drainPlan {
	plan := drainPlan{skipped: make(map[int64]error)}
	remaining := budget

	for _, msg := range messages {
		if remaining <= 0 {
			break
		}

		raws, items, err := decodeItems(msg.Payload)
		if err != nil {
			plan.skipped[msg.ID] = err
			continue
		}

		if len(items) <= remaining {
			plan.items = append(plan.items, items...)
			plan.updates = append(plan.updates, models.DrainUpdate{
				ID:        msg.ID,
				Status:    models.QueueStatusSent,
				Payload:   msg.Payload,
				AlteredAt: now,
			})
			remaining -= len(items)
			continue
		}

		suffix, err := json.Marshal(raws[remaining:])
		if err != nil {
			plan.skipped[msg.ID] = err
			continue
		}
		plan.items = append(plan.items, items[:remaining]...)
		plan.updates = append(plan.updates, models.DrainUpdate{
			ID:        msg.ID,
			Status:    models.QueueStatusPending,
			Payload:   suffix,
			AlteredAt: now,
		})
		remaining = 0
	}

	return plan
}

func decodeItems(payload json.RawMessage) ([]json.RawMessage, []models.Item, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(payload, &raws); err != nil {
		return nil, nil, fmt.Errorf("payload is not a list: %w", err)
	}

	items := make([]models.Item, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal(raw, &items[i]); err != nil {
			return nil, nil, fmt.Errorf("payload item %d is not an object: %w", i, err)
		}
		if items[i] == nil {
			return nil, nil, fmt.Errorf("payload item %d is null", i)
		}
	}
	return raws, items, nil
}
