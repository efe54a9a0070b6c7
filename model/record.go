package model

import "time"

// timeLayout matches the millisecond ISO-8601 form the payloads were
// originally written with.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Record is the persisted form of a URLItem. Every field past the identity
// is optional because older payloads predate it:
//
//   - 1: id, title, url, description, tags, status, createdAt
//   - 2: adds completedAt, completedMemo, isFavorite
//   - 3: adds updatedAt, clickCount
//
// Payloads carry no version field; older shapes are recognised by the
// fields they lack and upgraded by Migrate.
type Record struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	Status        string   `json:"status,omitempty"`
	CreatedAt     string   `json:"createdAt"`
	UpdatedAt     string   `json:"updatedAt,omitempty"`
	CompletedAt   string   `json:"completedAt,omitempty"`
	CompletedMemo *string  `json:"completedMemo,omitempty"`
	IsFavorite    *bool    `json:"isFavorite,omitempty"`
	ClickCount    *int     `json:"clickCount,omitempty"`
}

// MigrationReport counts the repairs Migrate had to make.
type MigrationReport struct {
	DefaultedStatus  int
	LegacyStatus     int
	DroppedCompleted int
	BadTimestamps    int
}

// Changed reports whether any record was repaired.
func (r MigrationReport) Changed() bool {
	return r.DefaultedStatus+r.LegacyStatus+r.DroppedCompleted+r.BadTimestamps > 0
}

// Migrate upgrades persisted records of any schema into current items.
// It never fails: whatever can't be interpreted is defaulted.
func Migrate(records []Record) ([]URLItem, MigrationReport) {
	var report MigrationReport
	items := make([]URLItem, 0, len(records))

	for _, rec := range records {
		item := URLItem{
			ID:          rec.ID,
			Title:       rec.Title,
			URL:         rec.URL,
			Description: rec.Description,
			Tags:        NormalizeTags(rec.Tags),
		}

		switch {
		case rec.Status == "":
			item.Status = Unread
			report.DefaultedStatus++
		case ReadingStatus(rec.Status).Valid():
			item.Status = ReadingStatus(rec.Status)
		default:
			if st, ok := legacyStatuses[rec.Status]; ok {
				item.Status = st
				report.LegacyStatus++
			} else {
				item.Status = Unread
				report.DefaultedStatus++
			}
		}

		created, ok := parseTime(rec.CreatedAt)
		if !ok {
			report.BadTimestamps++
			item.rawCreatedAt = rec.CreatedAt
		}
		item.CreatedAt = created

		if rec.UpdatedAt != "" {
			if t, ok := parseTime(rec.UpdatedAt); ok {
				item.UpdatedAt = &t
			} else {
				report.BadTimestamps++
			}
		}

		if item.Status == Completed {
			if rec.CompletedAt != "" {
				if t, ok := parseTime(rec.CompletedAt); ok {
					item.CompletedAt = &t
				} else {
					report.BadTimestamps++
				}
			}
			if rec.CompletedMemo != nil {
				memo := *rec.CompletedMemo
				item.CompletedMemo = &memo
			}
		} else if rec.CompletedAt != "" || rec.CompletedMemo != nil {
			report.DroppedCompleted++
		}

		if rec.IsFavorite != nil {
			item.IsFavorite = *rec.IsFavorite
		}
		if rec.ClickCount != nil && *rec.ClickCount > 0 {
			item.ClickCount = *rec.ClickCount
		}

		items = append(items, item)
	}

	return items, report
}

// ToRecord converts an item into its current persisted form.
func ToRecord(item URLItem) Record {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	rec := Record{
		ID:          item.ID,
		Title:       item.Title,
		URL:         item.URL,
		Description: item.Description,
		Tags:        append([]string(nil), tags...),
		Status:      string(item.Status),
		CreatedAt:   formatTime(item.CreatedAt),
	}
	if item.CreatedAt.IsZero() && item.rawCreatedAt != "" {
		rec.CreatedAt = item.rawCreatedAt
	}
	if item.UpdatedAt != nil {
		rec.UpdatedAt = formatTime(*item.UpdatedAt)
	}
	if item.CompletedAt != nil {
		rec.CompletedAt = formatTime(*item.CompletedAt)
	}
	if item.CompletedMemo != nil {
		memo := *item.CompletedMemo
		rec.CompletedMemo = &memo
	}
	if item.IsFavorite {
		fav := true
		rec.IsFavorite = &fav
	}
	clicks := item.ClickCount
	rec.ClickCount = &clicks
	return rec
}

// ToRecords converts a collection in order.
func ToRecords(items []URLItem) []Record {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		records = append(records, ToRecord(item))
	}
	return records
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
