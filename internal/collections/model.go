package collections

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the persisted collection row.
type Record struct {
	CollectionID string    `gorm:"column:collection_id;primaryKey;size:190;not null"`
	Name         string    `gorm:"column:name;size:320;not null;index"`
	Description  string    `gorm:"column:description;type:text;not null"`
	CreatedBy    string    `gorm:"column:created_by;size:190;not null;index"`
	IsPublic     bool      `gorm:"column:is_public;not null;default:false"`
	TagsJSON     string    `gorm:"column:tags_json;type:text;not null;default:'[]'"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "collections"
}

// Membership links one song into one collection. The composite primary
// key gives membership set semantics.
type Membership struct {
	CollectionID string    `gorm:"column:collection_id;primaryKey;size:190;not null"`
	SongID       string    `gorm:"column:song_id;primaryKey;size:190;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Membership) TableName() string {
	return "collection_songs"
}

// OwnerSummary is the populated owner reference returned with a collection.
type OwnerSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SongSummary is the populated member-song reference returned with a
// collection. It carries listing fields only, not the section tree.
type SongSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Album        string `json:"album"`
	NotationType string `json:"notationType"`
}

// Collection is the document form exchanged with clients.
type Collection struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	CreatedBy   string        `json:"createdBy"`
	Owner       *OwnerSummary `json:"owner,omitempty"`
	IsPublic    bool          `json:"isPublic"`
	Tags        []string      `json:"tags,omitempty"`
	Songs       []SongSummary `json:"songs"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

func (r Record) toCollection() (Collection, error) {
	collection := Collection{
		ID:          r.CollectionID,
		Name:        r.Name,
		Description: r.Description,
		CreatedBy:   r.CreatedBy,
		IsPublic:    r.IsPublic,
		Songs:       []SongSummary{},
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.TagsJSON != "" {
		if err := json.Unmarshal([]byte(r.TagsJSON), &collection.Tags); err != nil {
			return Collection{}, fmt.Errorf("collections: decode tags for %s: %w", r.CollectionID, err)
		}
	}
	return collection, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("collections: encode tags: %w", err)
	}
	return string(encoded), nil
}
