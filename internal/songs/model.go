package songs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NotationType enumerates the supported notation systems.
type NotationType string

const (
	// NotationWestern is staff-oriented notation with chord symbols.
	NotationWestern NotationType = "western"
	// NotationCarnatic is swara notation in the Carnatic tradition.
	NotationCarnatic NotationType = "carnatic"
	// NotationHindustani is swara notation in the Hindustani tradition.
	NotationHindustani NotationType = "hindustani"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidNotationType indicates an unknown notation system value.
	ErrInvalidNotationType = errors.New("songs: invalid notation type")
	// ErrInvalidSongID indicates that a song identifier is empty or exceeds storage bounds.
	ErrInvalidSongID = errors.New("songs: invalid song id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("songs: invalid user id")
)

// ParseNotationType validates raw input and returns a NotationType.
func ParseNotationType(rawInput string) (NotationType, error) {
	switch strings.ToLower(strings.TrimSpace(rawInput)) {
	case string(NotationWestern):
		return NotationWestern, nil
	case string(NotationCarnatic):
		return NotationCarnatic, nil
	case string(NotationHindustani):
		return NotationHindustani, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidNotationType, rawInput)
	}
}

// AllowsRaga reports whether raga and taal apply to this notation system.
func (n NotationType) AllowsRaga() bool {
	return n == NotationCarnatic || n == NotationHindustani
}

// String returns the wire value of the notation type.
func (n NotationType) String() string {
	return string(n)
}

// SongID represents a validated song identifier.
type SongID string

// NewSongID validates raw input and returns a SongID.
func NewSongID(rawInput string) (SongID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSongID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidSongID, maxIdentifierLength)
	}
	return SongID(trimmed), nil
}

// String returns the underlying string identifier.
func (id SongID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Line is a single notated line pairing pitches with chords and lyrics.
type Line struct {
	ID     string `json:"id"`
	Notes  string `json:"notes"`
	Chords string `json:"chords"`
	Lyrics string `json:"lyrics"`
	Order  int    `json:"order"`
}

// Section groups ordered lines under a named structural unit such as a
// pallavi or a verse. Section ids are assigned once on first save and
// never reused, so updates can match sections across reorders.
type Section struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Order     int       `json:"order"`
	Lines     []Line    `json:"lines"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Song is the full document exchanged with clients. Sections are embedded
// and ordered; array position is significant.
type Song struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Artist        string       `json:"artist"`
	Album         string       `json:"album"`
	NotationType  NotationType `json:"notationType"`
	Aarohana      string       `json:"aarohana"`
	Avarohana     string       `json:"avarohana"`
	Tempo         string       `json:"tempo"`
	TimeSignature string       `json:"timeSignature"`
	Raga          string       `json:"raga,omitempty"`
	Taal          string       `json:"taal,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
	Sections      []Section    `json:"sections"`
	CreatedBy     string       `json:"createdBy"`
	Version       int64        `json:"version"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Clone returns a deep copy of the song.
func (s Song) Clone() Song {
	copied := s
	if s.Tags != nil {
		copied.Tags = append([]string(nil), s.Tags...)
	}
	copied.Sections = CloneSections(s.Sections)
	return copied
}

// CloneSections deep-copies a section slice.
func CloneSections(sections []Section) []Section {
	if sections == nil {
		return nil
	}
	copied := make([]Section, len(sections))
	for i, section := range sections {
		copied[i] = section
		copied[i].Lines = append([]Line(nil), section.Lines...)
	}
	return copied
}

// Record is the persisted song row. The embedded section tree is stored as
// a JSON document column so that array order survives round trips intact.
type Record struct {
	SongID        string    `gorm:"column:song_id;primaryKey;size:190;not null"`
	Title         string    `gorm:"column:title;size:320;not null;index"`
	Artist        string    `gorm:"column:artist;size:320;not null"`
	Album         string    `gorm:"column:album;size:320;not null"`
	NotationType  string    `gorm:"column:notation_type;size:32;not null;index"`
	Aarohana      string    `gorm:"column:aarohana;size:320;not null"`
	Avarohana     string    `gorm:"column:avarohana;size:320;not null"`
	Tempo         string    `gorm:"column:tempo;size:64;not null"`
	TimeSignature string    `gorm:"column:time_signature;size:32;not null"`
	Raga          string    `gorm:"column:raga;size:190"`
	Taal          string    `gorm:"column:taal;size:190"`
	TagsJSON      string    `gorm:"column:tags_json;type:text;not null;default:'[]'"`
	SectionsJSON  string    `gorm:"column:sections_json;type:text;not null"`
	CreatedBy     string    `gorm:"column:created_by;size:190;not null;index:idx_songs_owner_created,priority:1"`
	Version       int64     `gorm:"column:version;not null;default:1"`
	CreatedAt     time.Time `gorm:"column:created_at;index:idx_songs_owner_created,priority:2"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "songs"
}

// ToSong inflates the persisted row into the document form.
func (r Record) ToSong() (Song, error) {
	song := Song{
		ID:            r.SongID,
		Title:         r.Title,
		Artist:        r.Artist,
		Album:         r.Album,
		NotationType:  NotationType(r.NotationType),
		Aarohana:      r.Aarohana,
		Avarohana:     r.Avarohana,
		Tempo:         r.Tempo,
		TimeSignature: r.TimeSignature,
		Raga:          r.Raga,
		Taal:          r.Taal,
		CreatedBy:     r.CreatedBy,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.TagsJSON != "" {
		if err := json.Unmarshal([]byte(r.TagsJSON), &song.Tags); err != nil {
			return Song{}, fmt.Errorf("songs: decode tags for %s: %w", r.SongID, err)
		}
	}
	if r.SectionsJSON != "" {
		if err := json.Unmarshal([]byte(r.SectionsJSON), &song.Sections); err != nil {
			return Song{}, fmt.Errorf("songs: decode sections for %s: %w", r.SongID, err)
		}
	}
	return song, nil
}

func newRecord(song Song) (Record, error) {
	tags := song.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return Record{}, fmt.Errorf("songs: encode tags: %w", err)
	}
	sections := song.Sections
	if sections == nil {
		sections = []Section{}
	}
	sectionsJSON, err := json.Marshal(sections)
	if err != nil {
		return Record{}, fmt.Errorf("songs: encode sections: %w", err)
	}
	return Record{
		SongID:        song.ID,
		Title:         song.Title,
		Artist:        song.Artist,
		Album:         song.Album,
		NotationType:  song.NotationType.String(),
		Aarohana:      song.Aarohana,
		Avarohana:     song.Avarohana,
		Tempo:         song.Tempo,
		TimeSignature: song.TimeSignature,
		Raga:          song.Raga,
		Taal:          song.Taal,
		TagsJSON:      string(tagsJSON),
		SectionsJSON:  string(sectionsJSON),
		CreatedBy:     song.CreatedBy,
		Version:       song.Version,
		CreatedAt:     song.CreatedAt,
		UpdatedAt:     song.UpdatedAt,
	}, nil
}
