package songs

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequentialIDGenerator struct {
	prefix string
	next   int
}

func (g *sequentialIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next), nil
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustSongID(t *testing.T, value string) SongID {
	t.Helper()
	id, err := NewSongID(value)
	if err != nil {
		t.Fatalf("unexpected song id error: %v", err)
	}
	return id
}

func validCarnaticSong() Song {
	return Song{
		Title:         "Endaro Mahanubhavulu",
		Artist:        "Tyagaraja",
		Album:         "Pancharatna Kritis",
		NotationType:  NotationCarnatic,
		Aarohana:      "S R2 G3 M1 P D2 N3 S",
		Avarohana:     "S N3 D2 P M1 G3 R2 S",
		Tempo:         "72",
		TimeSignature: "4/4",
		Raga:          "Sri",
		Taal:          "Adi",
		Sections: []Section{
			{
				Name: "Pallavi",
				Lines: []Line{
					{Notes: "S R G M", Chords: "Cm", Lyrics: "Endaro mahanubhavulu"},
					{Notes: "P D N S", Chords: "Fm", Lyrics: "Andariki vandanamulu"},
				},
			},
		},
	}
}

func validWesternSong() Song {
	song := validCarnaticSong()
	song.Title = "Autumn Leaves"
	song.Artist = "Joseph Kosma"
	song.Album = "Standards"
	song.NotationType = NotationWestern
	song.Raga = "leftover"
	song.Taal = "leftover"
	return song
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:swarasheet_songs_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := db.Exec("CREATE TABLE user_favorites (user_id TEXT, song_id TEXT, created_at DATETIME, PRIMARY KEY (user_id, song_id))").Error; err != nil {
		t.Fatalf("failed to create favorites table: %v", err)
	}
	if err := db.Exec("CREATE TABLE collection_songs (collection_id TEXT, song_id TEXT, created_at DATETIME, PRIMARY KEY (collection_id, song_id))").Error; err != nil {
		t.Fatalf("failed to create membership table: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database:      db,
		Clock:         func() time.Time { return time.Unix(1756400000, 0).UTC() },
		IDProvider:    &sequentialIDGenerator{prefix: "id"},
		PublicListing: true,
	})
	if err != nil {
		t.Fatalf("failed to construct song service: %v", err)
	}
	return service, db
}
