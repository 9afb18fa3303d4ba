package collections

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/raagalabs/swarasheet/backend/internal/songs"
	"github.com/raagalabs/swarasheet/backend/internal/users"
	"gorm.io/gorm"
)

type sequentialIDGenerator struct {
	next int
}

func (g *sequentialIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("col-%d", g.next), nil
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *testClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:swarasheet_collections_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Record{}, &Membership{}, &users.User{}, &songs.Record{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &testClock{now: time.Unix(1756400000, 0).UTC()}
	service, err := NewService(ServiceConfig{
		Database:      db,
		Clock:         clock.Now,
		IDProvider:    &sequentialIDGenerator{},
		PublicListing: true,
	})
	if err != nil {
		t.Fatalf("failed to construct collection service: %v", err)
	}
	return service, db, clock
}

func seedUser(t *testing.T, db *gorm.DB, userID, name string) {
	t.Helper()
	user := users.User{UserID: userID, Name: name, PhoneNumber: "+1555000" + userID}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
}

func seedSong(t *testing.T, db *gorm.DB, songID, title, ownerID string) {
	t.Helper()
	record := songs.Record{
		SongID:        songID,
		Title:         title,
		Artist:        "Artist",
		Album:         "Album",
		NotationType:  "carnatic",
		Aarohana:      "S R G M P D N S",
		Avarohana:     "S N D P M G R S",
		Tempo:         "72",
		TimeSignature: "4/4",
		TagsJSON:      "[]",
		SectionsJSON:  "[]",
		CreatedBy:     ownerID,
		Version:       1,
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("failed to seed song: %v", err)
	}
}

func validCollection() Collection {
	return Collection{
		Name:        "Pancharatna Set",
		Description: "The five gems, in concert order",
		IsPublic:    true,
		Tags:        []string{"tyagaraja"},
	}
}

func TestCreateAndGetCollection(t *testing.T) {
	service, db, _ := newTestService(t)
	seedUser(t, db, "user-1", "Asha")

	created, err := service.Create(context.Background(), validCollection(), "user-1")
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected an assigned collection id")
	}
	if created.Owner == nil || created.Owner.Name != "Asha" {
		t.Fatalf("expected the owner summary populated, got %+v", created.Owner)
	}
	if len(created.Songs) != 0 {
		t.Fatalf("expected an empty membership set, got %+v", created.Songs)
	}

	loaded, err := service.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if loaded.Name != "Pancharatna Set" || len(loaded.Tags) != 1 {
		t.Fatalf("round trip altered the collection: %+v", loaded)
	}

	if _, err := service.GetByID(context.Background(), "absent"); !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestCreateRequiresNameAndDescription(t *testing.T) {
	service, _, _ := newTestService(t)

	blankName := validCollection()
	blankName.Name = "  "
	if _, err := service.Create(context.Background(), blankName, "user-1"); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}

	blankDescription := validCollection()
	blankDescription.Description = ""
	if _, err := service.Create(context.Background(), blankDescription, "user-1"); !errors.Is(err, ErrDescriptionRequired) {
		t.Fatalf("expected ErrDescriptionRequired, got %v", err)
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	service, db, clock := newTestService(t)
	seedUser(t, db, "user-1", "Asha")

	for i, name := range []string{"Morning ragas", "Evening ragas", "Jazz standards"} {
		collection := validCollection()
		collection.Name = name
		collection.Description = fmt.Sprintf("Set %d", i)
		if _, err := service.Create(context.Background(), collection, "user-1"); err != nil {
			t.Fatalf("unexpected create error: %v", err)
		}
		clock.Advance(time.Minute)
	}

	page, err := service.List(context.Background(), ListQuery{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if page.TotalPages != 2 || len(page.Collections) != 2 {
		t.Fatalf("expected 2 pages of 2, got %+v", page)
	}
	if page.Collections[0].Name != "Jazz standards" {
		t.Fatalf("expected newest-first ordering, got %+v", page.Collections[0])
	}

	filtered, err := service.List(context.Background(), ListQuery{Search: "RAGAS"})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(filtered.Collections) != 2 {
		t.Fatalf("expected a case-insensitive name match, got %+v", filtered.Collections)
	}
}

func TestUpdateReplacesMutableFields(t *testing.T) {
	service, db, _ := newTestService(t)
	seedUser(t, db, "user-1", "Asha")

	created, err := service.Create(context.Background(), validCollection(), "user-1")
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	payload := validCollection()
	payload.Name = "Renamed"
	payload.IsPublic = false
	updated, err := service.Update(context.Background(), created.ID, payload, "user-1")
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.Name != "Renamed" || updated.IsPublic {
		t.Fatalf("expected fields replaced, got %+v", updated)
	}

	if _, err := service.Update(context.Background(), created.ID, payload, "user-2"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestMembershipSetSemantics(t *testing.T) {
	service, db, clock := newTestService(t)
	seedUser(t, db, "user-1", "Asha")
	seedSong(t, db, "song-a", "Endaro", "user-1")
	seedSong(t, db, "song-b", "Jagadananda", "user-1")

	created, err := service.Create(context.Background(), validCollection(), "user-1")
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	withFirst, err := service.AddSong(context.Background(), created.ID, "song-a", "user-1")
	if err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if len(withFirst.Songs) != 1 || withFirst.Songs[0].Title != "Endaro" {
		t.Fatalf("expected one member with its summary, got %+v", withFirst.Songs)
	}

	clock.Advance(time.Minute)
	withBoth, err := service.AddSong(context.Background(), created.ID, "song-b", "user-1")
	if err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if len(withBoth.Songs) != 2 || withBoth.Songs[0].ID != "song-a" || withBoth.Songs[1].ID != "song-b" {
		t.Fatalf("expected members ordered by when added, got %+v", withBoth.Songs)
	}

	// Re-adding an existing member is a no-op.
	again, err := service.AddSong(context.Background(), created.ID, "song-a", "user-1")
	if err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if len(again.Songs) != 2 {
		t.Fatalf("expected set semantics on re-add, got %+v", again.Songs)
	}

	if _, err := service.AddSong(context.Background(), created.ID, "missing", "user-1"); !errors.Is(err, ErrSongNotFound) {
		t.Fatalf("expected ErrSongNotFound, got %v", err)
	}
	if _, err := service.AddSong(context.Background(), created.ID, "song-a", "user-2"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	removed, err := service.RemoveSong(context.Background(), created.ID, "song-a", "user-1")
	if err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}
	if len(removed.Songs) != 1 || removed.Songs[0].ID != "song-b" {
		t.Fatalf("expected song-a removed, got %+v", removed.Songs)
	}

	// Removing an absent member is a no-op.
	unchanged, err := service.RemoveSong(context.Background(), created.ID, "song-a", "user-1")
	if err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}
	if len(unchanged.Songs) != 1 {
		t.Fatalf("expected the set unchanged, got %+v", unchanged.Songs)
	}
}

func TestDeleteRemovesCollectionAndMemberships(t *testing.T) {
	service, db, _ := newTestService(t)
	seedUser(t, db, "user-1", "Asha")
	seedSong(t, db, "song-a", "Endaro", "user-1")

	created, err := service.Create(context.Background(), validCollection(), "user-1")
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := service.AddSong(context.Background(), created.ID, "song-a", "user-1"); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	if err := service.Delete(context.Background(), created.ID, "user-2"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := service.Delete(context.Background(), created.ID, "user-1"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, err := service.GetByID(context.Background(), created.ID); !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}

	var memberships int64
	if err := db.Model(&Membership{}).Count(&memberships).Error; err != nil {
		t.Fatalf("failed to count memberships: %v", err)
	}
	if memberships != 0 {
		t.Fatalf("expected membership rows removed, got %d", memberships)
	}
}
