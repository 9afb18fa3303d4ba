package integration_test

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/raagalabs/swarasheet/backend/internal/auth"
	"github.com/raagalabs/swarasheet/backend/internal/collections"
	"github.com/raagalabs/swarasheet/backend/internal/server"
	"github.com/raagalabs/swarasheet/backend/internal/songs"
	"github.com/raagalabs/swarasheet/backend/internal/users"
	"github.com/raagalabs/swarasheet/backend/pkg/apiclient"
	"github.com/raagalabs/swarasheet/backend/pkg/editsession"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	integrationSigningSecret = "integration-secret"
	integrationPhoneNumber   = "+15551234567"
	integrationOTPCode       = "123456"
)

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:swarasheet_integration_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&songs.Record{},
		&users.User{},
		&users.OTPChallenge{},
		&users.Favorite{},
		&collections.Record{},
		&collections.Membership{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(integrationSigningSecret),
		Issuer:        "swarasheet-auth",
		Audience:      "swarasheet-api",
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}
	codes, err := auth.NewFixedCodeSource(integrationOTPCode)
	if err != nil {
		t.Fatalf("failed to construct code source: %v", err)
	}

	idProvider := songs.NewUUIDProvider()
	userService, err := users.NewService(users.ServiceConfig{
		Database:    db,
		IDProvider:  idProvider,
		Codes:       codes,
		AllowSignup: true,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build user service: %v", err)
	}
	songService, err := songs.NewService(songs.ServiceConfig{
		Database:      db,
		IDProvider:    idProvider,
		Logger:        zap.NewNop(),
		PublicListing: true,
	})
	if err != nil {
		t.Fatalf("failed to build song service: %v", err)
	}
	collectionService, err := collections.NewService(collections.ServiceConfig{
		Database:      db,
		IDProvider:    idProvider,
		Logger:        zap.NewNop(),
		PublicListing: true,
	})
	if err != nil {
		t.Fatalf("failed to build collection service: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:      tokens,
		Songs:       songService,
		Users:       userService,
		Collections: collectionService,
		Database:    db,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	t.Cleanup(testServer.Close)
	return testServer
}

func loginClient(t *testing.T, serverURL, phoneNumber string) *apiclient.Client {
	t.Helper()
	client, err := apiclient.New(apiclient.Config{BaseURL: serverURL})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	if err := client.SendOTP(context.Background(), phoneNumber); err != nil {
		t.Fatalf("send otp failed: %v", err)
	}
	if _, err := client.VerifyOTP(context.Background(), phoneNumber, integrationOTPCode); err != nil {
		t.Fatalf("verify otp failed: %v", err)
	}
	return client
}

func TestSongLifecycleThroughClientAndSession(t *testing.T) {
	testServer := startTestServer(t)
	client := loginClient(t, testServer.URL, integrationPhoneNumber)

	me, err := client.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("current user failed: %v", err)
	}
	if me.Name != "User 4567" {
		t.Fatalf("unexpected provisioned name %q", me.Name)
	}

	// Author a new document locally, then push it whole.
	session, err := editsession.NewSession(editsession.SessionConfig{Repository: client})
	if err != nil {
		t.Fatalf("failed to build session: %v", err)
	}
	if err := session.SetMetadata(editsession.Metadata{
		Title:         "Endaro Mahanubhavulu",
		Artist:        "Tyagaraja",
		Album:         "Pancharatna Kritis",
		NotationType:  songs.NotationCarnatic,
		Aarohana:      "S R2 G3 M1 P D2 N3 S",
		Avarohana:     "S N3 D2 P M1 G3 R2 S",
		Tempo:         "72",
		TimeSignature: "4/4",
		Raga:          "Sri",
		Taal:          "Adi",
	}); err != nil {
		t.Fatalf("set metadata failed: %v", err)
	}
	sectionIndex, err := session.AddSection()
	if err != nil {
		t.Fatalf("add section failed: %v", err)
	}
	if err := session.SetSectionName(sectionIndex, "Pallavi"); err != nil {
		t.Fatalf("rename section failed: %v", err)
	}
	lineIndex, err := session.AddLine(sectionIndex)
	if err != nil {
		t.Fatalf("add line failed: %v", err)
	}
	if err := session.SetLine(sectionIndex, lineIndex, "S R G M", "Cm", "Endaro mahanubhavulu"); err != nil {
		t.Fatalf("set line failed: %v", err)
	}

	created, err := session.SaveWhole(context.Background())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if created.ID == "" || created.Version != 1 {
		t.Fatalf("unexpected created document: %+v", created)
	}
	if created.CreatedBy != me.UserID {
		t.Fatalf("expected ownership assigned to the caller")
	}
	if session.State() != editsession.StateClean {
		t.Fatalf("expected a clean session, got %s", session.State())
	}

	// Edit one section and push just that section.
	if err := session.SetLine(0, 0, "S R G M P", "Cm7", "Endaro mahanubhavulu revised"); err != nil {
		t.Fatalf("set line failed: %v", err)
	}
	afterSection, err := session.SaveSection(context.Background(), 0)
	if err != nil {
		t.Fatalf("section save failed: %v", err)
	}
	if afterSection.Version != 2 {
		t.Fatalf("expected version 2 after a section save, got %d", afterSection.Version)
	}
	if afterSection.Sections[0].ID != created.Sections[0].ID {
		t.Fatalf("expected the section id stable across the save")
	}

	// The server copy matches what the session saved.
	fetched, err := client.GetSong(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get song failed: %v", err)
	}
	if fetched.Sections[0].Lines[0].Lyrics != "Endaro mahanubhavulu revised" {
		t.Fatalf("unexpected server copy: %+v", fetched.Sections[0].Lines[0])
	}

	page, err := client.ListSongs(context.Background(), songs.ListQuery{Search: "endaro"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page.Songs) != 1 || page.Songs[0].ID != created.ID {
		t.Fatalf("expected the song listed, got %+v", page.Songs)
	}

	favorites, err := client.ToggleFavorite(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("favorite failed: %v", err)
	}
	if len(favorites) != 1 || favorites[0] != created.ID {
		t.Fatalf("unexpected favorites %v", favorites)
	}

	if err := client.DeleteSong(context.Background(), created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := client.GetSong(context.Background(), created.ID); !errors.Is(err, apiclient.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestConcurrentEditorsConflictOnStaleVersion(t *testing.T) {
	testServer := startTestServer(t)
	client := loginClient(t, testServer.URL, integrationPhoneNumber)

	base := songs.Song{
		Title:         "Autumn Leaves",
		Artist:        "Joseph Kosma",
		Album:         "Standards",
		NotationType:  songs.NotationWestern,
		Aarohana:      "C D E F G A B C",
		Avarohana:     "C B A G F E D C",
		Tempo:         "120",
		TimeSignature: "4/4",
		Sections: []songs.Section{
			{
				Name: "Verse",
				Lines: []songs.Line{
					{Notes: "E F G C", Chords: "Am7", Lyrics: "The falling leaves"},
				},
			},
		},
	}
	created, err := client.Create(context.Background(), base)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Two sessions load the same version of the song.
	first, err := editsession.NewSession(editsession.SessionConfig{Repository: client, Song: created})
	if err != nil {
		t.Fatalf("failed to build session: %v", err)
	}
	second, err := editsession.NewSession(editsession.SessionConfig{Repository: client, Song: created})
	if err != nil {
		t.Fatalf("failed to build session: %v", err)
	}

	if err := first.SetSectionName(0, "Verse one"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if _, err := first.SaveWhole(context.Background()); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	if err := second.SetSectionName(0, "Conflicting name"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if _, err := second.SaveWhole(context.Background()); !errors.Is(err, apiclient.ErrConflict) {
		t.Fatalf("expected ErrConflict for the stale session, got %v", err)
	}
	if second.State() != editsession.StateDirty {
		t.Fatalf("expected the stale session left dirty, got %s", second.State())
	}

	// The losing writer reloads and retries on the fresh version.
	fetched, err := client.GetSong(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get song failed: %v", err)
	}
	if fetched.Sections[0].Name != "Verse one" {
		t.Fatalf("expected the first write retained, got %q", fetched.Sections[0].Name)
	}
	retry, err := editsession.NewSession(editsession.SessionConfig{Repository: client, Song: fetched})
	if err != nil {
		t.Fatalf("failed to build session: %v", err)
	}
	if err := retry.SetSectionName(0, "Verse one, amended"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	saved, err := retry.SaveWhole(context.Background())
	if err != nil {
		t.Fatalf("retry save failed: %v", err)
	}
	if saved.Version != 3 {
		t.Fatalf("expected version 3 after the retry, got %d", saved.Version)
	}
}
