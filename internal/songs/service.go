package songs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrSongNotFound indicates the requested song does not exist.
	ErrSongNotFound = errors.New("songs: song not found")
	// ErrNotOwner indicates the caller does not own the song being mutated.
	ErrNotOwner = errors.New("songs: caller is not the owner")
	// ErrVersionConflict indicates the stored document moved past the
	// version the caller last saw.
	ErrVersionConflict = errors.New("songs: stale version")
	// ErrSectionNotFound indicates a section index outside the document.
	ErrSectionNotFound = errors.New("songs: section not found")
)

// ServiceError carries a dotted operation code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "songs.service.new"
	opCreate        = "songs.create"
	opList          = "songs.list"
	opGet           = "songs.get"
	opUpdateWhole   = "songs.update_whole"
	opUpdateSection = "songs.update_section"
	opDelete        = "songs.delete"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the song service.
type ServiceConfig struct {
	Database        *gorm.DB
	Clock           func() time.Time
	IDProvider      IDProvider
	Logger          *zap.Logger
	PublicListing   bool
	DefaultPageSize int
	MaxPageSize     int
}

// Service provides owner-scoped persistence for song documents.
type Service struct {
	db              *gorm.DB
	clock           func() time.Time
	idProvider      IDProvider
	logger          *zap.Logger
	publicListing   bool
	defaultPageSize int
	maxPageSize     int
}

// NewService constructs the song service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	defaultPageSize := cfg.DefaultPageSize
	if defaultPageSize <= 0 {
		defaultPageSize = 10
	}
	maxPageSize := cfg.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &Service{
		db:              cfg.Database,
		clock:           clock,
		idProvider:      cfg.IDProvider,
		logger:          logger,
		publicListing:   cfg.PublicListing,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}, nil
}

// Create validates and persists a new song owned by ownerID. The document
// identifier and the ids of any section or line missing one are assigned
// here; client-supplied ids for the song itself are ignored.
func (s *Service) Create(ctx context.Context, song Song, ownerID UserID) (Song, error) {
	if err := ValidateSong(song); err != nil {
		return Song{}, err
	}

	now := s.clock().UTC()
	song = song.Clone()
	songID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Song{}, newServiceError(opCreate, "id_generation_failed", err)
	}
	song.ID = songID
	song.CreatedBy = ownerID.String()
	song.Version = 1
	song.CreatedAt = now
	song.UpdatedAt = now
	normalizeVariantFields(&song)

	for i := range song.Sections {
		if err := s.stampSection(&song.Sections[i], i, now, now); err != nil {
			return Song{}, newServiceError(opCreate, "id_generation_failed", err)
		}
	}

	record, err := newRecord(song)
	if err != nil {
		s.logError(opCreate, "encode_failed", err, zap.String("song_id", song.ID))
		return Song{}, newServiceError(opCreate, "encode_failed", err)
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("song_id", song.ID))
		return Song{}, newServiceError(opCreate, "insert_failed", err)
	}
	return song, nil
}

// ListQuery narrows and pages a song listing.
type ListQuery struct {
	Page         int
	Limit        int
	Search       string
	NotationType string
	CallerID     string
}

// Page is one page of listing results.
type Page struct {
	Songs      []Song `json:"songs"`
	TotalPages int    `json:"totalPages"`
	Current    int    `json:"currentPage"`
}

// List returns songs newest-created-first, optionally narrowed by a
// case-insensitive substring over title, artist, and album and by exact
// notation type. When public listing is disabled results are scoped to
// the caller's own songs.
func (s *Service) List(ctx context.Context, query ListQuery) (Page, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit <= 0 {
		limit = s.defaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	tx := s.db.WithContext(ctx).Model(&Record{})
	if search := strings.TrimSpace(query.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		tx = tx.Where(
			"lower(title) LIKE ? OR lower(artist) LIKE ? OR lower(album) LIKE ?",
			pattern, pattern, pattern,
		)
	}
	if notation := strings.TrimSpace(query.NotationType); notation != "" {
		parsed, err := ParseNotationType(notation)
		if err != nil {
			return Page{}, newValidationError("notationType", "Unknown notation type")
		}
		tx = tx.Where("notation_type = ?", parsed.String())
	}
	if !s.publicListing {
		tx = tx.Where("created_by = ?", query.CallerID)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		s.logError(opList, "count_failed", err)
		return Page{}, newServiceError(opList, "count_failed", err)
	}

	var records []Record
	if err := tx.
		Order("created_at DESC, song_id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&records).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return Page{}, newServiceError(opList, "query_failed", err)
	}

	result := Page{
		Songs:      make([]Song, 0, len(records)),
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		Current:    page,
	}
	for _, record := range records {
		song, err := record.ToSong()
		if err != nil {
			s.logError(opList, "decode_failed", err, zap.String("song_id", record.SongID))
			return Page{}, newServiceError(opList, "decode_failed", err)
		}
		result.Songs = append(result.Songs, song)
	}
	return result, nil
}

// GetByID loads one song document.
func (s *Service) GetByID(ctx context.Context, id SongID) (Song, error) {
	record, err := s.loadRecord(ctx, s.db, id)
	if err != nil {
		return Song{}, err
	}
	song, err := record.ToSong()
	if err != nil {
		s.logError(opGet, "decode_failed", err, zap.String("song_id", id.String()))
		return Song{}, newServiceError(opGet, "decode_failed", err)
	}
	return song, nil
}

// UpdateWhole replaces every top-level field and the full section tree of
// an existing song. The payload's version must match the stored version;
// section createdAt stamps survive by matching section ids, never array
// position.
func (s *Service) UpdateWhole(ctx context.Context, id SongID, payload Song, callerID UserID) (Song, error) {
	var updated Song
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.loadRecordLocked(ctx, tx, id)
		if err != nil {
			return err
		}
		if record.CreatedBy != callerID.String() {
			return ErrNotOwner
		}
		if payload.Version != record.Version {
			return fmt.Errorf("%w: have %d, stored %d", ErrVersionConflict, payload.Version, record.Version)
		}
		if err := ValidateSong(payload); err != nil {
			return err
		}

		stored, err := record.ToSong()
		if err != nil {
			s.logError(opUpdateWhole, "decode_failed", err, zap.String("song_id", id.String()))
			return newServiceError(opUpdateWhole, "decode_failed", err)
		}

		now := s.clock().UTC()
		next := payload.Clone()
		next.ID = stored.ID
		next.CreatedBy = stored.CreatedBy
		next.CreatedAt = stored.CreatedAt
		next.UpdatedAt = now
		next.Version = stored.Version + 1
		normalizeVariantFields(&next)

		createdStamps := make(map[string]time.Time, len(stored.Sections))
		for _, section := range stored.Sections {
			createdStamps[section.ID] = section.CreatedAt
		}
		for i := range next.Sections {
			createdAt := now
			if stamp, ok := createdStamps[next.Sections[i].ID]; ok {
				createdAt = stamp
			}
			if err := s.stampSection(&next.Sections[i], i, createdAt, now); err != nil {
				return newServiceError(opUpdateWhole, "id_generation_failed", err)
			}
		}

		nextRecord, err := newRecord(next)
		if err != nil {
			s.logError(opUpdateWhole, "encode_failed", err, zap.String("song_id", id.String()))
			return newServiceError(opUpdateWhole, "encode_failed", err)
		}
		if err := tx.Save(&nextRecord).Error; err != nil {
			s.logError(opUpdateWhole, "save_failed", err, zap.String("song_id", id.String()))
			return newServiceError(opUpdateWhole, "save_failed", err)
		}
		updated = next
		return nil
	})
	if txErr != nil {
		return Song{}, txErr
	}
	return updated, nil
}

// UpdateSection replaces the content of one section, leaving the rest of
// the document untouched. The whole document is persisted; the targeted
// section keeps its id and createdAt while its updatedAt refreshes.
func (s *Service) UpdateSection(ctx context.Context, id SongID, sectionIndex int, payload Section, callerID UserID, version int64) (Song, error) {
	var updated Song
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.loadRecordLocked(ctx, tx, id)
		if err != nil {
			return err
		}
		if record.CreatedBy != callerID.String() {
			return ErrNotOwner
		}
		if version != record.Version {
			return fmt.Errorf("%w: have %d, stored %d", ErrVersionConflict, version, record.Version)
		}
		if err := ValidateSection(payload); err != nil {
			return err
		}

		stored, err := record.ToSong()
		if err != nil {
			s.logError(opUpdateSection, "decode_failed", err, zap.String("song_id", id.String()))
			return newServiceError(opUpdateSection, "decode_failed", err)
		}
		if sectionIndex < 0 || sectionIndex >= len(stored.Sections) {
			return fmt.Errorf("%w: index %d of %d", ErrSectionNotFound, sectionIndex, len(stored.Sections))
		}

		now := s.clock().UTC()
		existing := stored.Sections[sectionIndex]
		next := payload
		next.ID = existing.ID
		next.Order = sectionIndex
		next.Lines = append([]Line(nil), payload.Lines...)
		if err := s.stampSection(&next, sectionIndex, existing.CreatedAt, now); err != nil {
			return newServiceError(opUpdateSection, "id_generation_failed", err)
		}
		stored.Sections[sectionIndex] = next
		stored.UpdatedAt = now
		stored.Version = record.Version + 1

		nextRecord, err := newRecord(stored)
		if err != nil {
			s.logError(opUpdateSection, "encode_failed", err, zap.String("song_id", id.String()))
			return newServiceError(opUpdateSection, "encode_failed", err)
		}
		if err := tx.Save(&nextRecord).Error; err != nil {
			s.logError(opUpdateSection, "save_failed", err, zap.String("song_id", id.String()))
			return newServiceError(opUpdateSection, "save_failed", err)
		}
		updated = stored
		return nil
	})
	if txErr != nil {
		return Song{}, txErr
	}
	return updated, nil
}

// Delete removes a song and, in the same transaction, the favorite and
// collection-membership rows that point at it so no dangling references
// survive the delete.
func (s *Service) Delete(ctx context.Context, id SongID, callerID UserID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.loadRecordLocked(ctx, tx, id)
		if err != nil {
			return err
		}
		if record.CreatedBy != callerID.String() {
			return ErrNotOwner
		}
		if err := tx.Delete(&Record{}, "song_id = ?", id.String()).Error; err != nil {
			s.logError(opDelete, "delete_failed", err, zap.String("song_id", id.String()))
			return newServiceError(opDelete, "delete_failed", err)
		}
		if err := tx.Exec("DELETE FROM user_favorites WHERE song_id = ?", id.String()).Error; err != nil {
			s.logError(opDelete, "favorite_cleanup_failed", err, zap.String("song_id", id.String()))
			return newServiceError(opDelete, "favorite_cleanup_failed", err)
		}
		if err := tx.Exec("DELETE FROM collection_songs WHERE song_id = ?", id.String()).Error; err != nil {
			s.logError(opDelete, "membership_cleanup_failed", err, zap.String("song_id", id.String()))
			return newServiceError(opDelete, "membership_cleanup_failed", err)
		}
		return nil
	})
}

func (s *Service) loadRecord(ctx context.Context, tx *gorm.DB, id SongID) (Record, error) {
	var record Record
	err := tx.WithContext(ctx).Where("song_id = ?", id.String()).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrSongNotFound
	}
	if err != nil {
		s.logError(opGet, "select_failed", err, zap.String("song_id", id.String()))
		return Record{}, newServiceError(opGet, "select_failed", err)
	}
	return record, nil
}

func (s *Service) loadRecordLocked(ctx context.Context, tx *gorm.DB, id SongID) (Record, error) {
	var record Record
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("song_id = ?", id.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrSongNotFound
	}
	if err != nil {
		s.logError(opGet, "select_failed", err, zap.String("song_id", id.String()))
		return Record{}, newServiceError(opGet, "select_failed", err)
	}
	return record, nil
}

// stampSection assigns missing section and line ids, normalizes ordinals
// to the array index, and applies timestamps.
func (s *Service) stampSection(section *Section, index int, createdAt, updatedAt time.Time) error {
	if strings.TrimSpace(section.ID) == "" {
		id, err := s.idProvider.NewID()
		if err != nil {
			return err
		}
		section.ID = id
	}
	section.Order = index
	section.CreatedAt = createdAt
	section.UpdatedAt = updatedAt
	for i := range section.Lines {
		if strings.TrimSpace(section.Lines[i].ID) == "" {
			id, err := s.idProvider.NewID()
			if err != nil {
				return err
			}
			section.Lines[i].ID = id
		}
		section.Lines[i].Order = i
	}
	return nil
}

// normalizeVariantFields drops fields that do not apply to the song's
// notation system. Raga and taal have no meaning for western notation.
func normalizeVariantFields(song *Song) {
	if !song.NotationType.AllowsRaga() {
		song.Raga = ""
		song.Taal = ""
	}
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("songs service error", attrs...)
}
