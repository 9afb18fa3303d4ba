package collections

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raagalabs/swarasheet/backend/internal/songs"
	"github.com/raagalabs/swarasheet/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrCollectionNotFound indicates the requested collection does not exist.
	ErrCollectionNotFound = errors.New("collections: collection not found")
	// ErrNotOwner indicates the caller does not own the collection.
	ErrNotOwner = errors.New("collections: caller is not the owner")
	// ErrSongNotFound indicates the song being added does not exist.
	ErrSongNotFound = errors.New("collections: song not found")
	// ErrNameRequired indicates a blank collection name.
	ErrNameRequired = errors.New("collections: name is required")
	// ErrDescriptionRequired indicates a blank collection description.
	ErrDescriptionRequired = errors.New("collections: description is required")
)

// IDProvider issues unique collection identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the collection service.
type ServiceConfig struct {
	Database        *gorm.DB
	Clock           func() time.Time
	IDProvider      IDProvider
	Logger          *zap.Logger
	PublicListing   bool
	DefaultPageSize int
	MaxPageSize     int
}

// Service provides owner-scoped persistence for song collections.
type Service struct {
	db              *gorm.DB
	clock           func() time.Time
	idProvider      IDProvider
	logger          *zap.Logger
	publicListing   bool
	defaultPageSize int
	maxPageSize     int
}

// NewService constructs the collection service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("collections: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("collections: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
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

// Create persists a new collection owned by ownerID.
func (s *Service) Create(ctx context.Context, collection Collection, ownerID string) (Collection, error) {
	if strings.TrimSpace(collection.Name) == "" {
		return Collection{}, ErrNameRequired
	}
	if strings.TrimSpace(collection.Description) == "" {
		return Collection{}, ErrDescriptionRequired
	}

	collectionID, err := s.idProvider.NewID()
	if err != nil {
		return Collection{}, fmt.Errorf("collections: generate id: %w", err)
	}
	tagsJSON, err := encodeTags(collection.Tags)
	if err != nil {
		return Collection{}, err
	}

	now := s.clock().UTC()
	record := Record{
		CollectionID: collectionID,
		Name:         collection.Name,
		Description:  collection.Description,
		CreatedBy:    ownerID,
		IsPublic:     collection.IsPublic,
		TagsJSON:     tagsJSON,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logger.Error("collection insert failed", zap.Error(err))
		return Collection{}, fmt.Errorf("collections: insert: %w", err)
	}
	return s.populate(ctx, s.db, record)
}

// GetByID loads one collection with its owner and member song summaries.
func (s *Service) GetByID(ctx context.Context, id string) (Collection, error) {
	record, err := s.loadRecord(ctx, s.db, id)
	if err != nil {
		return Collection{}, err
	}
	return s.populate(ctx, s.db, record)
}

// ListQuery narrows and pages a collection listing.
type ListQuery struct {
	Page     int
	Limit    int
	Search   string
	CallerID string
}

// Page is one page of listing results.
type Page struct {
	Collections []Collection `json:"collections"`
	TotalPages  int          `json:"totalPages"`
	Current     int          `json:"currentPage"`
}

// List returns collections newest-created-first, optionally narrowed by a
// case-insensitive substring over name and description.
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
		tx = tx.Where("lower(name) LIKE ? OR lower(description) LIKE ?", pattern, pattern)
	}
	if !s.publicListing {
		tx = tx.Where("created_by = ?", query.CallerID)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return Page{}, fmt.Errorf("collections: count: %w", err)
	}

	var records []Record
	if err := tx.
		Order("created_at DESC, collection_id DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&records).Error; err != nil {
		return Page{}, fmt.Errorf("collections: query: %w", err)
	}

	result := Page{
		Collections: make([]Collection, 0, len(records)),
		TotalPages:  int((total + int64(limit) - 1) / int64(limit)),
		Current:     page,
	}
	for _, record := range records {
		collection, err := s.populate(ctx, s.db, record)
		if err != nil {
			return Page{}, err
		}
		result.Collections = append(result.Collections, collection)
	}
	return result, nil
}

// Update replaces the mutable fields of a collection. Membership is
// managed through AddSong and RemoveSong, not here.
func (s *Service) Update(ctx context.Context, id string, payload Collection, callerID string) (Collection, error) {
	if strings.TrimSpace(payload.Name) == "" {
		return Collection{}, ErrNameRequired
	}
	if strings.TrimSpace(payload.Description) == "" {
		return Collection{}, ErrDescriptionRequired
	}

	var updated Record
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.loadRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if record.CreatedBy != callerID {
			return ErrNotOwner
		}
		tagsJSON, err := encodeTags(payload.Tags)
		if err != nil {
			return err
		}
		record.Name = payload.Name
		record.Description = payload.Description
		record.IsPublic = payload.IsPublic
		record.TagsJSON = tagsJSON
		record.UpdatedAt = s.clock().UTC()
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("collections: save: %w", err)
		}
		updated = record
		return nil
	})
	if txErr != nil {
		return Collection{}, txErr
	}
	return s.populate(ctx, s.db, updated)
}

// Delete removes a collection and its membership rows.
func (s *Service) Delete(ctx context.Context, id, callerID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.loadRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if record.CreatedBy != callerID {
			return ErrNotOwner
		}
		if err := tx.Delete(&Record{}, "collection_id = ?", id).Error; err != nil {
			return fmt.Errorf("collections: delete: %w", err)
		}
		if err := tx.Delete(&Membership{}, "collection_id = ?", id).Error; err != nil {
			return fmt.Errorf("collections: delete memberships: %w", err)
		}
		return nil
	})
}

// AddSong puts songID into the collection's membership set. Adding a song
// that is already a member is a no-op.
func (s *Service) AddSong(ctx context.Context, collectionID, songID, callerID string) (Collection, error) {
	var record Record
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.loadRecord(ctx, tx, collectionID)
		if err != nil {
			return err
		}
		if loaded.CreatedBy != callerID {
			return ErrNotOwner
		}

		var song songs.Record
		err = tx.Where("song_id = ?", songID).Take(&song).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSongNotFound
		}
		if err != nil {
			return fmt.Errorf("collections: load song: %w", err)
		}

		membership := Membership{
			CollectionID: collectionID,
			SongID:       songID,
			CreatedAt:    s.clock().UTC(),
		}
		if err := tx.
			Where("collection_id = ? AND song_id = ?", collectionID, songID).
			FirstOrCreate(&membership).Error; err != nil {
			return fmt.Errorf("collections: add membership: %w", err)
		}
		record = loaded
		return nil
	})
	if txErr != nil {
		return Collection{}, txErr
	}
	return s.populate(ctx, s.db, record)
}

// RemoveSong drops songID from the collection's membership set. Removing
// a song that is not a member is a no-op.
func (s *Service) RemoveSong(ctx context.Context, collectionID, songID, callerID string) (Collection, error) {
	var record Record
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.loadRecord(ctx, tx, collectionID)
		if err != nil {
			return err
		}
		if loaded.CreatedBy != callerID {
			return ErrNotOwner
		}
		if err := tx.Delete(&Membership{}, "collection_id = ? AND song_id = ?", collectionID, songID).Error; err != nil {
			return fmt.Errorf("collections: remove membership: %w", err)
		}
		record = loaded
		return nil
	})
	if txErr != nil {
		return Collection{}, txErr
	}
	return s.populate(ctx, s.db, record)
}

func (s *Service) loadRecord(ctx context.Context, tx *gorm.DB, id string) (Record, error) {
	var record Record
	err := tx.WithContext(ctx).Where("collection_id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrCollectionNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("collections: select: %w", err)
	}
	return record, nil
}

// populate attaches the owner summary and member song summaries, ordered
// by when each song was added.
func (s *Service) populate(ctx context.Context, tx *gorm.DB, record Record) (Collection, error) {
	collection, err := record.toCollection()
	if err != nil {
		return Collection{}, err
	}

	var owner users.User
	err = tx.WithContext(ctx).Where("user_id = ?", record.CreatedBy).Take(&owner).Error
	if err == nil {
		collection.Owner = &OwnerSummary{ID: owner.UserID, Name: owner.Name}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Collection{}, fmt.Errorf("collections: load owner: %w", err)
	}

	var memberships []Membership
	if err := tx.WithContext(ctx).
		Where("collection_id = ?", record.CollectionID).
		Order("created_at ASC, song_id ASC").
		Find(&memberships).Error; err != nil {
		return Collection{}, fmt.Errorf("collections: load memberships: %w", err)
	}
	if len(memberships) == 0 {
		return collection, nil
	}

	songIDs := make([]string, 0, len(memberships))
	for _, membership := range memberships {
		songIDs = append(songIDs, membership.SongID)
	}
	var songRecords []songs.Record
	if err := tx.WithContext(ctx).
		Where("song_id IN ?", songIDs).
		Find(&songRecords).Error; err != nil {
		return Collection{}, fmt.Errorf("collections: load member songs: %w", err)
	}
	summaries := make(map[string]SongSummary, len(songRecords))
	for _, songRecord := range songRecords {
		summaries[songRecord.SongID] = SongSummary{
			ID:           songRecord.SongID,
			Title:        songRecord.Title,
			Artist:       songRecord.Artist,
			Album:        songRecord.Album,
			NotationType: songRecord.NotationType,
		}
	}
	for _, id := range songIDs {
		if summary, ok := summaries[id]; ok {
			collection.Songs = append(collection.Songs, summary)
		}
	}
	return collection, nil
}
