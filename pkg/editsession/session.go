// Package editsession holds a locally-editable working copy of one song
// document, independent of the authoritative copy held by the service,
// and reconciles the two at save boundaries.
package editsession

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/raagalabs/swarasheet/backend/internal/songs"
)

// State describes where the session sits between local edits and saves.
type State string

const (
	// StateClean means the working copy matches the last-saved copy.
	StateClean State = "clean"
	// StateDirty means local mutations have not been saved. A failed
	// save leaves the session dirty with the error retained.
	StateDirty State = "dirty"
	// StateSaving means a save is in flight; the working copy is locked
	// and mutations are rejected until the save resolves.
	StateSaving State = "saving"
)

var (
	// ErrSaveInFlight indicates a mutation or save attempted while a
	// save is already running.
	ErrSaveInFlight = errors.New("editsession: save in flight")
	// ErrIndexOutOfRange indicates a section or line index outside the
	// working copy.
	ErrIndexOutOfRange = errors.New("editsession: index out of range")
	// ErrMissingRepository indicates a session built without a repository.
	ErrMissingRepository = errors.New("editsession: repository required")
	// ErrUnsavedDocument indicates a section save on a document that has
	// never been saved whole, so it has no identifier yet.
	ErrUnsavedDocument = errors.New("editsession: document has not been saved")
)

// Repository is the save boundary. The HTTP client implements it against
// the REST surface; tests implement it in memory.
type Repository interface {
	Create(ctx context.Context, song songs.Song) (songs.Song, error)
	UpdateWhole(ctx context.Context, id string, song songs.Song) (songs.Song, error)
	UpdateSection(ctx context.Context, id string, index int, section songs.Section, version int64) (songs.Song, error)
}

// Metadata carries the top-level editable fields of the document.
type Metadata struct {
	Title         string
	Artist        string
	Album         string
	NotationType  songs.NotationType
	Aarohana      string
	Avarohana     string
	Tempo         string
	TimeSignature string
	Raga          string
	Taal          string
	Tags          []string
}

// SessionConfig describes a new edit session.
type SessionConfig struct {
	Repository Repository
	// Song is the initial working copy. The zero value starts a new,
	// unsaved document.
	Song songs.Song
}

// Session is safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	state   State
	working songs.Song
	saved   songs.Song
	repo    Repository
	lastErr error
}

// NewSession constructs a session whose working copy starts equal to the
// provided song.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Repository == nil {
		return nil, ErrMissingRepository
	}
	return &Session{
		state:   StateClean,
		working: cfg.Song.Clone(),
		saved:   cfg.Song.Clone(),
		repo:    cfg.Repository,
	}, nil
}

// State reports the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error retained from the last failed save, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Song returns a deep copy of the working document.
func (s *Session) Song() songs.Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working.Clone()
}

// SetMetadata replaces the top-level fields of the working copy.
func (s *Session) SetMetadata(meta Metadata) error {
	return s.mutate(func() error {
		s.working.Title = meta.Title
		s.working.Artist = meta.Artist
		s.working.Album = meta.Album
		s.working.NotationType = meta.NotationType
		s.working.Aarohana = meta.Aarohana
		s.working.Avarohana = meta.Avarohana
		s.working.Tempo = meta.Tempo
		s.working.TimeSignature = meta.TimeSignature
		s.working.Raga = meta.Raga
		s.working.Taal = meta.Taal
		s.working.Tags = append([]string(nil), meta.Tags...)
		return nil
	})
}

// SetSectionName renames one section of the working copy.
func (s *Session) SetSectionName(sectionIndex int, name string) error {
	return s.mutate(func() error {
		if sectionIndex < 0 || sectionIndex >= len(s.working.Sections) {
			return fmt.Errorf("%w: section %d", ErrIndexOutOfRange, sectionIndex)
		}
		s.working.Sections[sectionIndex].Name = name
		return nil
	})
}

// SetLine replaces the content of one line of the working copy.
func (s *Session) SetLine(sectionIndex, lineIndex int, notes, chords, lyrics string) error {
	return s.mutate(func() error {
		if sectionIndex < 0 || sectionIndex >= len(s.working.Sections) {
			return fmt.Errorf("%w: section %d", ErrIndexOutOfRange, sectionIndex)
		}
		lines := s.working.Sections[sectionIndex].Lines
		if lineIndex < 0 || lineIndex >= len(lines) {
			return fmt.Errorf("%w: line %d", ErrIndexOutOfRange, lineIndex)
		}
		lines[lineIndex].Notes = notes
		lines[lineIndex].Chords = chords
		lines[lineIndex].Lyrics = lyrics
		return nil
	})
}

// AddSection appends a section with a generated sequential display name,
// the next ordinal position, and no lines. Returns the new index.
func (s *Session) AddSection() (int, error) {
	index := -1
	err := s.mutate(func() error {
		index = len(s.working.Sections)
		s.working.Sections = append(s.working.Sections, songs.Section{
			Name:  fmt.Sprintf("Section %d", index+1),
			Order: index,
			Lines: []songs.Line{},
		})
		return nil
	})
	return index, err
}

// AddLine appends a blank line to the section. Returns the new line index.
func (s *Session) AddLine(sectionIndex int) (int, error) {
	index := -1
	err := s.mutate(func() error {
		if sectionIndex < 0 || sectionIndex >= len(s.working.Sections) {
			return fmt.Errorf("%w: section %d", ErrIndexOutOfRange, sectionIndex)
		}
		section := &s.working.Sections[sectionIndex]
		index = len(section.Lines)
		section.Lines = append(section.Lines, songs.Line{Order: index})
		return nil
	})
	return index, err
}

// RemoveSection splices out one section and renumbers the ordinals of the
// remaining sections so positions stay dense.
func (s *Session) RemoveSection(index int) error {
	return s.mutate(func() error {
		if index < 0 || index >= len(s.working.Sections) {
			return fmt.Errorf("%w: section %d", ErrIndexOutOfRange, index)
		}
		s.working.Sections = append(s.working.Sections[:index], s.working.Sections[index+1:]...)
		renumberSections(s.working.Sections)
		return nil
	})
}

// RemoveLine splices out one line and renumbers the remaining lines.
func (s *Session) RemoveLine(sectionIndex, lineIndex int) error {
	return s.mutate(func() error {
		if sectionIndex < 0 || sectionIndex >= len(s.working.Sections) {
			return fmt.Errorf("%w: section %d", ErrIndexOutOfRange, sectionIndex)
		}
		section := &s.working.Sections[sectionIndex]
		if lineIndex < 0 || lineIndex >= len(section.Lines) {
			return fmt.Errorf("%w: line %d", ErrIndexOutOfRange, lineIndex)
		}
		section.Lines = append(section.Lines[:lineIndex], section.Lines[lineIndex+1:]...)
		for i := range section.Lines {
			section.Lines[i].Order = i
		}
		return nil
	})
}

// MoveSection shifts a section from one position to another, renumbering
// every ordinal.
func (s *Session) MoveSection(from, to int) error {
	return s.mutate(func() error {
		count := len(s.working.Sections)
		if from < 0 || from >= count || to < 0 || to >= count {
			return fmt.Errorf("%w: move %d -> %d", ErrIndexOutOfRange, from, to)
		}
		if from == to {
			return nil
		}
		moved := s.working.Sections[from]
		rest := append(s.working.Sections[:from:from], s.working.Sections[from+1:]...)
		sections := make([]songs.Section, 0, count)
		sections = append(sections, rest[:to]...)
		sections = append(sections, moved)
		sections = append(sections, rest[to:]...)
		s.working.Sections = sections
		renumberSections(s.working.Sections)
		return nil
	})
}

// MoveLine shifts a line within its section, renumbering line ordinals.
func (s *Session) MoveLine(sectionIndex, from, to int) error {
	return s.mutate(func() error {
		if sectionIndex < 0 || sectionIndex >= len(s.working.Sections) {
			return fmt.Errorf("%w: section %d", ErrIndexOutOfRange, sectionIndex)
		}
		section := &s.working.Sections[sectionIndex]
		count := len(section.Lines)
		if from < 0 || from >= count || to < 0 || to >= count {
			return fmt.Errorf("%w: move %d -> %d", ErrIndexOutOfRange, from, to)
		}
		if from == to {
			return nil
		}
		moved := section.Lines[from]
		rest := append(section.Lines[:from:from], section.Lines[from+1:]...)
		lines := make([]songs.Line, 0, count)
		lines = append(lines, rest[:to]...)
		lines = append(lines, moved)
		lines = append(lines, rest[to:]...)
		section.Lines = lines
		for i := range section.Lines {
			section.Lines[i].Order = i
		}
		return nil
	})
}

// SaveWhole pushes the complete working copy through the repository,
// creating the document when it has no identifier yet. On success the
// canonical response replaces the working copy and the session returns
// to clean; on failure the working copy is kept and the error retained.
func (s *Session) SaveWhole(ctx context.Context) (songs.Song, error) {
	snapshot, err := s.beginSave()
	if err != nil {
		return songs.Song{}, err
	}

	var canonical songs.Song
	if snapshot.ID == "" {
		canonical, err = s.repo.Create(ctx, snapshot)
	} else {
		canonical, err = s.repo.UpdateWhole(ctx, snapshot.ID, snapshot)
	}
	return s.finishSave(canonical, err)
}

// SaveSection pushes one section through the repository. The section must
// pass local validation first; an invalid section aborts without any
// repository call.
func (s *Session) SaveSection(ctx context.Context, index int) (songs.Song, error) {
	s.mu.Lock()
	if s.state == StateSaving {
		s.mu.Unlock()
		return songs.Song{}, ErrSaveInFlight
	}
	if index < 0 || index >= len(s.working.Sections) {
		s.mu.Unlock()
		return songs.Song{}, fmt.Errorf("%w: section %d", ErrIndexOutOfRange, index)
	}
	if s.working.ID == "" {
		s.mu.Unlock()
		return songs.Song{}, ErrUnsavedDocument
	}
	section := s.working.Sections[index]
	section.Lines = append([]songs.Line(nil), section.Lines...)
	if err := songs.ValidateSection(section); err != nil {
		s.lastErr = err
		s.mu.Unlock()
		return songs.Song{}, err
	}
	songID := s.working.ID
	version := s.working.Version
	s.state = StateSaving
	s.mu.Unlock()

	canonical, err := s.repo.UpdateSection(ctx, songID, index, section, version)
	return s.finishSave(canonical, err)
}

func (s *Session) beginSave() (songs.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSaving {
		return songs.Song{}, ErrSaveInFlight
	}
	s.state = StateSaving
	return s.working.Clone(), nil
}

func (s *Session) finishSave(canonical songs.Song, err error) (songs.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateDirty
		s.lastErr = err
		return songs.Song{}, err
	}
	s.working = canonical.Clone()
	s.saved = canonical.Clone()
	s.state = StateClean
	s.lastErr = nil
	return canonical.Clone(), nil
}

func (s *Session) mutate(apply func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSaving {
		return ErrSaveInFlight
	}
	if err := apply(); err != nil {
		return err
	}
	s.state = StateDirty
	s.lastErr = nil
	return nil
}

func renumberSections(sections []songs.Section) {
	for i := range sections {
		sections[i].Order = i
	}
}
