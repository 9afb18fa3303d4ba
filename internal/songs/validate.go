package songs

import (
	"fmt"
	"strings"
)

// ValidationError reports the first structural rule a document violates.
// Messages are user-facing; handlers return them verbatim with a 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func isBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}

// ValidateSong checks the structural rules for a whole document.
// The first failing rule wins; no aggregation.
func ValidateSong(song Song) error {
	if isBlank(song.Title) {
		return newValidationError("title", "Title is required")
	}
	if isBlank(song.Artist) {
		return newValidationError("artist", "Artist is required")
	}
	if isBlank(song.Album) {
		return newValidationError("album", "Album is required")
	}
	if _, err := ParseNotationType(string(song.NotationType)); err != nil {
		return newValidationError("notationType", "Notation type is required")
	}
	if isBlank(song.Aarohana) {
		return newValidationError("aarohana", "Aarohana is required")
	}
	if isBlank(song.Avarohana) {
		return newValidationError("avarohana", "Avarohana is required")
	}
	if isBlank(song.Tempo) {
		return newValidationError("tempo", "Tempo is required")
	}
	if isBlank(song.TimeSignature) {
		return newValidationError("timeSignature", "Time signature is required")
	}
	if len(song.Sections) == 0 {
		return newValidationError("sections", "At least one section is required")
	}
	for _, section := range song.Sections {
		if err := ValidateSection(section); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSection checks the structural rules for a single section.
func ValidateSection(section Section) error {
	if isBlank(section.Name) {
		return newValidationError("name", "Section name is required")
	}
	if len(section.Lines) == 0 {
		return newValidationError("lines", fmt.Sprintf("Section %q must have at least one line", section.Name))
	}
	for _, line := range section.Lines {
		if isBlank(line.Notes) {
			return newValidationError("notes", "Notes are required for each line")
		}
		if isBlank(line.Chords) {
			return newValidationError("chords", "Chords are required for each line")
		}
		if isBlank(line.Lyrics) {
			return newValidationError("lyrics", "Lyrics are required for each line")
		}
	}
	return nil
}
