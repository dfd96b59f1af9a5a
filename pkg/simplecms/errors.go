package simplecms

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrDocumentNotFound indicates an id did not resolve, or resolved to a
	// soft-deleted or filtered-out record
	ErrDocumentNotFound = errors.New("document not found")

	// ErrValidation indicates a required argument was missing or malformed
	ErrValidation = errors.New("validation failed")

	// ErrContentLanguageNotFound indicates the content has no record for the version's language
	ErrContentLanguageNotFound = errors.New("content language not found")

	ErrDuplicateSiteName   = errors.New("site name already exists")
	ErrDuplicateStartPage  = errors.New("start page already used by another site")
	ErrDuplicateHostName   = errors.New("host name defined more than once")
	ErrMultiplePrimaryHost = errors.New("more than one primary host for a language")
	ErrHostNameAlreadyUsed = errors.New("host name already used by another site")

	// ErrUnknownContentKind indicates no service is registered for a content kind
	ErrUnknownContentKind = errors.New("unknown content kind")
)

// ContentError represents an error related to a content flow
type ContentError struct {
	ContentID string
	Op        string
	Err       error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("content operation %s failed for content %s: %v", e.Op, e.ContentID, e.Err)
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

// VersionError represents an error related to version operations
type VersionError struct {
	VersionID string
	Op        string
	Err       error
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("version operation %s failed for version %s: %v", e.Op, e.VersionID, e.Err)
}

func (e *VersionError) Unwrap() error {
	return e.Err
}

// SiteError represents an error related to site definition operations
type SiteError struct {
	Site string
	Op   string
	Err  error
}

func (e *SiteError) Error() string {
	return fmt.Sprintf("site definition operation %s failed for %s: %v", e.Op, e.Site, e.Err)
}

func (e *SiteError) Unwrap() error {
	return e.Err
}

func validationError(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrValidation, field, err)
}

func notFound(entity string, id string) error {
	return fmt.Errorf("%w: %s %s", ErrDocumentNotFound, entity, id)
}
