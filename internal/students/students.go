// Package students manages the roster of learners.
package students

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/abhisek/wordmaster/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MaxNameLength bounds student names in characters.
const MaxNameLength = 32

var (
	ErrEmptyName     = errors.New("name must not be empty")
	ErrNameTooLong   = errors.New("name is too long")
	ErrDuplicateName = errors.New("a student with this name already exists")
)

// Service manages the student roster.
type Service struct {
	store *store.Store
	log   zerolog.Logger

	// Now returns the current time. Tests replace it.
	Now func() time.Time
}

// NewService creates a roster service.
func NewService(st *store.Store, log zerolog.Logger) *Service {
	return &Service{
		store: st,
		log:   log.With().Str("component", "students").Logger(),
		Now:   time.Now,
	}
}

// normalize trims surrounding whitespace. Names are otherwise compared
// exactly, so "Minji" and "minji" are different students.
func normalize(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}

// Login returns the student with the given name, creating one on first
// login. The boolean reports whether the student was created.
func (s *Service) Login(ctx context.Context, name string) (*store.Student, bool, error) {
	return s.findOrCreate(ctx, name, false)
}

// Create adds a new student and fails with ErrDuplicateName if the name is
// taken.
func (s *Service) Create(ctx context.Context, name string) (*store.Student, error) {
	st, _, err := s.findOrCreate(ctx, name, true)
	return st, err
}

func (s *Service) findOrCreate(ctx context.Context, raw string, mustCreate bool) (*store.Student, bool, error) {
	name, err := normalize(raw)
	if err != nil {
		return nil, false, err
	}

	var (
		out     *store.Student
		created bool
	)
	// Creations are serialized per name within this process. Other processes
	// sharing the database surface as ErrDuplicate from the insert.
	err = s.store.Serialize(ctx, "name:"+name, func(tx *store.Tx) error {
		existing, err := tx.StudentByName(ctx, name)
		switch {
		case err == nil:
			if mustCreate {
				return ErrDuplicateName
			}
			out = existing
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		now := s.Now()
		st := &store.Student{
			ID:               uuid.New().String(),
			Name:             name,
			LastWrongItemIDs: []string{},
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.InsertStudent(ctx, st); err != nil {
			return err
		}
		out, created = st, true
		return nil
	})
	if errors.Is(err, store.ErrDuplicate) {
		// Another process inserted the name between our read and insert.
		if mustCreate {
			return nil, false, ErrDuplicateName
		}
		out, err = s.store.StudentByName(ctx, name)
	}
	if err != nil {
		return nil, false, fmt.Errorf("student %q: %w", name, err)
	}

	if created {
		s.log.Info().Str("student_id", out.ID).Str("name", out.Name).Msg("Student created")
	}
	return out, created, nil
}

// Get returns the student with the given id.
func (s *Service) Get(ctx context.Context, id string) (*store.Student, error) {
	return s.store.Student(ctx, id)
}

// List returns all students, newest first.
func (s *Service) List(ctx context.Context) ([]store.Student, error) {
	return s.store.Students(ctx)
}
