// Package questionbank loads the immutable, route-tagged question catalogue
// and classifies question text into semantic topic clusters.
package questionbank

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
)

//go:embed questions.yaml
var embeddedCatalogue []byte

// Bank is the immutable question catalogue, loaded once per process and
// never mutated afterward, so it is safe to share across sessions.
type Bank struct {
	questions []domain.Question
	byID      map[string]domain.Question
}

// Questions returns the catalogue. Callers must treat the slice as read-only.
func (b *Bank) Questions() []domain.Question { return b.questions }

// ByID resolves a bank question by ID.
func (b *Bank) ByID(id string) (domain.Question, bool) {
	q, ok := b.byID[id]
	return q, ok
}

// Len reports the catalogue size.
func (b *Bank) Len() int { return len(b.questions) }

// ForRoute returns questions whose route matches or is tagged both.
func (b *Bank) ForRoute(route domain.Route) []domain.Question {
	out := make([]domain.Question, 0, len(b.questions))
	for _, q := range b.questions {
		if q.Route == route || q.Route == domain.RouteBoth {
			out = append(out, q)
		}
	}
	return out
}

// Loader provides lazy, race-free bank initialization. Concurrent first
// callers share a single in-flight load via singleflight; subsequent callers
// read the cached immutable value.
type Loader struct {
	path string

	group  singleflight.Group
	mu     sync.RWMutex
	cached *Bank
}

// NewLoader builds a Loader. When path is empty the embedded catalogue is used.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load returns the cached bank, loading it on first use.
func (l *Loader) Load(_ context.Context) (*Bank, error) {
	l.mu.RLock()
	if b := l.cached; b != nil {
		l.mu.RUnlock()
		return b, nil
	}
	l.mu.RUnlock()

	v, err, _ := l.group.Do("bank", func() (any, error) {
		raw := embeddedCatalogue
		if l.path != "" {
			data, err := os.ReadFile(l.path)
			if err != nil {
				return nil, fmt.Errorf("op=bank.load path=%s: %w", l.path, err)
			}
			raw = data
		}
		b, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cached = b
		l.mu.Unlock()
		slog.Info("question bank loaded", slog.Int("questions", b.Len()))
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Bank), nil
}

type catalogueFile struct {
	Questions []domain.Question `yaml:"questions"`
}

// Parse decodes and validates a YAML catalogue.
func Parse(raw []byte) (*Bank, error) {
	var f catalogueFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("op=bank.parse: %w", err)
	}
	if len(f.Questions) == 0 {
		return nil, fmt.Errorf("op=bank.parse: %w: empty catalogue", domain.ErrInvalidArgument)
	}
	byID := make(map[string]domain.Question, len(f.Questions))
	for i, q := range f.Questions {
		if q.ID == "" || q.Text == "" {
			return nil, fmt.Errorf("op=bank.parse index=%d: %w: id and text required", i, domain.ErrInvalidArgument)
		}
		if _, dup := byID[q.ID]; dup {
			return nil, fmt.Errorf("op=bank.parse id=%s: %w: duplicate id", q.ID, domain.ErrConflict)
		}
		switch q.Route {
		case domain.RouteF1, domain.RouteB1B2, domain.RouteBoth:
		default:
			return nil, fmt.Errorf("op=bank.parse id=%s: %w: route %q", q.ID, domain.ErrInvalidArgument, q.Route)
		}
		switch q.Category {
		case domain.CategoryFinancial, domain.CategoryAcademic, domain.CategoryIntent, domain.CategoryPersonal, domain.CategoryPostStudy:
		default:
			return nil, fmt.Errorf("op=bank.parse id=%s: %w: category %q", q.ID, domain.ErrInvalidArgument, q.Category)
		}
		switch q.Difficulty {
		case domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard:
		default:
			return nil, fmt.Errorf("op=bank.parse id=%s: %w: difficulty %q", q.ID, domain.ErrInvalidArgument, q.Difficulty)
		}
		byID[q.ID] = q
	}
	return &Bank{questions: f.Questions, byID: byID}, nil
}
