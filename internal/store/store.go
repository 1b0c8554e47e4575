package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/crosticlab/crostic-battle-backend/internal/puzzle"
)

// Store is the Postgres layer: the puzzle read model the battle subsystem
// fetches once per session, and per-user solo progress.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&puzzleRow{}, &clueRow{}, &mappingRow{}, &progressRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

type puzzleRow struct {
	ID    string `gorm:"primaryKey"`
	Title string
	Quote string
}

func (puzzleRow) TableName() string { return "puzzles" }

type clueRow struct {
	PuzzleID  string `gorm:"primaryKey"`
	ClueID    int    `gorm:"primaryKey"`
	ClueOrder int
	ClueText  string
	Answer    string
}

func (clueRow) TableName() string { return "clues" }

type mappingRow struct {
	PuzzleID       string `gorm:"primaryKey"`
	ClueID         int    `gorm:"primaryKey"`
	LetterPosition int    `gorm:"primaryKey"`
	GridPosition   int
}

func (mappingRow) TableName() string { return "mappings" }

// Puzzle implements puzzle.Accessor.
func (s *Store) Puzzle(ctx context.Context, id string) (*puzzle.Puzzle, error) {
	var row puzzleRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("puzzle %s: %w", id, puzzle.ErrNotFound)
		}
		return nil, fmt.Errorf("load puzzle %s: %w", id, err)
	}

	var clues []clueRow
	if err := s.db.WithContext(ctx).Where("puzzle_id = ?", id).Order("clue_order").Find(&clues).Error; err != nil {
		return nil, fmt.Errorf("load clues for %s: %w", id, err)
	}
	var mappings []mappingRow
	if err := s.db.WithContext(ctx).Where("puzzle_id = ?", id).Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("load mappings for %s: %w", id, err)
	}

	pz := &puzzle.Puzzle{
		ID:    row.ID,
		Title: row.Title,
		Quote: row.Quote,
	}
	for _, c := range clues {
		pz.Clues = append(pz.Clues, puzzle.Clue{
			ClueID:    c.ClueID,
			ClueOrder: c.ClueOrder,
			ClueText:  c.ClueText,
			Answer:    c.Answer,
		})
	}
	for _, m := range mappings {
		pz.Mappings = append(pz.Mappings, puzzle.Mapping{
			ClueID:         m.ClueID,
			LetterPosition: m.LetterPosition,
			GridPosition:   m.GridPosition,
		})
	}
	return pz, nil
}

type progressRow struct {
	UserID       string `gorm:"primaryKey"`
	PuzzleID     string `gorm:"primaryKey"`
	CurrentState string // JSON object, answer keys in canonical "clueId_pos" form
	TimeSpent    int
	Completed    bool
}

func (progressRow) TableName() string { return "game_progress" }

// Progress is one user's solo-mode state on one puzzle. Unrelated to battle
// sessions; they share no state.
type Progress struct {
	CurrentState map[string]string `json:"current_state"`
	TimeSpent    int               `json:"time_spent"`
	Completed    bool              `json:"completed"`
}

// Progress returns the user's saved state, or an empty one if none exists.
func (s *Store) Progress(ctx context.Context, userID, puzzleID string) (*Progress, error) {
	var row progressRow
	err := s.db.WithContext(ctx).First(&row, "user_id = ? AND puzzle_id = ?", userID, puzzleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Progress{CurrentState: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	state := map[string]string{}
	if row.CurrentState != "" {
		if err := json.Unmarshal([]byte(row.CurrentState), &state); err != nil {
			// A corrupt blob loses the saved answers but not the row.
			s.log.Warn("corrupt progress state, resetting",
				zap.String("user_id", userID), zap.String("puzzle_id", puzzleID))
			state = map[string]string{}
		}
	}
	return &Progress{CurrentState: state, TimeSpent: row.TimeSpent, Completed: row.Completed}, nil
}

// SaveProgress upserts the user's solo state. Keys are canonicalized before
// storage so both historical separator forms read back identically.
func (s *Store) SaveProgress(ctx context.Context, userID, puzzleID string, p *Progress) error {
	canonical := make(map[string]string, len(p.CurrentState))
	for raw, letter := range p.CurrentState {
		k, err := puzzle.ParseKey(raw)
		if err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
		canonical[k.String()] = letter
	}
	blob, err := json.Marshal(canonical)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	row := progressRow{
		UserID:       userID,
		PuzzleID:     puzzleID,
		CurrentState: string(blob),
		TimeSpent:    p.TimeSpent,
		Completed:    p.Completed,
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}
