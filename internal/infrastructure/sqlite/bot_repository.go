package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"botweave/internal/domain"
)

// botColumns is the canonical column list for bot queries. Keep in sync
// with scanBot.
const botColumns = `id, name, protocol, config, owner_id, enabled, is_running, created_at, updated_at`

// botRepository implements domain.BotRepository backed by SQLite.
type botRepository struct {
	db *sql.DB
}

func newBotRepository(db *sql.DB) *botRepository {
	return &botRepository{db: db}
}

var _ domain.BotRepository = (*botRepository)(nil)

// scanBot scans a database row into a domain.Bot. The config column holds
// a JSON document that is decoded into the Config map.
func scanBot(scanner interface{ Scan(...any) error }) (*domain.Bot, error) {
	var (
		bot        domain.Bot
		configJSON string
		createdAt  int64
		updatedAt  int64
	)
	err := scanner.Scan(
		&bot.ID, &bot.Name, &bot.Protocol, &configJSON, &bot.OwnerID,
		&bot.Enabled, &bot.IsRunning, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	bot.CreatedAt = time.Unix(createdAt, 0)
	bot.UpdatedAt = time.Unix(updatedAt, 0)
	if err := json.Unmarshal([]byte(configJSON), &bot.Config); err != nil {
		return nil, fmt.Errorf("failed to decode bot config: %w", err)
	}
	return &bot, nil
}

// encodeConfig marshals a config map for storage. A nil map is stored as
// an empty JSON object so scans always decode cleanly.
func encodeConfig(config map[string]any) (string, error) {
	if config == nil {
		return "{}", nil
	}
	data, err := json.Marshal(config)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Save persists a bot. New bots (ID == 0) are inserted and have their ID
// set; existing bots are updated in place.
func (r *botRepository) Save(bot *domain.Bot) error {
	configJSON, err := encodeConfig(bot.Config)
	if err != nil {
		return fmt.Errorf("failed to encode bot config: %w", err)
	}

	now := time.Now()
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = now
	}
	bot.UpdatedAt = now

	if bot.ID == 0 {
		result, err := r.db.Exec(
			`INSERT INTO bots (name, protocol, config, owner_id, enabled, is_running, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			bot.Name, string(bot.Protocol), configJSON, bot.OwnerID,
			bot.Enabled, bot.IsRunning, bot.CreatedAt.Unix(), bot.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert bot: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get inserted bot id: %w", err)
		}
		bot.ID = id
		return nil
	}

	result, err := r.db.Exec(
		`UPDATE bots SET name = ?, protocol = ?, config = ?, owner_id = ?, enabled = ?, is_running = ?, updated_at = ?
		 WHERE id = ?`,
		bot.Name, string(bot.Protocol), configJSON, bot.OwnerID,
		bot.Enabled, bot.IsRunning, bot.UpdatedAt.Unix(), bot.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bot: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &domain.BotNotFoundError{ID: bot.ID}
	}
	return nil
}

// FindByID retrieves a bot by its database ID.
func (r *botRepository) FindByID(id int64) (*domain.Bot, error) {
	row := r.db.QueryRow(`SELECT `+botColumns+` FROM bots WHERE id = ?`, id)
	bot, err := scanBot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.BotNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find bot by id: %w", err)
	}
	return bot, nil
}

// FindByAppID retrieves the enabled bot of the given protocol whose config
// app_id matches. App ids live inside the config document rather than in
// their own column, so the candidates are decoded and matched in Go.
func (r *botRepository) FindByAppID(protocol domain.Protocol, appID string) (*domain.Bot, error) {
	enabled := true
	bots, err := r.List(domain.BotFilter{Protocol: protocol, Enabled: &enabled})
	if err != nil {
		return nil, err
	}
	for _, bot := range bots {
		if bot.AppID() == appID {
			return bot, nil
		}
	}
	return nil, &domain.BotNotFoundError{AppID: appID}
}

// List retrieves bots matching the given filter criteria, ordered by ID
// ascending.
func (r *botRepository) List(filter domain.BotFilter) ([]*domain.Bot, error) {
	query := `SELECT ` + botColumns + ` FROM bots WHERE 1 = 1`
	var args []any

	if filter.Protocol != "" {
		query += ` AND protocol = ?`
		args = append(args, string(filter.Protocol))
	}
	if filter.Enabled != nil {
		query += ` AND enabled = ?`
		args = append(args, *filter.Enabled)
	}
	if filter.Running != nil {
		query += ` AND is_running = ?`
		args = append(args, *filter.Running)
	}
	if filter.OwnerID != nil {
		query += ` AND owner_id = ?`
		args = append(args, *filter.OwnerID)
	}

	query += ` ORDER BY id ASC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bots []*domain.Bot
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bot row: %w", err)
		}
		bots = append(bots, bot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bot rows: %w", err)
	}
	return bots, nil
}

// SetRunning updates only the running flag of a bot.
func (r *botRepository) SetRunning(id int64, running bool) error {
	result, err := r.db.Exec(
		`UPDATE bots SET is_running = ?, updated_at = ? WHERE id = ?`,
		running, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update bot running flag: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &domain.BotNotFoundError{ID: id}
	}
	return nil
}

// Delete permanently removes a bot.
func (r *botRepository) Delete(id int64) error {
	result, err := r.db.Exec(`DELETE FROM bots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete bot: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &domain.BotNotFoundError{ID: id}
	}
	return nil
}
