package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/game-tracker/internal/model"
)

const instanceColumns = `gi.id, gi.user_id, gi.game_id, gi.status, gi.progress_percentage, gi.play_time,
	gi.last_played, gi.added_at, gi.notes`

// GameInstanceRepo persists per-user tracking records. (user_id, game_id)
// is unique; a second insert for the pair returns ErrDuplicate.
type GameInstanceRepo struct {
	db    *sql.DB
	games *GameRepo
}

func NewGameInstanceRepo(db *sql.DB, games *GameRepo) *GameInstanceRepo {
	return &GameInstanceRepo{db: db, games: games}
}

// instanceRow holds the nullable scan targets for instanceColumns.
type instanceRow struct {
	gi       model.GameInstance
	status   string
	progress sql.NullInt64
	play     sql.NullInt64
	last     sql.NullTime
	notes    sql.NullString
}

func (r *instanceRow) dest() []any {
	return []any{&r.gi.ID, &r.gi.UserID, &r.gi.GameID, &r.status, &r.progress, &r.play, &r.last, &r.gi.AddedAt, &r.notes}
}

func (r *instanceRow) finish() model.GameInstance {
	gi := r.gi
	gi.Status = model.GameStatus(r.status)
	if r.progress.Valid {
		v := int(r.progress.Int64)
		gi.ProgressPercentage = &v
	}
	if r.play.Valid {
		v := int(r.play.Int64)
		gi.PlayTime = &v
	}
	if r.last.Valid {
		t := r.last.Time
		gi.LastPlayed = &t
	}
	gi.Notes = r.notes.String
	return gi
}

func scanInstance(row rowScanner) (model.GameInstance, error) {
	var r instanceRow
	if err := row.Scan(r.dest()...); err != nil {
		return model.GameInstance{}, err
	}
	return r.finish(), nil
}

// Create inserts gi and returns its id. AddedAt is taken from gi.
func (r *GameInstanceRepo) Create(ctx context.Context, gi model.GameInstance) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO game_instances (user_id, game_id, status, progress_percentage, play_time, last_played, added_at, notes)
		 VALUES (?,?,?,?,?,?,?,?)`,
		gi.UserID, gi.GameID, string(gi.Status), gi.ProgressPercentage, gi.PlayTime, gi.LastPlayed, gi.AddedAt, nullString(gi.Notes))
	if err != nil {
		return 0, classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches an instance by id.
func (r *GameInstanceRepo) GetByID(ctx context.Context, id uint64) (model.GameInstance, error) {
	return scanInstance(r.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM game_instances gi WHERE gi.id=?`, id))
}

// GetByUserAndGame fetches the instance for a (user, game) pair.
func (r *GameInstanceRepo) GetByUserAndGame(ctx context.Context, userID, gameID uint64) (model.GameInstance, error) {
	return scanInstance(r.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM game_instances gi WHERE gi.user_id=? AND gi.game_id=?`, userID, gameID))
}

// Update overwrites the mutable fields of gi (matched by id).
func (r *GameInstanceRepo) Update(ctx context.Context, gi model.GameInstance) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE game_instances SET status=?, progress_percentage=?, play_time=?, last_played=?, notes=? WHERE id=?`,
		string(gi.Status), gi.ProgressPercentage, gi.PlayTime, gi.LastPlayed, nullString(gi.Notes), gi.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Delete removes an instance.
func (r *GameInstanceRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM game_instances WHERE id=?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ListByUser returns the user's instances joined with their games, most
// recently added first. A non-empty status filters the list.
func (r *GameInstanceRepo) ListByUser(ctx context.Context, userID uint64, status model.GameStatus) ([]model.GameInstanceDetail, error) {
	q := `SELECT ` + instanceColumns + `, ` + gameColumns + `
		FROM game_instances gi JOIN games g ON g.id = gi.game_id
		WHERE gi.user_id=?`
	args := []any{userID}
	if status != "" {
		q += ` AND gi.status=?`
		args = append(args, string(status))
	}
	q += ` ORDER BY gi.added_at DESC, gi.id DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.GameInstanceDetail
	for rows.Next() {
		d, err := scanInstanceDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	games := make([]*model.Game, len(out))
	for i := range out {
		games[i] = &out[i].Game
	}
	return out, r.games.attachGenres(ctx, games)
}

// scanInstanceDetail scans instanceColumns followed by gameColumns.
func scanInstanceDetail(row rowScanner) (model.GameInstanceDetail, error) {
	var ir instanceRow
	var gr gameRow
	if err := row.Scan(append(ir.dest(), gr.dest()...)...); err != nil {
		return model.GameInstanceDetail{}, err
	}
	return model.GameInstanceDetail{GameInstance: ir.finish(), Game: gr.finish()}, nil
}
