package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/game-tracker/internal/model"
)

const gameColumns = `g.id, g.title, g.slug, g.external_id, g.source, g.background_image, g.rating,
	g.release_date, g.description, g.last_synced_at, g.created_at`

// GameRepo persists catalog games. Genres live in game_genres and are
// replaced wholesale on every write.
type GameRepo struct {
	db *sql.DB
}

func NewGameRepo(db *sql.DB) *GameRepo { return &GameRepo{db: db} }

// gameRow holds the nullable scan targets for gameColumns.
type gameRow struct {
	g       model.Game
	source  string
	rating  sql.NullFloat64
	release sql.NullTime
	desc    sql.NullString
	synced  sql.NullTime
}

func (r *gameRow) dest() []any {
	return []any{&r.g.ID, &r.g.Title, &r.g.Slug, &r.g.ExternalID, &r.source, &r.g.BackgroundImage, &r.rating,
		&r.release, &r.desc, &r.synced, &r.g.CreatedAt}
}

func (r *gameRow) finish() model.Game {
	g := r.g
	g.Source = model.GameSource(r.source)
	if r.rating.Valid {
		v := r.rating.Float64
		g.Rating = &v
	}
	if r.release.Valid {
		t := r.release.Time
		g.ReleaseDate = &t
	}
	g.Description = r.desc.String
	if r.synced.Valid {
		t := r.synced.Time
		g.LastSyncedAt = &t
	}
	g.Genres = []string{}
	return g
}

func scanGame(row rowScanner) (model.Game, error) {
	var r gameRow
	if err := row.Scan(r.dest()...); err != nil {
		return model.Game{}, err
	}
	return r.finish(), nil
}

// GetByID fetches a game with its genres.
func (r *GameRepo) GetByID(ctx context.Context, id uint64) (model.Game, error) {
	g, err := scanGame(r.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games g WHERE g.id=?`, id))
	if err != nil {
		return g, err
	}
	return g, r.attachGenres(ctx, []*model.Game{&g})
}

// GetByExternal fetches the game keyed by (externalID, source).
func (r *GameRepo) GetByExternal(ctx context.Context, externalID string, source model.GameSource) (model.Game, error) {
	g, err := scanGame(r.db.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games g WHERE g.external_id=? AND g.source=?`, externalID, string(source)))
	if err != nil {
		return g, err
	}
	return g, r.attachGenres(ctx, []*model.Game{&g})
}

// Insert creates a game and its genres in one transaction. A concurrent
// insert of the same (external_id, source) returns ErrDuplicate.
func (r *GameRepo) Insert(ctx context.Context, g model.Game) (uint64, error) {
	var id uint64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO games (title, slug, external_id, source, background_image, rating, release_date, description, last_synced_at)
			 VALUES (?,?,?,?,?,?,?,?,?)`,
			g.Title, g.Slug, g.ExternalID, string(g.Source), g.BackgroundImage, g.Rating,
			g.ReleaseDate, nullString(g.Description), g.LastSyncedAt)
		if err != nil {
			return classify(err)
		}
		n, err := res.LastInsertId()
		if err != nil {
			return err
		}
		id = uint64(n)
		return replaceGenres(ctx, tx, id, g.Genres)
	})
	return id, err
}

// Update overwrites the display fields of g (matched by id) and its genres.
func (r *GameRepo) Update(ctx context.Context, g model.Game) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE games SET title=?, slug=?, background_image=?, rating=?, release_date=?, description=?, last_synced_at=?
			 WHERE id=?`,
			g.Title, g.Slug, g.BackgroundImage, g.Rating, g.ReleaseDate, nullString(g.Description), g.LastSyncedAt, g.ID)
		if err != nil {
			return classify(err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		return replaceGenres(ctx, tx, g.ID, g.Genres)
	})
}

func replaceGenres(ctx context.Context, tx execer, gameID uint64, genres []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM game_genres WHERE game_id=?`, gameID); err != nil {
		return err
	}
	seen := map[string]bool{}
	query := `INSERT INTO game_genres (game_id, genre) VALUES `
	args := make([]any, 0, len(genres)*2)
	for _, genre := range genres {
		genre = strings.TrimSpace(genre)
		if genre == "" || seen[genre] {
			continue
		}
		seen[genre] = true
		if len(args) > 0 {
			query += ","
		}
		query += "(?, ?)"
		args = append(args, gameID, genre)
	}
	if len(args) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return classify(err)
}

// Count returns the number of catalog rows.
func (r *GameRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&n)
	return n, err
}

// Search returns games whose title contains query (case-insensitive under
// the utf8mb4 collation), best rated first, and the total match count.
func (r *GameRepo) Search(ctx context.Context, query string, limit, offset int) ([]model.Game, int, error) {
	like := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games g WHERE g.title LIKE ?`, like).Scan(&total); err != nil {
		return nil, 0, err
	}
	games, err := r.list(ctx,
		`SELECT `+gameColumns+` FROM games g WHERE g.title LIKE ? ORDER BY g.rating IS NULL, g.rating DESC, g.id LIMIT ? OFFSET ?`,
		like, limit, offset)
	return games, total, err
}

// List returns one page of the catalog, best rated first.
func (r *GameRepo) List(ctx context.Context, limit, offset int) ([]model.Game, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&total); err != nil {
		return nil, 0, err
	}
	games, err := r.list(ctx,
		`SELECT `+gameColumns+` FROM games g ORDER BY g.rating IS NULL, g.rating DESC, g.id LIMIT ? OFFSET ?`,
		limit, offset)
	return games, total, err
}

func (r *GameRepo) list(ctx context.Context, q string, args ...any) ([]model.Game, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ptrs := make([]*model.Game, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	return out, r.attachGenres(ctx, ptrs)
}

func (r *GameRepo) attachGenres(ctx context.Context, games []*model.Game) error {
	if len(games) == 0 {
		return nil
	}
	byID := make(map[uint64]*model.Game, len(games))
	args := make([]any, 0, len(games))
	for _, g := range games {
		byID[g.ID] = g
		args = append(args, g.ID)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT game_id, genre FROM game_genres WHERE game_id IN (`+placeholders(len(args))+`) ORDER BY genre`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id uint64
		var genre string
		if err := rows.Scan(&id, &genre); err != nil {
			return err
		}
		if g := byID[id]; g != nil {
			g.Genres = append(g.Genres, genre)
		}
	}
	return rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
