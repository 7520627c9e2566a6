package storage

import (
	"database/sql"
	"fmt"
	"time"

	"ewintr.nl/vidfeed/model"
	_ "github.com/lib/pq"
)

type PostgresInfo struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

type Postgres struct {
	db *sql.DB
}

func NewPostgres(pgInfo PostgresInfo) (*Postgres, error) {
	db, err := sql.Open("postgres", fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		pgInfo.Host, pgInfo.Port, pgInfo.User, pgInfo.Password, pgInfo.Database))
	if err != nil {
		return &Postgres{}, err
	}
	if err := db.Ping(); err != nil {
		return &Postgres{}, err
	}

	p := &Postgres{db: db}
	if err := p.migrate(pgMigration); err != nil {
		return &Postgres{}, err
	}

	return p, nil
}

func (p *Postgres) migrate(wanted []string) error {
	query := `CREATE TABLE IF NOT EXISTS migration
("id" SERIAL PRIMARY KEY, "query" TEXT)`
	_, err := p.db.Exec(query)
	if err != nil {
		return err
	}

	// find existing
	rows, err := p.db.Query(`SELECT query FROM migration ORDER BY id`)
	if err != nil {
		return err
	}

	existing := []string{}
	for rows.Next() {
		var query string
		if err := rows.Scan(&query); err != nil {
			return err
		}
		existing = append(existing, query)
	}
	rows.Close()

	// compare
	missing, err := compareMigrations(wanted, existing)
	if err != nil {
		return err
	}

	// execute missing
	for _, query := range missing {
		if _, err := p.db.Exec(query); err != nil {
			return err
		}

		// register
		if _, err := p.db.Exec(`
INSERT INTO migration
(query) VALUES ($1)
`, query); err != nil {
			return err
		}
	}

	return nil
}

func compareMigrations(wanted, existing []string) ([]string, error) {
	needed := []string{}
	if len(wanted) < len(existing) {
		return []string{}, fmt.Errorf("not enough migrations")
	}

	for i, want := range wanted {
		switch {
		case i >= len(existing):
			needed = append(needed, want)
		case want == existing[i]:
			// do nothing
		case want != existing[i]:
			return []string{}, fmt.Errorf("incompatible migration: %v", want)
		}
	}

	return needed, nil
}

const videoColumns = `id, video_id, platform, type, title, description, duration, display_name, username, channel_id, date, is_currently_live, unread, sponsorblock_status, url`

type PostgresVideoRepository struct {
	db *sql.DB
}

func NewPostgresVideoRepository(postgres *Postgres) *PostgresVideoRepository {
	return &PostgresVideoRepository{db: postgres.db}
}

func (p *PostgresVideoRepository) Create(video *model.Video) error {
	var duration sql.NullInt64
	if video.Duration != nil {
		duration = sql.NullInt64{Int64: int64(*video.Duration), Valid: true}
	}
	var sbStatus sql.NullString
	if video.SponsorBlockStatus != nil {
		sbStatus = sql.NullString{String: string(*video.SponsorBlockStatus), Valid: true}
	}
	_, err := p.db.Exec(`INSERT INTO video (`+videoColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		video.ID, video.VideoID, video.Platform, video.Type, video.Title, video.Description,
		duration, video.DisplayName, video.Username, video.ChannelID, video.Date,
		video.IsCurrentlyLive, video.Unread, sbStatus, video.URL)
	if err != nil {
		return fmt.Errorf("create video: %w", err)
	}

	return nil
}

func (p *PostgresVideoRepository) FindByChannel(channelID string) ([]*model.Video, error) {
	rows, err := p.db.Query(`SELECT `+videoColumns+` FROM video WHERE channel_id = $1`, channelID)
	if err != nil {
		return nil, fmt.Errorf("find videos by channel: %w", err)
	}
	defer rows.Close()

	return scanVideos(rows)
}

func (p *PostgresVideoRepository) FindRecentOrUnread(platform model.Platform, cutoff time.Time) ([]*model.Video, error) {
	rows, err := p.db.Query(`SELECT `+videoColumns+` FROM video
WHERE platform = $1 AND (date > $2 OR unread = TRUE)`, platform, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find recent or unread videos: %w", err)
	}
	defer rows.Close()

	return scanVideos(rows)
}

func (p *PostgresVideoRepository) FindUnread() ([]*model.Video, error) {
	rows, err := p.db.Query(`SELECT ` + videoColumns + ` FROM video WHERE unread = TRUE ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("find unread videos: %w", err)
	}
	defer rows.Close()

	return scanVideos(rows)
}

func (p *PostgresVideoRepository) MarkRead(videoID string) error {
	res, err := p.db.Exec(`UPDATE video SET unread = FALSE WHERE video_id = $1`, videoID)
	if err != nil {
		return fmt.Errorf("mark video read: %w", err)
	}

	return checkAffected(res)
}

func (p *PostgresVideoRepository) DistinctChannels(platform model.Platform) ([]string, error) {
	return p.distinctChannels(`SELECT DISTINCT channel_id FROM video WHERE platform = $1`, platform)
}

func (p *PostgresVideoRepository) DistinctShortsChannels(platform model.Platform) ([]string, error) {
	return p.distinctChannels(`SELECT DISTINCT channel_id FROM video WHERE platform = $1 AND type = 'short'`, platform)
}

func (p *PostgresVideoRepository) distinctChannels(query string, platform model.Platform) ([]string, error) {
	rows, err := p.db.Query(query, platform)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	channelIDs := []string{}
	for rows.Next() {
		var channelID string
		if err := rows.Scan(&channelID); err != nil {
			return nil, fmt.Errorf("list channels: %w", err)
		}
		channelIDs = append(channelIDs, channelID)
	}

	return channelIDs, rows.Err()
}

func (p *PostgresVideoRepository) DeleteByChannel(platform model.Platform, channelID string) error {
	if _, err := p.db.Exec(`DELETE FROM video WHERE platform = $1 AND channel_id = $2`, platform, channelID); err != nil {
		return fmt.Errorf("delete channel videos: %w", err)
	}

	return nil
}

func (p *PostgresVideoRepository) DeleteShortsByChannel(platform model.Platform, channelID string) error {
	if _, err := p.db.Exec(`DELETE FROM video WHERE platform = $1 AND channel_id = $2 AND type = 'short'`, platform, channelID); err != nil {
		return fmt.Errorf("delete channel shorts: %w", err)
	}

	return nil
}

func (p *PostgresVideoRepository) SetSponsorBlock(videoID string, status *model.SponsorBlockStatus) error {
	var sbStatus sql.NullString
	if status != nil {
		sbStatus = sql.NullString{String: string(*status), Valid: true}
	}
	res, err := p.db.Exec(`UPDATE video SET sponsorblock_status = $1 WHERE video_id = $2`, sbStatus, videoID)
	if err != nil {
		return fmt.Errorf("set sponsorblock status: %w", err)
	}

	return checkAffected(res)
}

func (p *PostgresVideoRepository) InTransaction(fn func(tx VideoWriter) error) error {
	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&pgVideoWriter{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback transaction: %v: %w", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

type pgVideoWriter struct {
	tx *sql.Tx
}

func (w *pgVideoWriter) ResolveLive(videoID, title string, duration int) error {
	res, err := w.tx.Exec(`UPDATE video SET title = $1, duration = $2, is_currently_live = FALSE
WHERE video_id = $3`, title, duration, videoID)
	if err != nil {
		return fmt.Errorf("resolve live video: %w", err)
	}

	return checkAffected(res)
}

func (w *pgVideoWriter) UpdateMeta(videoID, title string, duration *int) error {
	var res sql.Result
	var err error
	if duration != nil {
		res, err = w.tx.Exec(`UPDATE video SET title = $1, duration = $2 WHERE video_id = $3`, title, *duration, videoID)
	} else {
		res, err = w.tx.Exec(`UPDATE video SET title = $1 WHERE video_id = $2`, title, videoID)
	}
	if err != nil {
		return fmt.Errorf("update video meta: %w", err)
	}

	return checkAffected(res)
}

func (w *pgVideoWriter) Delete(videoID string) error {
	res, err := w.tx.Exec(`DELETE FROM video WHERE video_id = $1`, videoID)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}

	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func scanVideos(rows *sql.Rows) ([]*model.Video, error) {
	videos := []*model.Video{}
	for rows.Next() {
		var v model.Video
		var duration sql.NullInt64
		var sbStatus sql.NullString
		if err := rows.Scan(&v.ID, &v.VideoID, &v.Platform, &v.Type, &v.Title, &v.Description,
			&duration, &v.DisplayName, &v.Username, &v.ChannelID, &v.Date,
			&v.IsCurrentlyLive, &v.Unread, &sbStatus, &v.URL); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		if duration.Valid {
			d := int(duration.Int64)
			v.Duration = &d
		}
		if sbStatus.Valid {
			s := model.SponsorBlockStatus(sbStatus.String)
			v.SponsorBlockStatus = &s
		}
		videos = append(videos, &v)
	}

	return videos, rows.Err()
}
