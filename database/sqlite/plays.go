package sqlite

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/erikbos/tvloop/database/model"
)

// GetPlays returns a copy of all play records.
func (s *SqliteRepo) GetPlays(ctx context.Context) (map[string]model.PlayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plays := make(map[string]model.PlayRecord, len(s.plays))
	for id, rec := range s.plays {
		plays[id] = rec
	}
	return plays, nil
}

// BumpPlay increments the play counter of videoID and sets its last play time to at.
func (s *SqliteRepo) BumpPlay(ctx context.Context, videoID string, at time.Time) (model.PlayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.plays[videoID]
	rec.Plays++
	ts := at.UTC()
	rec.LastPlayed = &ts
	s.plays[videoID] = rec
	s.dirty[videoID] = true
	return rec, nil
}

type playRow struct {
	VideoID    string       `db:"videoid"`
	Plays      int          `db:"plays"`
	LastPlayed sql.NullTime `db:"lastplayed"`
}

// loadPlaysFromDB loads the plays table into memory.
func (s *SqliteRepo) loadPlaysFromDB() error {
	if s.dbReadHandle == nil {
		return model.ErrNoDbHandle
	}

	var rows []playRow
	if err := s.dbReadHandle.Select(&rows, "SELECT videoid, plays, lastplayed FROM plays"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		rec := model.PlayRecord{Plays: r.Plays}
		if r.LastPlayed.Valid {
			ts := r.LastPlayed.Time.UTC()
			rec.LastPlayed = &ts
		}
		s.plays[r.VideoID] = rec
	}
	return nil
}

// writePlaysToDB writes all changed play counters to the database.
func (s *SqliteRepo) writePlaysToDB() error {
	if s.dbWriteHandle == nil {
		return model.ErrNoDbHandle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.dirty) == 0 {
		return nil
	}

	tx, err := s.dbWriteHandle.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for videoID := range s.dirty {
		rec := s.plays[videoID]
		var lastPlayed any
		if rec.LastPlayed != nil {
			lastPlayed = rec.LastPlayed.UTC()
		}
		_, err := tx.NamedExec(`INSERT OR REPLACE INTO plays (videoid, plays, lastplayed)
                VALUES (:videoid, :plays, :lastplayed)`,
			map[string]any{
				"videoid":    videoID,
				"plays":      rec.Plays,
				"lastplayed": lastPlayed,
			})
		if err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.dirty = make(map[string]bool)
	s.playsSyncTime = time.Now().UTC()
	return nil
}

// playsBackgroundJob writes changed play counters to the database every interval until ctx is done.
func (s *SqliteRepo) playsBackgroundJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writePlaysToDB(); err != nil {
				s.logger.Error("error writing play counters to db", zap.Error(err))
			}
		}
	}
}
