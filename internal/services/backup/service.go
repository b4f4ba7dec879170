package backup

import (
	"fmt"

	"github.com/rs/zerolog"

	"keyvault/internal/domain"
)

// Counts summarizes backup progress.
type Counts struct {
	Total    int
	BackedUp int
}

// Service tracks which inbound group sessions the current key backup covers.
// The actual upload transport is out of scope; callers feed batches through
// PendingBatch and confirm with MarkDone.
type Service struct {
	sessions domain.GroupSessionStore
	log      zerolog.Logger
}

func New(sessions domain.GroupSessionStore, logger zerolog.Logger) *Service {
	return &Service{
		sessions: sessions,
		log:      logger.With().Str("component", "backup").Logger(),
	}
}

// PendingBatch returns up to limit sessions not yet covered by the current
// backup, oldest first so repeated calls make progress.
func (s *Service) PendingBatch(limit int) ([]domain.InboundGroupSession, error) {
	return s.sessions.ToBackup(limit)
}

// MarkDone confirms that the given sessions reached the backup.
func (s *Service) MarkDone(keys []domain.SessionKeyRef) error {
	if len(keys) == 0 {
		return nil
	}
	return s.sessions.MarkBackedUp(keys)
}

// SyncVersion reconciles the local marker state with the server's backup
// version. A changed version invalidates every marker: nothing uploaded to
// the old backup counts toward the new one.
func (s *Service) SyncVersion(version string) error {
	current, err := s.sessions.BackupVersion()
	if err != nil {
		return fmt.Errorf("load backup version: %w", err)
	}
	if current == version {
		return nil
	}

	if err := s.sessions.ResetBackupMarkers(); err != nil {
		return fmt.Errorf("reset backup markers: %w", err)
	}
	if err := s.sessions.SetBackupVersion(version); err != nil {
		return fmt.Errorf("record backup version: %w", err)
	}
	s.log.Info().Str("old", current).Str("new", version).Msg("Backup version rotated")
	return nil
}

// Progress reports how many sessions exist and how many are backed up.
func (s *Service) Progress() (Counts, error) {
	total, err := s.sessions.CountInbound(false)
	if err != nil {
		return Counts{}, err
	}
	done, err := s.sessions.CountInbound(true)
	if err != nil {
		return Counts{}, err
	}
	return Counts{Total: total, BackedUp: done}, nil
}
