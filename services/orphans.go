package services

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tag_manager/models"
	"tag_manager/repository"
)

// OrphanService finds tags that no registered association table references.
type OrphanService struct {
	registry *repository.Registry
	log      zerolog.Logger
}

func NewOrphanService(registry *repository.Registry, log zerolog.Logger) *OrphanService {
	return &OrphanService{registry: registry, log: log}
}

// Find returns orphaned tags per tag table.
func (s *OrphanService) Find(ctx context.Context) (map[string][]models.Tag, error) {
	out := make(map[string][]models.Tag)
	for _, table := range s.registry.TagTables() {
		tags := s.registry.ForTagTable(table)[0].Tags()
		orphans, err := tags.Orphans(ctx, s.registry.Usages(table))
		if err != nil {
			return nil, err
		}
		if len(orphans) > 0 {
			out[table] = orphans
		}
	}
	return out, nil
}

// Remove deletes orphaned tags and returns how many were deleted. Each tag
// table is cleaned in its own transaction.
func (s *OrphanService) Remove(ctx context.Context) (int64, error) {
	var total int64
	for _, table := range s.registry.TagTables() {
		through := s.registry.ForTagTable(table)[0]
		err := through.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			tags := through.Tags().WithDB(tx)
			orphans, err := tags.Orphans(ctx, s.registry.Usages(table))
			if err != nil {
				return err
			}
			ids := make([]uint, len(orphans))
			for i, t := range orphans {
				ids[i] = t.ID
			}
			n, err := tags.DeleteUnused(ctx, ids, s.registry.Usages(table))
			if err != nil {
				return err
			}
			total += n
			if n > 0 {
				s.log.Info().Str("table", table).Int64("deleted", n).Msg("removed orphaned tags")
			}
			return nil
		})
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
