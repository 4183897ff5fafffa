// Package handlers implements the tagctl commands on top of the services.
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tag_manager/config"
	"tag_manager/database"
	"tag_manager/models"
	"tag_manager/repository"
	"tag_manager/services"
	"tag_manager/slug"
)

// App wires the repositories and services for one database.
type App struct {
	cfg      *config.Config
	log      zerolog.Logger
	db       *gorm.DB
	opts     services.Options
	tags     *repository.TagRepository
	generic  *repository.Through
	links    *repository.Through
	registry *repository.Registry
}

func NewApp(cfg *config.Config, db *gorm.DB, log zerolog.Logger) (*App, error) {
	opts, err := services.OptionsFromConfig(cfg.Tagging)
	if err != nil {
		return nil, err
	}
	tags := repository.NewTagRepository(db, models.DefaultTagTable,
		slug.Options{Transliterate: cfg.Tagging.Transliterate}, log)
	generic := repository.NewGeneric(db, models.GenericThroughTable, tags)
	links := repository.NewDirect(db, "link_tags", "link_id", models.LinkRecordType, tags)

	return &App{
		cfg:      cfg,
		log:      log,
		db:       db,
		opts:     opts,
		tags:     tags,
		generic:  generic,
		links:    links,
		registry: repository.NewRegistry(generic, links),
	}, nil
}

func (a *App) Links() *services.LinkService {
	return services.NewLinkService(a.db, a.log)
}

func (a *App) Merges() *services.MergeService {
	return services.NewMergeService(a.registry, a.opts, a.log)
}

func (a *App) Orphans() *services.OrphanService {
	return services.NewOrphanService(a.registry, a.log)
}

func (a *App) Suggestions() *services.SuggestService {
	return services.NewSuggestService(a.tags, a.log)
}

// Manager returns the tag manager for recordType and the reference of the
// record called id. Links are addressed by short code and use link_tags,
// expired or not; every other type goes through the generic table.
func (a *App) Manager(ctx context.Context, recordType, id string) (*services.TagManager, models.RecordRef, error) {
	if recordType != models.LinkRecordType {
		return a.manager(a.generic), models.RecordRef{Type: recordType, ID: id}, nil
	}
	var link models.Link
	err := a.db.WithContext(ctx).Where("short_code = ?", id).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.RecordRef{}, fmt.Errorf("link %q: %w", id, services.ErrLinkNotFound)
	}
	if err != nil {
		return nil, models.RecordRef{}, fmt.Errorf("link %q: %w", id, err)
	}
	return a.manager(a.links), link.Ref(), nil
}

// Through returns the registered association table called name.
func (a *App) Through(name string) (repository.Associations, error) {
	if name == "" {
		return a.generic, nil
	}
	through, ok := a.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown association table %q", name)
	}
	return through, nil
}

func (a *App) manager(through repository.Associations) *services.TagManager {
	return services.NewTagManager(through, a.opts, changeLogger(a.log), a.log)
}

// changeLogger records completed tag changes at info level.
func changeLogger(log zerolog.Logger) services.Observer {
	return services.ObserverFunc(func(_ context.Context, c services.Change) error {
		switch c.Action {
		case services.PostAdd, services.PostRemove, services.PostClear:
			log.Info().
				Str("change", c.ID.String()).
				Str("action", string(c.Action)).
				Stringer("record", c.Record).
				Int("tags", len(c.TagIDs)).
				Msg("tags updated")
		}
		return nil
	})
}

// Ping checks the connection.
func (a *App) Ping() error {
	return database.Ping(a.db)
}

// Migrate brings the schema up to date: SQL migrations for postgres, gorm
// AutoMigrate for sqlite.
func (a *App) Migrate(steps int) error {
	if a.cfg.Database.Driver == "postgres" {
		return database.Migrate(a.cfg.Database.MigrateURL(), steps, a.log)
	}
	return database.AutoMigrate(a.db)
}
