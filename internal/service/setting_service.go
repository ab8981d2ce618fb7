package service

import (
	"context"
	"errors"

	"github.com/navid-fn/tradedesk/internal/models"
	"github.com/navid-fn/tradedesk/internal/pipeline"
	"github.com/navid-fn/tradedesk/internal/storage"
)

// SettingService reads and edits the per-collection option documents.
type SettingService struct {
	settings storage.Collection
}

func NewSettingService(p storage.Provider) (*SettingService, error) {
	settings, err := p.Collection(storage.Settings)
	if err != nil {
		return nil, err
	}
	return &SettingService{settings: settings}, nil
}

func byCollection(name string) pipeline.Stage {
	return pipeline.Match(pipeline.Eq(pipeline.Field("collection_name"), name))
}

func (s *SettingService) get(ctx context.Context, collection string) (*models.Setting, error) {
	doc, err := s.settings.Get(ctx, byCollection(collection))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, notFound(s.settings.Name(), collection)
	}
	return decode[models.Setting](doc)
}

// FieldsOf returns every option of the collection's settings document.
func (s *SettingService) FieldsOf(ctx context.Context, collection string) (map[string]any, error) {
	setting, err := s.get(ctx, collection)
	if err != nil {
		return nil, err
	}
	return setting.Fields, nil
}

// Field returns the single option named field, keyed by its name.
func (s *SettingService) Field(ctx context.Context, collection, field string) (map[string]any, error) {
	fields, err := s.FieldsOf(ctx, collection)
	if err != nil {
		return nil, err
	}
	v, ok := fields[field]
	if !ok {
		return nil, notFound(s.settings.Name(), collection+"."+field)
	}
	return map[string]any{field: v}, nil
}

// Seed creates the settings document unless one already exists for the
// collection. It reports whether it created one.
func (s *SettingService) Seed(ctx context.Context, collection string, fields map[string]any) (bool, error) {
	_, err := s.settings.Create(ctx, storage.Document{"collection_name": collection, "fields": fields})
	if errors.Is(err, storage.ErrDuplicate) {
		return false, nil
	}
	return err == nil, err
}

// AddCommunicationWay appends a first contact channel to the member options.
func (s *SettingService) AddCommunicationWay(ctx context.Context, way string) (*models.Setting, error) {
	if way == "" {
		return nil, invalid("communication way is required")
	}
	doc, err := s.settings.Update(ctx,
		storage.Where(storage.Document{"collection_name": SettingsMembers}),
		storage.Document{"fields.communication_ways": way},
		storage.OpPush,
	)
	if err != nil {
		return nil, err
	}
	return decode[models.Setting](doc)
}

// SetStageFee stores the stage fee charged for trades on accounts of kind.
func (s *SettingService) SetStageFee(ctx context.Context, kind string, fee int64) (*models.Setting, error) {
	if kind == "" {
		return nil, invalid("kind is required")
	}
	doc, err := s.settings.Update(ctx,
		storage.Where(storage.Document{"collection_name": SettingsTrades}),
		storage.Document{"fields." + StageFeeKey(kind): fee},
		storage.OpSet,
	)
	if err != nil {
		return nil, err
	}
	return decode[models.Setting](doc)
}
