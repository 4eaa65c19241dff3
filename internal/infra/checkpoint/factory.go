package checkpoint

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/freetime/internal/infra/config"
)

// FileSettings configures a FileStore.
type FileSettings struct {
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
}

// SQLiteSettings configures a SQLiteStore.
type SQLiteSettings struct {
	Path  string `yaml:"path" mapstructure:"path" validate:"required"`
	Table string `yaml:"table" mapstructure:"table" default:"checkpoints" validate:"required"`
}

// NewFromConfig creates the store selected by the configuration.
func NewFromConfig(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	zlog.Debug().Msgf("creating checkpoint store: type=%s settings=%+v", cfg.Type, cfg.Settings)

	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil

	case "file":
		var settings FileSettings
		if err := decodeSettings(cfg.Settings, &settings); err != nil {
			return nil, errors.Wrap(err, "invalid file store settings")
		}
		zlog.Info().Msgf("checkpoint store: type=file path=%s", settings.Path)
		store, err := NewFileStore(settings.Path)
		if err != nil {
			return nil, err
		}
		return store, nil

	case "sqlite":
		var settings SQLiteSettings
		if err := decodeSettings(cfg.Settings, &settings); err != nil {
			return nil, errors.Wrap(err, "invalid sqlite store settings")
		}
		zlog.Info().Msgf("checkpoint store: type=sqlite path=%s table=%s", settings.Path, settings.Table)
		store, err := NewSQLiteStore(ctx, settings.Path, settings.Table)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, errors.Newf("unsupported store type: %s", cfg.Type)
	}
}

// decodeSettings decodes a free-form settings map into out, applies
// defaults and validates the result.
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
