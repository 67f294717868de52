package config

import (
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	"github.com/smallbiznis/orderlead/internal/leadsync/mapping"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type mappingFile struct {
	ExternalIDField     string                       `mapstructure:"externalIdField"`
	ProductDetailsField string                       `mapstructure:"productDetailsField"`
	Collections         map[string]map[string]string `mapstructure:"collections"`
}

// MappingHolder serves the field-mapping set currently in effect. Each
// reload swaps in a fresh immutable Set, so readers never see a partial
// update.
type MappingHolder struct {
	current atomic.Value // holds mapping.Set
	log     *zap.Logger
}

// NewMappingHolder reads mappings.yml (or MAPPINGS_FILE) and watches it for
// changes. Without a file the built-in tables are used.
func NewMappingHolder(cfg Config, log *zap.Logger) (*MappingHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	holder := &MappingHolder{log: log.Named("config.mappings")}

	v := viper.New()
	if cfg.MappingsFile != "" {
		v.SetConfigFile(cfg.MappingsFile)
	} else {
		v.SetConfigName("mappings")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/orderlead")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(mapping.Default())
		holder.log.Info("no mappings file found, using built-in tables")
		return holder, nil
	}

	set, err := decodeMappings(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(set)
	holder.log.Info("mappings loaded", zap.String("file", v.ConfigFileUsed()))

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeMappings(v)
		if err != nil {
			holder.log.Warn("invalid mappings ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		holder.log.Info("mappings reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

// Current returns the mapping set to use for one delivery.
func (h *MappingHolder) Current() mapping.Set {
	return h.current.Load().(mapping.Set)
}

// decodeMappings overlays the file on the built-in set. Omitted fields keep
// their defaults; a listed collection replaces the built-in table wholesale.
func decodeMappings(v *viper.Viper) (mapping.Set, error) {
	var raw mappingFile
	if err := v.UnmarshalKey("mappings", &raw); err != nil {
		return mapping.Set{}, err
	}

	defaults := mapping.Default()
	externalID := strings.TrimSpace(raw.ExternalIDField)
	if externalID == "" {
		externalID = defaults.ExternalIDField
	}
	productDetails := strings.TrimSpace(raw.ProductDetailsField)
	if productDetails == "" {
		productDetails = defaults.ProductDetailsField
	}

	merged := mapping.Set{
		ExternalIDField:     externalID,
		ProductDetailsField: productDetails,
		Tables:              make(map[domain.Collection]mapping.Table, len(defaults.Tables)),
	}
	for c, table := range defaults.Tables {
		merged.Tables[c] = table
	}
	if len(raw.Collections) > 0 {
		overrides, err := mapping.FromConfig(externalID, productDetails, raw.Collections)
		if err != nil {
			return mapping.Set{}, err
		}
		for c, table := range overrides.Tables {
			merged.Tables[c] = table
		}
	}
	return merged, merged.Validate()
}
