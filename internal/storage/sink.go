package storage

import (
	"context"
	"fmt"

	appconfig "marketsim/config"
	"marketsim/logger"
	"marketsim/models"
)

// Sink writes the datasets produced by a simulation run to the configured
// backend in every enabled output format.
type Sink struct {
	backend Backend
	formats appconfig.FormatsConfig
	log     *logger.Log
}

// NewSink constructs a Sink over the configured backend.
func NewSink(cfg *appconfig.Config) (*Sink, error) {
	return NewSinkKind(cfg, Kind(cfg.Storage.Backend))
}

// NewSinkKind constructs a Sink over the named backend, used when a request
// overrides the configured default.
func NewSinkKind(cfg *appconfig.Config, kind Kind) (*Sink, error) {
	backend, err := NewKind(cfg, kind)
	if err != nil {
		return nil, err
	}
	return &Sink{
		backend: backend,
		formats: cfg.Storage.Formats,
		log:     logger.GetLogger(),
	}, nil
}

// NewSinkWithBackend wires a Sink over an existing backend, used by tests.
func NewSinkWithBackend(backend Backend, formats appconfig.FormatsConfig) *Sink {
	return &Sink{backend: backend, formats: formats, log: logger.GetLogger()}
}

// Backend exposes the underlying backend for status and cleanup operations.
func (s *Sink) Backend() Backend {
	return s.backend
}

type dataset struct {
	name   string
	encode func() ([]byte, error)
}

// WriteRun persists the index and option datasets for a run and returns the
// keys written.
func (s *Sink) WriteRun(ctx context.Context, runID string, index []models.IndexBar, options []models.OptionRecord) ([]string, error) {
	log := s.log.WithComponent("storage_sink").WithFields(logger.Fields{
		"run_id":      runID,
		"index_rows":  len(index),
		"option_rows": len(options),
	})
	log.Info("writing run datasets")

	var datasets []dataset
	if s.formats.CSV {
		datasets = append(datasets,
			dataset{fmt.Sprintf("%s_index_data.csv", runID), func() ([]byte, error) { return EncodeIndexCSV(index) }},
			dataset{fmt.Sprintf("%s_options_data.csv", runID), func() ([]byte, error) { return EncodeOptionsCSV(options) }},
		)
	}
	if s.formats.Parquet.Enabled {
		compression := s.formats.Parquet.Compression
		datasets = append(datasets,
			dataset{fmt.Sprintf("%s_index_data.parquet", runID), func() ([]byte, error) { return EncodeIndexParquet(index, compression) }},
			dataset{fmt.Sprintf("%s_options_data.parquet", runID), func() ([]byte, error) { return EncodeOptionsParquet(options, compression) }},
		)
	}

	keys := make([]string, 0, len(datasets))
	for _, ds := range datasets {
		data, err := ds.encode()
		if err != nil {
			return keys, fmt.Errorf("failed to encode %s: %w", ds.name, err)
		}
		if err := s.backend.Save(ctx, ds.name, data); err != nil {
			return keys, fmt.Errorf("failed to save %s: %w", ds.name, err)
		}
		logger.IncrementStorageWrite(int64(len(data)))
		keys = append(keys, ds.name)
	}

	log.WithFields(logger.Fields{"keys": len(keys)}).Info("run datasets written")
	return keys, nil
}
