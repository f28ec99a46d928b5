// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/platerecon/pkg/validation"
	"github.com/AleutianAI/platerecon/services/recon/rotfile"
)

// Key layout:
//
//	meta/<name>          -> ModelInfo JSON
//	model/<name>/<seq>   -> rotfile.Sample JSON, seq zero padded
const (
	metaPrefix  = "meta/"
	modelPrefix = "model/"
)

var (
	// ErrModelNotFound is returned when no model is stored under a name.
	ErrModelNotFound = errors.New("model not found")

	// ErrInvalidModelName is returned for names rejected by
	// validation.ValidateModelName.
	ErrInvalidModelName = validation.ErrInvalidModelName
)

// ModelInfo describes a stored model.
type ModelInfo struct {
	Name        string    `json:"name"`
	Source      string    `json:"source"`
	SampleCount int       `json:"sample_count"`
	ImportID    string    `json:"import_id"`
	ImportedAt  time.Time `json:"imported_at"`
}

// PoleStore stores rotation models by name.
//
// Thread Safety: Safe for concurrent use.
type PoleStore struct {
	db *DB
}

// NewPoleStore wraps an open database.
func NewPoleStore(db *DB) *PoleStore {
	return &PoleStore{db: db}
}

func validateName(name string) error {
	return validation.ValidateModelName(name)
}

func metaKey(name string) []byte {
	return []byte(metaPrefix + name)
}

func samplesPrefix(name string) []byte {
	return []byte(modelPrefix + name + "/")
}

func sampleKey(name string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s/%08d", modelPrefix, name, seq))
}

// SaveModel stores model under name, replacing any previous model with
// that name. The replacement is a single transaction.
//
// Outputs:
//
//	ModelInfo - The stored metadata, with a fresh import id.
//	error - ErrInvalidModelName, or a storage error.
func (s *PoleStore) SaveModel(ctx context.Context, name string, model *rotfile.Model) (ModelInfo, error) {
	if err := validateName(name); err != nil {
		return ModelInfo{}, err
	}

	info := ModelInfo{
		Name:        name,
		Source:      model.Source(),
		SampleCount: model.SampleCount(),
		ImportID:    uuid.NewString(),
		ImportedAt:  time.Now().UTC(),
	}

	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := deletePrefix(txn, samplesPrefix(name)); err != nil {
			return err
		}
		for i, sample := range model.Samples() {
			data, err := json.Marshal(sample)
			if err != nil {
				return fmt.Errorf("encode sample %d: %w", i, err)
			}
			if err := txn.Set(sampleKey(name, i), data); err != nil {
				return fmt.Errorf("write sample %d: %w", i, err)
			}
		}
		data, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("encode model info: %w", err)
		}
		return txn.Set(metaKey(name), data)
	})
	if err != nil {
		return ModelInfo{}, fmt.Errorf("save model %s: %w", name, err)
	}
	return info, nil
}

// LoadModel reads the model stored under name.
func (s *PoleStore) LoadModel(ctx context.Context, name string) (*rotfile.Model, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	var info ModelInfo
	var samples []rotfile.Sample
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, metaKey(name), &info); err != nil {
			return err
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := samplesPrefix(name)
		samples = make([]rotfile.Sample, 0, info.SampleCount)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var sample rotfile.Sample
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sample)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			samples = append(samples, sample)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", name, err)
	}
	return rotfile.NewModel(info.Source, samples), nil
}

// Info returns the metadata of a stored model.
func (s *PoleStore) Info(ctx context.Context, name string) (ModelInfo, error) {
	if err := validateName(name); err != nil {
		return ModelInfo{}, err
	}
	var info ModelInfo
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, metaKey(name), &info)
	})
	if err != nil {
		return ModelInfo{}, fmt.Errorf("model info %s: %w", name, err)
	}
	return info, nil
}

// ListModels returns the metadata of every stored model, sorted by name.
func (s *PoleStore) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var infos []ModelInfo
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(metaPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var info ModelInfo
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &info)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			infos = append(infos, info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	slices.SortFunc(infos, func(a, b ModelInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return infos, nil
}

// DeleteModel removes a stored model.
func (s *PoleStore) DeleteModel(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(metaKey(name)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrModelNotFound
			}
			return err
		}
		if err := deletePrefix(txn, samplesPrefix(name)); err != nil {
			return err
		}
		return txn.Delete(metaKey(name))
	})
	if err != nil {
		return fmt.Errorf("delete model %s: %w", name, err)
	}
	return nil
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrModelNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// deletePrefix deletes every key under prefix inside txn.
func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
