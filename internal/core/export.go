package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	blobcore "configforge/internal/blob/core"
	"configforge/pkg/domain"
)

// ErrNoBlobStore is returned by the configuration export operations when no
// export target is configured.
var ErrNoBlobStore = errors.New("no blob store configured")

// ReviewSelection is one resolved hierarchy level in a review document.
type ReviewSelection struct {
	Level domain.Level `json:"level"`
	ID    string       `json:"id"`
	Name  string       `json:"name"`
}

// ReviewDocument is the read-only summary shown at the review step and
// written on save.
type ReviewDocument struct {
	Selections   []ReviewSelection    `json:"selections"`
	Parameters   []domain.Parameter   `json:"parameters"`
	Calculations []domain.Calculation `json:"calculations"`
	SavedAt      time.Time            `json:"savedAt"`
}

// ReviewDocument assembles the current review summary.
func (s *Service) ReviewDocument() ReviewDocument {
	snap := s.store.Snapshot()
	doc := ReviewDocument{
		Selections:   []ReviewSelection{},
		Parameters:   snap.Parameters,
		Calculations: snap.Calculations,
		SavedAt:      s.clock.Now(),
	}
	if doc.Parameters == nil {
		doc.Parameters = []domain.Parameter{}
	}
	if doc.Calculations == nil {
		doc.Calculations = []domain.Calculation{}
	}
	for level := domain.LevelIndustry; level <= domain.MaxHierarchyLevel; level++ {
		id := snap.Hierarchy.At(level)
		if id == "" {
			continue
		}
		name := id
		if opt, ok := s.store.Catalog().Lookup(level, id); ok {
			name = opt.Name
		}
		doc.Selections = append(doc.Selections, ReviewSelection{Level: level, ID: id, Name: name})
	}
	return doc
}

// SaveConfiguration writes the review document as JSON to the blob store
// under a fresh key, then commits the patch queue. A failed write leaves the
// queue intact.
func (s *Service) SaveConfiguration(ctx context.Context) (blobcore.Info, error) {
	var info blobcore.Info
	err := s.run(ctx, "save_configuration", "", "", func(ctx context.Context) error {
		if s.blobs == nil {
			return ErrNoBlobStore
		}
		doc := s.ReviewDocument()
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encode review document: %w", err)
		}
		key := path.Join(s.exportPrefix, fmt.Sprintf("%s-%s.json", doc.SavedAt.UTC().Format("20060102T150405Z"), uuid.NewString()))
		info, err = s.blobs.Put(ctx, key, bytes.NewReader(data), blobcore.PutOptions{
			ContentType: "application/json",
			Metadata:    map[string]string{"industry": s.store.Hierarchy().IndustryID},
		})
		if err != nil {
			return fmt.Errorf("write configuration: %w", err)
		}
		s.store.CommitPatches()
		s.logger.Info("configuration saved", "key", info.Key, "driver", s.blobs.Driver(), "size", info.Size)
		return nil
	})
	return info, err
}

// ListConfigurations returns the saved documents under the export prefix,
// ordered by key (and so by save time).
func (s *Service) ListConfigurations(ctx context.Context) ([]blobcore.Info, error) {
	out := []blobcore.Info{}
	err := s.run(ctx, "list_configurations", "", "", func(ctx context.Context) error {
		if s.blobs == nil {
			return ErrNoBlobStore
		}
		prefix := ""
		if s.exportPrefix != "" {
			prefix = s.exportPrefix + "/"
		}
		infos, err := s.blobs.List(ctx, prefix)
		if err != nil {
			return fmt.Errorf("list configurations: %w", err)
		}
		for _, info := range infos {
			if strings.HasSuffix(info.Key, ".json") {
				out = append(out, info)
			}
		}
		return nil
	})
	return out, err
}

// GetConfiguration reads a saved document back. key may be the full blob
// key or the name relative to the export prefix.
func (s *Service) GetConfiguration(ctx context.Context, key string) (ReviewDocument, blobcore.Info, error) {
	var (
		doc  ReviewDocument
		info blobcore.Info
	)
	err := s.run(ctx, "get_configuration", "", key, func(ctx context.Context) error {
		full, err := s.configurationKey(key)
		if err != nil {
			return err
		}
		var rc io.ReadCloser
		info, rc, err = s.blobs.Get(ctx, full)
		if err != nil {
			return err
		}
		defer rc.Close()
		if err := json.NewDecoder(rc).Decode(&doc); err != nil {
			return fmt.Errorf("decode configuration %s: %w", full, err)
		}
		return nil
	})
	return doc, info, err
}

// ConfigurationURL returns a download link for a saved document. Drivers
// without link support fail with blobcore.ErrUnsupported.
func (s *Service) ConfigurationURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	var link string
	err := s.run(ctx, "configuration_url", "", key, func(ctx context.Context) error {
		full, err := s.configurationKey(key)
		if err != nil {
			return err
		}
		if _, err := s.blobs.Head(ctx, full); err != nil {
			return err
		}
		link, err = s.blobs.PresignURL(ctx, full, blobcore.SignedURLOptions{Method: "GET", Expiry: expiry})
		return err
	})
	return link, err
}

// DeleteConfiguration removes a saved document.
func (s *Service) DeleteConfiguration(ctx context.Context, key string) error {
	return s.run(ctx, "delete_configuration", "", key, func(ctx context.Context) error {
		full, err := s.configurationKey(key)
		if err != nil {
			return err
		}
		existed, err := s.blobs.Delete(ctx, full)
		if err != nil {
			return err
		}
		if !existed {
			return fmt.Errorf("%w: %s", blobcore.ErrNotFound, full)
		}
		s.logger.Info("configuration deleted", "key", full)
		return nil
	})
}

func (s *Service) configurationKey(key string) (string, error) {
	if s.blobs == nil {
		return "", ErrNoBlobStore
	}
	clean, err := blobcore.CleanKey(key)
	if err != nil {
		return "", err
	}
	if s.exportPrefix == "" || strings.HasPrefix(clean, s.exportPrefix+"/") {
		return clean, nil
	}
	return path.Join(s.exportPrefix, clean), nil
}
