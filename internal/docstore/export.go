package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kuitang/sticky-canvas/internal/errs"
	"github.com/kuitang/sticky-canvas/internal/notes"
	"github.com/kuitang/sticky-canvas/internal/obs"
	"github.com/kuitang/sticky-canvas/internal/s3client"
)

// Exporter writes and lists export objects. *s3client.Client satisfies it.
type Exporter interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) error
	ListObjects(ctx context.Context, prefix string) ([]s3client.ObjectInfo, error)
	GetPublicURL(key string) string
}

// ExportResult locates a written export.
type ExportResult struct {
	Key          string    `json:"key"`
	URL          string    `json:"url"`
	Size         int64     `json:"size,omitempty"`
	LastModified time.Time `json:"lastModified,omitzero"`
}

// exportDocument is the JSON body of an export object.
type exportDocument struct {
	AppID      string       `json:"appId"`
	UserID     string       `json:"userId"`
	ExportedAt time.Time    `json:"exportedAt"`
	Notes      []notes.Note `json:"notes"`
}

// Export writes the current collection as JSON to object storage.
func (s *Service) Export(ctx context.Context, sc Scope) (ExportResult, error) {
	if s.exporter == nil {
		return ExportResult{}, errs.New(errs.Unavailable, "export storage is not configured")
	}
	all, err := s.List(ctx, sc)
	if err != nil {
		return ExportResult{}, err
	}
	if all == nil {
		all = []notes.Note{}
	}

	now := s.now().UTC()
	body, err := json.Marshal(exportDocument{AppID: sc.AppID, UserID: sc.UserID, ExportedAt: now, Notes: all})
	if err != nil {
		return ExportResult{}, fmt.Errorf("marshal export: %w", err)
	}

	key := sc.ExportKey(now)
	if err := s.exporter.PutObject(ctx, key, body, "application/json"); err != nil {
		return ExportResult{}, errs.Wrap(errs.Unavailable, "export upload failed", err)
	}
	obs.From(ctx).With("pkg", "docstore").Info("canvas exported", "key", key, "notes", len(all), "bytes", len(body))
	return ExportResult{Key: key, URL: s.exporter.GetPublicURL(key)}, nil
}

// ListExports returns the scope's earlier exports, newest first.
func (s *Service) ListExports(ctx context.Context, sc Scope) ([]ExportResult, error) {
	if err := checkScope(sc); err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, errs.New(errs.Unavailable, "export storage is not configured")
	}
	objs, err := s.exporter.ListObjects(ctx, sc.ExportPrefix())
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "export listing failed", err)
	}
	out := make([]ExportResult, 0, len(objs))
	for _, o := range objs {
		out = append(out, ExportResult{
			Key:          o.Key,
			URL:          s.exporter.GetPublicURL(o.Key),
			Size:         o.Size,
			LastModified: o.LastModified,
		})
	}
	return out, nil
}
