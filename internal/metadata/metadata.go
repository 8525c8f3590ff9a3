// Package metadata translates source.fs SyncDelta batches into catalog
// mutations, emits the per-file FileAdded/Modified/Moved/Deleted audit
// events, and requests extraction for newly or freshly changed content.
package metadata

import (
	"context"
	"log/slog"

	"github.com/gaspardpetit/findx/internal/bus"
	"github.com/gaspardpetit/findx/internal/catalog"
	"github.com/gaspardpetit/findx/internal/events"
)

// Clock returns the current unix-second timestamp used for updated_ts/
// created_ts columns and ops-log entries. Tests substitute a fixed clock.
type Clock func() int64

// Service subscribes to source.fs and keeps the catalog's files table, and
// its ops-log trail, in sync with the scanner's view of the filesystem.
type Service struct {
	cat                   *catalog.Catalog
	bus                   *bus.EventBus
	allowOfflineHydration bool
	now                   Clock
}

// New creates a metadata Service. allowOfflineHydration mirrors
// scan.allow_offline_hydration — when true, offline/placeholder files are
// still sent to extraction instead of being skipped.
func New(cat *catalog.Catalog, b *bus.EventBus, allowOfflineHydration bool, now Clock) *Service {
	return &Service{cat: cat, bus: b, allowOfflineHydration: allowOfflineHydration, now: now}
}

// Run consumes source.fs until ctx is cancelled or the subscription channel
// closes (the bus dropped this subscriber for falling behind).
func (s *Service) Run(ctx context.Context) error {
	sub := s.bus.Subscribe(events.TopicSourceFS)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-sub:
			if !ok {
				return nil
			}
			delta, isDelta := env.Data.(events.SyncDelta)
			if !isDelta {
				continue // SyncStarted and similar markers carry no mutation
			}
			if err := s.applyDelta(ctx, delta); err != nil {
				return err
			}
		}
	}
}

func (s *Service) applyDelta(ctx context.Context, delta events.SyncDelta) error {
	for _, fi := range delta.Added {
		if err := s.handleAdded(ctx, fi); err != nil {
			return err
		}
	}
	for _, fi := range delta.Modified {
		if err := s.handleModified(ctx, fi); err != nil {
			return err
		}
	}
	for _, fi := range delta.Moved {
		if err := s.handleMoved(ctx, fi); err != nil {
			return err
		}
	}
	for _, fi := range delta.Deleted {
		if err := s.handleDeleted(ctx, fi); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) handleAdded(ctx context.Context, fi events.FileInfo) error {
	now := s.now()
	status := catalog.FileStatusActive
	if fi.IsOffline {
		status = catalog.FileStatusOffline
	}

	if err := s.cat.UpsertFile(ctx, catalog.File{
		FileUID:   fi.FileUID,
		Realpath:  fi.Path,
		Size:      fi.Size,
		MtimeNS:   fi.MtimeNS,
		FastSig:   fi.FastSig,
		IsOffline: fi.IsOffline,
		Attrs:     fi.Attrs,
		Status:    status,
	}, now); err != nil {
		return err
	}
	if err := s.cat.AppendOpsLog(ctx, events.OpsLogAdd, fi.Path, "", fi.FileUID, now); err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, events.TopicSourceFS, events.FileAdded{FileUID: fi.FileUID, Path: fi.Path}); err != nil {
		return err
	}
	if !fi.IsOffline || s.allowOfflineHydration {
		return s.bus.Publish(ctx, events.TopicSourceFS, events.ExtractionRequested{FileUID: fi.FileUID})
	}
	return nil
}

func (s *Service) handleModified(ctx context.Context, fi events.FileInfo) error {
	now := s.now()

	if err := s.cat.UpsertFile(ctx, catalog.File{
		FileUID:   fi.FileUID,
		Realpath:  fi.Path,
		Size:      fi.Size,
		MtimeNS:   fi.MtimeNS,
		FastSig:   fi.FastSig,
		IsOffline: fi.IsOffline,
		Attrs:     fi.Attrs,
		Status:    catalog.FileStatusActive,
	}, now); err != nil {
		return err
	}
	if err := s.cat.ClearHashAndReactivate(ctx, fi.FileUID, now); err != nil {
		return err
	}
	if err := s.cat.AppendOpsLog(ctx, events.OpsLogMod, fi.Path, "", fi.FileUID, now); err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, events.TopicSourceFS, events.FileModified{FileUID: fi.FileUID, Path: fi.Path}); err != nil {
		return err
	}
	if !fi.IsOffline || s.allowOfflineHydration {
		return s.bus.Publish(ctx, events.TopicSourceFS, events.ExtractionRequested{FileUID: fi.FileUID})
	}
	return nil
}

func (s *Service) handleMoved(ctx context.Context, fi events.FileInfo) error {
	now := s.now()

	old, err := s.cat.GetFileByUID(ctx, fi.FileUID)
	if err != nil {
		return err
	}
	oldPath := ""
	if old != nil {
		oldPath = old.Realpath
	} else {
		slog.Warn("metadata: move for unknown file_uid", slog.String("file_uid", fi.FileUID))
	}

	if err := s.cat.UpdateRealpath(ctx, fi.FileUID, fi.Path, now); err != nil {
		return err
	}
	if err := s.cat.AppendOpsLog(ctx, events.OpsLogMv, oldPath, fi.Path, fi.FileUID, now); err != nil {
		return err
	}
	return s.bus.Publish(ctx, events.TopicSourceFS, events.FileMoved{FileUID: fi.FileUID, OldPath: oldPath, NewPath: fi.Path})
}

func (s *Service) handleDeleted(ctx context.Context, fi events.FileInfo) error {
	now := s.now()

	if err := s.cat.MarkDeleted(ctx, fi.FileUID, now); err != nil {
		return err
	}
	if err := s.cat.AppendOpsLog(ctx, events.OpsLogDel, fi.Path, "", fi.FileUID, now); err != nil {
		return err
	}
	return s.bus.Publish(ctx, events.TopicSourceFS, events.FileDeleted{FileUID: fi.FileUID})
}
