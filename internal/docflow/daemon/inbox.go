package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pacetech/docflow/internal/docflow/db"
	"github.com/pacetech/docflow/internal/docflow/schema"
)

// Inbox subdirectories.
const (
	ProcessedDir = "processed"
	RejectedDir  = "rejected"
)

// startInbox imports files already waiting and starts watching for new ones.
func (d *Daemon) startInbox() error {
	inbox := d.config.InboxDir
	for _, dir := range []string{inbox, filepath.Join(inbox, ProcessedDir), filepath.Join(inbox, RejectedDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create inbox directory: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(inbox); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch inbox %s: %w", inbox, err)
	}
	d.watcher = watcher

	if n := d.ImportInbox(); n > 0 {
		d.RequestSync(ReasonInbox)
	}

	d.logger.Info().Str("inbox", inbox).Msg("watching inbox")

	d.wg.Add(2)
	go d.watchInboxEvents()
	go d.processChangeQueue()
	return nil
}

// ImportInbox imports every record file currently in the inbox and returns
// how many were saved.
func (d *Daemon) ImportInbox() int {
	entries, err := os.ReadDir(d.config.InboxDir)
	if err != nil {
		d.logger.Warn().Err(err).Msg("failed to read inbox")
		return 0
	}

	imported := 0
	for _, entry := range entries {
		if entry.IsDir() || !isRecordFile(entry.Name()) {
			continue
		}
		if d.importFile(filepath.Join(d.config.InboxDir, entry.Name())) {
			imported++
		}
	}
	return imported
}

// watchInboxEvents monitors filesystem events and queues changes.
func (d *Daemon) watchInboxEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isRecordFile(filepath.Base(event.Name)) {
				continue
			}

			d.logger.Debug().Str("op", event.Op.String()).Str("path", event.Name).Msg("inbox event")
			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn().Err(err).Msg("inbox watcher error")
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue imports queued files once they have been quiet long enough.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if d.processPendingChanges() > 0 {
				d.RequestSync(ReasonInbox)
			}
		}
	}
}

// processPendingChanges imports settled files and returns how many were saved.
func (d *Daemon) processPendingChanges() int {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := time.Now()
	imported := 0

	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		delete(d.changeQueue, path)

		if _, err := os.Stat(path); err != nil {
			// Already imported or removed.
			continue
		}
		if d.importFile(path) {
			imported++
		}
	}

	return imported
}

// importFile saves one record file and moves it out of the inbox.
// Invalid files go to rejected/. It reports whether the record was saved.
func (d *Daemon) importFile(path string) bool {
	log := d.logger.With().Str("file", filepath.Base(path)).Logger()

	rec, err := schema.ReadRecordFile(path)
	if err == nil {
		err = d.validate(rec)
	}
	if err != nil {
		log.Warn().Err(err).Msg("rejected inbox file")
		d.moveTo(path, RejectedDir, fmt.Sprintf("%d_", time.Now().UnixNano()))
		return false
	}

	id, err := d.store.Save(d.ctx, rec)
	if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrFormTypeChanged) {
		log.Warn().Err(err).Msg("rejected inbox file")
		d.moveTo(path, RejectedDir, fmt.Sprintf("%d_", time.Now().UnixNano()))
		return false
	}
	if err != nil {
		// Left in place; the next event or restart retries it.
		log.Error().Err(err).Msg("failed to save inbox record")
		return false
	}

	log.Info().Int64("local_id", id).Str("form_type", rec.FormType).Msg("imported record")
	d.moveTo(path, ProcessedDir, fmt.Sprintf("%d_", id))
	return true
}

func (d *Daemon) validate(rec *schema.Record) error {
	cfg, ok := d.config.FormTypes.Get(rec.FormType)
	if !ok {
		return fmt.Errorf("unknown form type %q", rec.FormType)
	}
	return cfg.Validate(rec)
}

func (d *Daemon) moveTo(path, sub, prefix string) {
	dest := filepath.Join(d.config.InboxDir, sub, prefix+filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		d.logger.Warn().Err(err).Str("file", path).Msg("failed to move inbox file")
	}
}

func isRecordFile(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}
