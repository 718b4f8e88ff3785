package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/docchat/docchat/internal/types"
)

// DefaultSettle is how long a file must stay quiet before it is
// ingested. Copying a file into the watch directory produces a Create
// followed by a burst of Write events; waiting for the burst to end
// means one ingest per file, with the complete content.
const DefaultSettle = 500 * time.Millisecond

// Watcher monitors a drop directory and ingests files as they appear,
// so documents can be added by copying them in without touching the
// upload endpoint.
type Watcher struct {
	watcher    *fsnotify.Watcher
	ingestor   types.Ingestor
	extractor  types.Extractor
	extensions []string

	// Settle may be lowered before Watch is called.
	Settle time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func New(ingestor types.Ingestor, extractor types.Extractor, extensions []string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if len(extensions) == 0 {
		extensions = []string{".txt", ".md", ".html", ".pdf"}
	}

	return &Watcher{
		watcher:    w,
		ingestor:   ingestor,
		extractor:  extractor,
		extensions: extensions,
		Settle:     DefaultSettle,
		pending:    make(map[string]*time.Timer),
	}, nil
}

// Watch ingests files written into dir until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				if !w.isWatchedExtension(event.Name) {
					continue
				}
				w.schedule(ctx, event.Name)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("watcher error: %v", err)
			}
		}
	}()

	return nil
}

// schedule arms (or re-arms) the settle timer for path. Each event in
// a write burst pushes the timer back, so the file is read once, after
// the last write.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.Settle)
		return
	}

	w.pending[path] = time.AfterFunc(w.Settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		w.ingestFile(ctx, path)
	})
}

func (w *Watcher) ingestFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("failed to read %s: %v", path, err)
		return
	}

	name := filepath.Base(path)
	text, err := w.extractor.Extract(data, name)
	if err != nil {
		log.Printf("failed to extract %s: %v", name, err)
		return
	}

	result, err := w.ingestor.Ingest(ctx, text, name)
	if err != nil {
		log.Printf("failed to ingest %s: %v", name, err)
		return
	}
	log.Printf("ingested %s: document %s, %d chunks", name, result.DocumentID, result.NumChunks)
}

func (w *Watcher) isWatchedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, watched := range w.extensions {
		if ext == watched {
			return true
		}
	}
	return false
}

// Stop closes the underlying filesystem watcher and cancels any
// pending ingests.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	return w.watcher.Close()
}
