package intake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"gt06gateway/internal/core/model"
	"gt06gateway/internal/core/service"
)

const settleDelay = 200 * time.Millisecond

// FileWatcher turns command files into requests. A file named after an IMEI inside the command
// directory holds one token (BLOQUEAR, LIBERAR or BATERIA). The file is removed once the device
// confirms the command; until then it is re-sent whenever the device logs in.
type FileWatcher struct {
	dir       string
	submitter Submitter
	noter     DeviceNoter
	log       *logrus.Entry

	mu      sync.Mutex
	pending map[string]*time.Timer
	ctx     context.Context
}

func NewFileWatcher(dir string, submitter Submitter, noter DeviceNoter) *FileWatcher {
	return &FileWatcher{
		dir:       dir,
		submitter: submitter,
		noter:     noter,
		log:       logrus.WithFields(logrus.Fields{"component": "file-intake", "dir": dir}),
		pending:   make(map[string]*time.Timer),
		ctx:       context.Background(),
	}
}

// Run submits the files already present and then watches the directory until ctx is done.
func (w *FileWatcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create command dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read command dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.schedule(filepath.Join(w.dir, e.Name()))
		}
	}

	w.log.Info("watching command files")
	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				w.schedule(ev.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watcher error")
		}
	}
}

// DeviceLoggedIn re-sends the command file of a device that just logged in.
func (w *FileWatcher) DeviceLoggedIn(imei string) {
	path := filepath.Join(w.dir, imei)
	if _, err := os.Stat(path); err != nil {
		return
	}
	w.schedule(path)
}

// Fulfill removes the command file once the device has confirmed the command.
func (w *FileWatcher) Fulfill(_ context.Context, cmd model.PendingCommand) error {
	if cmd.Ref == "" {
		return nil
	}
	if err := os.Remove(cmd.Ref); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	w.log.WithFields(logrus.Fields{"imei": cmd.IMEI, "file": cmd.Ref}).Info("command file removed")
	if w.noter != nil {
		w.noter.Note(cmd.IMEI, fmt.Sprintf("command %s confirmed, file removed", cmd.Kind))
	}
	return nil
}

// schedule coalesces bursts of events on one file into a single submission.
func (w *FileWatcher) schedule(path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(settleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		ctx := w.ctx
		w.mu.Unlock()
		w.submit(ctx, path)
	})
}

func (w *FileWatcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *FileWatcher) submit(ctx context.Context, path string) {
	imei := filepath.Base(path)
	log := w.log.WithFields(logrus.Fields{"imei": imei, "file": path})

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).Warn("failed to read command file")
		}
		return
	}
	token := strings.ToUpper(strings.TrimSpace(string(data)))

	if _, err := model.ParseCommandKind(token); err != nil {
		log.WithField("content", token).Warn("invalid command file")
		if w.noter != nil {
			w.noter.Note(imei, fmt.Sprintf("invalid command file content: '%s'", token))
		}
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd, err := w.submitter.Submit(ctx, model.CommandRequest{IMEI: imei, Token: token, Ref: path, Source: SourceFile})
	switch {
	case errors.Is(err, service.ErrDeviceOffline):
		log.Debug("device offline, command kept until login")
	case err != nil:
		log.WithError(err).Warn("command not submitted")
	default:
		log.WithField("kind", cmd.Kind).Info("command file submitted")
		if w.noter != nil {
			w.noter.Note(imei, fmt.Sprintf("command %s sent: '%s' serial %d", token, cmd.Text, cmd.Serial))
		}
	}
}
