package tailer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/atikulmunna/sitekeeper/internal/model"
	"github.com/atikulmunna/sitekeeper/internal/watcher"
	"github.com/fsnotify/fsnotify"
)

// Tailer reads newly appended lines from watched files and emits RawLine values.
type Tailer struct {
	mu     sync.Mutex
	files  map[string]*trackedFile
	out    chan model.RawLine
	ckpt   *Checkpoint
	events <-chan watcher.Event
	paths  []string
}

type trackedFile struct {
	file    *os.File
	reader  *bufio.Reader
	offset  int64  // bytes consumed, including partial
	partial string // text after the last newline
}

// New creates a Tailer that reads events from the given Watcher.
func New(w *watcher.Watcher, ckpt *Checkpoint) *Tailer {
	return &Tailer{
		files:  make(map[string]*trackedFile),
		out:    make(chan model.RawLine, 512),
		ckpt:   ckpt,
		events: w.Events,
		paths:  w.Paths(),
	}
}

// Lines returns the channel where raw lines are sent. It is closed when Start returns.
func (t *Tailer) Lines() <-chan model.RawLine {
	return t.out
}

// Start follows the files until the context is cancelled or the watcher stops.
// Existing files resume at their checkpoint, or at the end when there is none.
func (t *Tailer) Start(ctx context.Context) {
	defer close(t.out)
	defer t.closeAll()
	defer t.saveCheckpoint()

	for _, p := range t.paths {
		if t.openFile(p, false) {
			t.readNewLines(ctx, p)
		}
	}

	saveTicker := time.NewTicker(5 * time.Second)
	defer saveTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-t.events:
			if !ok {
				return
			}
			t.handleEvent(ctx, ev)
		case <-saveTicker.C:
			t.saveCheckpoint()
		}
	}
}

func (t *Tailer) handleEvent(ctx context.Context, ev watcher.Event) {
	switch {
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		// Rotated or deleted; a Create follows if the file comes back.
		t.closeFile(ev.Path)
		t.ckpt.Forget(ev.Path)

	case ev.Op&fsnotify.Create != 0, ev.Op&fsnotify.Write != 0:
		// A file we never saw is new, so it is read from the start.
		t.openFile(ev.Path, true)
		t.readNewLines(ctx, ev.Path)
	}
}

// openFile starts tracking path. It reports whether the file is tracked afterwards.
func (t *Tailer) openFile(path string, fromStart bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.files[path]; exists {
		return true
	}

	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("cannot open %s: %v", path, err)
		}
		return false
	}

	info, err := f.Stat()
	if err != nil {
		log.Printf("cannot stat %s: %v", path, err)
		f.Close()
		return false
	}

	var offset int64
	switch saved, ok := t.ckpt.Get(path); {
	case ok && saved <= info.Size():
		offset = saved
	case ok, fromStart:
		// Truncated since the checkpoint, or brand new.
		offset = 0
	default:
		offset = info.Size()
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		log.Printf("cannot seek %s: %v", path, err)
		f.Close()
		return false
	}

	t.files[path] = &trackedFile{
		file:   f,
		reader: bufio.NewReader(f),
		offset: offset,
	}
	return true
}

// readNewLines emits every complete line between the last offset and EOF.
// A trailing fragment is held until its newline arrives.
func (t *Tailer) readNewLines(ctx context.Context, path string) {
	t.mu.Lock()
	tf, ok := t.files[path]
	t.mu.Unlock()
	if !ok {
		return
	}

	if info, err := tf.file.Stat(); err == nil && info.Size() < tf.offset {
		log.Printf("%s was truncated, reading from the start", path)
		if _, err := tf.file.Seek(0, io.SeekStart); err != nil {
			log.Printf("cannot seek %s: %v", path, err)
			return
		}
		tf.reader.Reset(tf.file)
		tf.offset = 0
		tf.partial = ""
	}

	for {
		chunk, err := tf.reader.ReadString('\n')
		tf.offset += int64(len(chunk))

		if err != nil {
			tf.partial += chunk
			if !errors.Is(err, io.EOF) {
				log.Printf("read error on %s: %v", path, err)
			}
			break
		}

		line := strings.TrimRight(tf.partial+chunk, "\r\n")
		tf.partial = ""
		select {
		case t.out <- model.RawLine{Text: line, Source: path}:
		case <-ctx.Done():
			return
		}
	}

	t.ckpt.Set(path, tf.offset-int64(len(tf.partial)))
}

func (t *Tailer) closeFile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tf, ok := t.files[path]; ok {
		tf.file.Close()
		delete(t.files, path)
	}
}

func (t *Tailer) saveCheckpoint() {
	if err := t.ckpt.Save(); err != nil {
		log.Printf("checkpoint save failed: %v", err)
	}
}

func (t *Tailer) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for path, tf := range t.files {
		tf.file.Close()
		delete(t.files, path)
	}
}
