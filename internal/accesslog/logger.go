package accesslog

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// TimeLayout renders timestamps like a browser's Date.toString().
const TimeLayout = "Mon Jan 02 2006 15:04:05 GMT-0700 (MST)"

// DefaultQueueSize is how many lines may wait for the writer before new ones are dropped.
const DefaultQueueSize = 1024

// Format builds one access line: <timestamp>:<METHOD> <uri>.
func Format(t time.Time, method, uri string) string {
	return fmt.Sprintf("%s:%s %s", t.Format(TimeLayout), method, uri)
}

// record is one unit of work for the writer: a line, or a flush marker.
type record struct {
	line    string
	flushed chan struct{}
}

// Logger writes access lines to a console writer and appends them to a file.
// Log only enqueues; a single writer goroutine does all I/O, so a slow or
// stuck file never holds up a request. Failures are reported through the
// standard logger and never returned.
type Logger struct {
	path    string
	console io.Writer
	now     func() time.Time

	queue     chan record
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	failures atomic.Int64
}

// New creates a Logger appending to path and starts its writer. A nil console
// disables the console copy. Call Close to drain pending lines.
func New(path string, console io.Writer) *Logger {
	return newLogger(path, console, DefaultQueueSize)
}

func newLogger(path string, console io.Writer, size int) *Logger {
	if console == nil {
		console = io.Discard
	}
	l := &Logger{
		path:    path,
		console: console,
		now:     time.Now,
		queue:   make(chan record, size),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Path returns the file the logger appends to.
func (l *Logger) Path() string {
	return l.path
}

// Failures returns how many lines were dropped, either because the append
// failed or because the queue was full.
func (l *Logger) Failures() int64 {
	return l.failures.Load()
}

// Log records one request. It never blocks; a line that cannot be queued is
// counted as a failure.
func (l *Logger) Log(method, uri string) {
	line := Format(l.now(), method, uri)

	select {
	case <-l.quit:
		l.failures.Add(1)
		return
	default:
	}

	select {
	case l.queue <- record{line: line}:
	default:
		if n := l.failures.Add(1); n == 1 || n%DefaultQueueSize == 0 {
			log.Printf("accesslog: queue full, dropped line for %s (total failures: %d)", l.path, n)
		}
	}
}

// Flush waits until every line queued before the call has been written.
func (l *Logger) Flush() {
	flushed := make(chan struct{})
	select {
	case l.queue <- record{flushed: flushed}:
	case <-l.quit:
		return
	}
	select {
	case <-flushed:
	case <-l.done:
	}
}

// Close writes what is still queued and stops the writer. Lines logged
// afterwards are dropped.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		close(l.quit)
		<-l.done
	})
}

func (l *Logger) run() {
	defer close(l.done)

	for {
		select {
		case rec := <-l.queue:
			l.write(rec)
		case <-l.quit:
			for {
				select {
				case rec := <-l.queue:
					l.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(rec record) {
	if rec.flushed != nil {
		close(rec.flushed)
		return
	}

	fmt.Fprintln(l.console, rec.line)
	if err := l.appendLine(rec.line); err != nil {
		l.failures.Add(1)
		log.Printf("accesslog: unable to append to %s: %v", l.path, err)
	}
}

// appendLine opens the file per write so rotation and deletion are picked up.
// Only the writer goroutine calls it, and the line goes out in a single Write.
func (l *Logger) appendLine(line string) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Middleware queues the access line and hands the request straight to routing.
func (l *Logger) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		l.Log(c.Request.Method, c.Request.URL.RequestURI())
		c.Next()
	}
}
