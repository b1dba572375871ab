// Package trace emits Chrome trace-event JSON for scheduler task timing, so
// a run can be loaded into chrome://tracing or Perfetto to see which stages
// dominated wall-clock time.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var start = time.Now()

var (
	sinkMu sync.Mutex
	sink   io.Writer = ioutil.Discard
)

// Sink writes all following Event()s as a Chrome trace event file into w.
func Sink(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = w
	w.Write([]byte{'['})
}

// Enable is a convenience function for creating a file in
// $TMPDIR/hbuild.traces/prefix.$PID.json and directing Sink there. The filename
// assumes the OS does not frequently re-use the same pid.
func Enable(prefix string) (string, error) {
	fn := filepath.Join(os.TempDir(), "hbuild.traces", fmt.Sprintf("%s.%d.json", prefix, os.Getpid()))
	if err := os.MkdirAll(filepath.Dir(fn), 0755); err != nil {
		return "", err
	}
	f, err := os.Create(fn)
	if err != nil {
		return "", err
	}
	Sink(f)
	return fn, nil
}

// PendingEvent is a trace-event "X" (complete event) in progress; call Done
// once the work it measures has finished.
type PendingEvent struct {
	Name           string      `json:"name"`
	Categories     string      `json:"cat"`
	Type           string      `json:"ph"`
	ClockTimestamp uint64      `json:"ts"`
	Duration       uint64      `json:"dur"`
	Pid            uint64      `json:"pid"`
	Tid            uint64      `json:"tid"`
	Args           interface{} `json:"args,omitempty"`

	start time.Time
}

// Done records the event's duration and writes it to the active sink.
func (pe *PendingEvent) Done() {
	pe.Duration = uint64(time.Since(pe.start) / time.Microsecond)
	b, err := json.Marshal(pe)
	if err != nil {
		panic(err)
	}
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if _, err := sink.Write(append(b, ',')); err != nil {
		log.Printf("[trace] %v", err)
	}
}

// Event begins a new pending event on the given "thread" (worker) id,
// labeled with a task category such as a stage name.
func Event(name, category string, tid int) *PendingEvent {
	return &PendingEvent{
		Name:           name,
		Categories:     category,
		Type:           "X",
		ClockTimestamp: uint64(time.Since(start) / time.Microsecond),
		Tid:            uint64(tid),
		Pid:            1,
		start:          time.Now(),
	}
}
