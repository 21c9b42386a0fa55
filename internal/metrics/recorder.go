package metrics

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder counts searches per surface in a Store that is opened on first
// use. A failed open is remembered so a broken database path is reported
// once rather than on every search.
type Recorder struct {
	mu      sync.Mutex
	path    string
	store   *Store
	openErr error
	opened  bool
	live    metric.Int64Counter
}

// NewRecorder creates a recorder for the database at path ("" for the default)
func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

func (r *Recorder) openLocked() (*Store, error) {
	if !r.opened {
		r.opened = true
		r.store, r.openErr = NewStore(r.path)
		if r.openErr != nil {
			log.Printf("metrics: stats store unavailable: %v", r.openErr)
		}
	}
	return r.store, r.openErr
}

// Open opens the store now instead of on the first search
func (r *Recorder) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.openLocked()
	return err
}

// Record counts one search from mode. Failures are logged, never returned:
// usage statistics must not fail a search.
func (r *Recorder) Record(mode Mode) {
	r.mu.Lock()
	store, err := r.openLocked()
	live := r.live
	r.mu.Unlock()

	if live != nil {
		live.Add(context.Background(), 1, metric.WithAttributes(attribute.String("mode", string(mode))))
	}
	if err != nil {
		return
	}
	if err := store.Increment(mode); err != nil {
		log.Printf("metrics: failed to record %s search: %v", mode, err)
	}
}

// Totals returns cumulative counts per mode, or nil when no store is open
func (r *Recorder) Totals() map[Mode]int64 {
	r.mu.Lock()
	store := r.store
	r.mu.Unlock()
	if store == nil {
		return nil
	}

	totals, err := store.GetAllTotals()
	if err != nil {
		log.Printf("metrics: failed to read totals: %v", err)
		return nil
	}
	return totals
}

// Close closes the store; a later Record reopens it
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.store != nil {
		err = r.store.Close()
	}
	r.store, r.openErr, r.opened = nil, nil, false
	return err
}

func (r *Recorder) setLive(counter metric.Int64Counter) {
	r.mu.Lock()
	r.live = counter
	r.mu.Unlock()
}

func (r *Recorder) replace(path string, store *Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = path
	r.store, r.openErr, r.opened = store, nil, store != nil
}

var recorder = NewRecorder("")

// Configure points the process-wide recorder at dbPath. An empty path
// selects ~/.halalfinder/stats.db.
func Configure(dbPath string) {
	if err := recorder.Close(); err != nil {
		log.Printf("metrics: failed to close previous store: %v", err)
	}
	recorder.replace(dbPath, nil)
}

// Init opens the process-wide store
func Init() error {
	return recorder.Open()
}

// RecordInvocation counts one search from mode
func RecordInvocation(mode Mode) {
	recorder.Record(mode)
}

// GetStats returns cumulative counts per mode, or nil before the store is open
func GetStats() map[Mode]int64 {
	return recorder.Totals()
}

// GetTotalForMode returns the cumulative count for mode, 0 when unknown
func GetTotalForMode(mode Mode) int64 {
	return recorder.Totals()[mode]
}

// Close closes the process-wide store
func Close() error {
	return recorder.Close()
}

// GetStore returns the open store, if any
func GetStore() *Store {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	return recorder.store
}

// SetStoreForTesting makes store the process-wide store
func SetStoreForTesting(store *Store) {
	recorder.replace("", store)
}

// ResetForTesting closes and forgets the process-wide store
func ResetForTesting() {
	_ = recorder.Close()
	recorder.replace("", nil)
	recorder.setLive(nil)
}
