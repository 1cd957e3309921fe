package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/receipt-reminders/internal/core/usecase"
)

// lockingStore is an in-memory pending_notifications table plus blocking
// transaction-scoped advisory locks, shared by every connection of one pool.
type lockingStore struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	rows    map[string]lockedRow
	latency time.Duration
}

type lockedRow struct {
	deliverAt time.Time
	names     []byte
	title     string
	body      string
}

func newLockingStore(latency time.Duration) *lockingStore {
	return &lockingStore{
		locks:   make(map[string]chan struct{}),
		rows:    make(map[string]lockedRow),
		latency: latency,
	}
}

func (s *lockingStore) keyLock(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

func (s *lockingStore) names(t *testing.T, id string) []string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		t.Fatalf("expected notification %s to exist", id)
	}
	var names []string
	if err := json.Unmarshal(row.names, &names); err != nil {
		t.Fatalf("decode names for %s: %v", id, err)
	}
	return names
}

type lockingConnector struct {
	store *lockingStore
}

func (c lockingConnector) Connect(context.Context) (driver.Conn, error) {
	return &lockingConn{store: c.store}, nil
}

func (c lockingConnector) Driver() driver.Driver {
	return lockingDriver{connector: c}
}

type lockingDriver struct {
	connector lockingConnector
}

func (d lockingDriver) Open(string) (driver.Conn, error) {
	return d.connector.Connect(context.Background())
}

// lockingConn doubles as its own driver.Tx; advisory locks taken on it are
// released on commit, rollback or close.
type lockingConn struct {
	store *lockingStore
	held  []chan struct{}
}

func (c *lockingConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *lockingConn) Close() error {
	c.release()
	return nil
}

func (c *lockingConn) Begin() (driver.Tx, error) {
	return c, nil
}

func (c *lockingConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return c, nil
}

func (c *lockingConn) Commit() error {
	c.release()
	return nil
}

func (c *lockingConn) Rollback() error {
	c.release()
	return nil
}

func (c *lockingConn) release() {
	for _, ch := range c.held {
		<-ch
	}
	c.held = nil
}

func (c *lockingConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	time.Sleep(c.store.latency)
	switch {
	case strings.Contains(query, "pg_advisory_xact_lock"):
		ch := c.store.keyLock(args[0].Value.(string))
		select {
		case ch <- struct{}{}:
			c.held = append(c.held, ch)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case strings.Contains(query, "INSERT INTO pending_notifications"):
		c.store.mu.Lock()
		c.store.rows[args[0].Value.(string)] = lockedRow{
			deliverAt: args[1].Value.(time.Time),
			names:     append([]byte(nil), args[2].Value.([]byte)...),
			title:     args[3].Value.(string),
			body:      args[4].Value.(string),
		}
		c.store.mu.Unlock()
	case strings.Contains(query, "DELETE FROM pending_notifications"):
		c.store.mu.Lock()
		delete(c.store.rows, args[0].Value.(string))
		c.store.mu.Unlock()
	default:
		return nil, fmt.Errorf("unexpected exec %q", query)
	}
	return driver.RowsAffected(1), nil
}

func (c *lockingConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	time.Sleep(c.store.latency)
	if !strings.Contains(query, "FROM pending_notifications") {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	out := &lockedRows{}
	for id, row := range c.store.rows {
		out.ids = append(out.ids, id)
		out.rows = append(out.rows, row)
	}
	sort.Sort(out)
	return out, nil
}

type lockedRows struct {
	ids  []string
	rows []lockedRow
	pos  int
}

func (r *lockedRows) Len() int           { return len(r.ids) }
func (r *lockedRows) Less(i, j int) bool { return r.ids[i] < r.ids[j] }
func (r *lockedRows) Swap(i, j int) {
	r.ids[i], r.ids[j] = r.ids[j], r.ids[i]
	r.rows[i], r.rows[j] = r.rows[j], r.rows[i]
}

func (r *lockedRows) Columns() []string {
	return []string{"id", "deliver_at", "item_names", "title", "body"}
}

func (r *lockedRows) Close() error { return nil }

func (r *lockedRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.ids) {
		return io.EOF
	}
	row := r.rows[r.pos]
	dest[0] = r.ids[r.pos]
	dest[1] = row.deliverAt
	dest[2] = row.names
	dest[3] = row.title
	dest[4] = row.body
	r.pos++
	return nil
}

func TestReminderStoreOnPostgresLockOutlastsPoolSize(t *testing.T) {
	store := newLockingStore(2 * time.Millisecond)
	db := sql.OpenDB(lockingConnector{store: store})
	defer db.Close()
	db.SetMaxOpenConns(4)

	repo := NewNotificationRepository(db)
	reminders := usecase.NewReminderStore(repo, repo, usecase.ReminderConfig{Location: time.UTC, DeliveryHour: 8})

	const callers = 16
	days := []time.Time{
		time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 11, 12, 0, 0, 0, time.UTC),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- reminders.Schedule(ctx, fmt.Sprintf("item-%02d", i), days[i%len(days)])
		}(i)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatalf("%d concurrent Schedule calls did not finish; pool stats %+v", callers, db.Stats())
	}

	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Schedule() error = %v", err)
		}
	}

	for _, key := range []string{"2024-01-10", "2024-01-11"} {
		if names := store.names(t, key); len(names) != callers/len(days) {
			t.Fatalf("expected %d items on %s, got %d: %v", callers/len(days), key, len(names), names)
		}
	}
}

func TestReminderRemoveOnPostgresLockKeepsConcurrentSchedules(t *testing.T) {
	store := newLockingStore(time.Millisecond)
	db := sql.OpenDB(lockingConnector{store: store})
	defer db.Close()
	db.SetMaxOpenConns(2)

	repo := NewNotificationRepository(db)
	reminders := usecase.NewReminderStore(repo, repo, usecase.ReminderConfig{Location: time.UTC, DeliveryHour: 8})
	due := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	if err := reminders.Schedule(ctx, "Milk", due); err != nil {
		t.Fatalf("Schedule(Milk) error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := reminders.Schedule(ctx, fmt.Sprintf("item-%d", i), due); err != nil {
				t.Errorf("Schedule() error = %v", err)
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := reminders.Remove(ctx, "Milk", due); err != nil {
			t.Errorf("Remove() error = %v", err)
		}
	}()
	wg.Wait()

	names := store.names(t, "2024-01-10")
	if len(names) != 6 {
		t.Fatalf("expected the six scheduled items to survive the removal, got %v", names)
	}
	for _, name := range names {
		if name == "Milk" {
			t.Fatalf("expected Milk removed, got %v", names)
		}
	}
}
