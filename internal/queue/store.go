// Package queue holds mutating hub commands durably until the hub has
// acknowledged them, retrying link failures on a fixed delay.
package queue

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/erikbeerepoot/bramble/internal/errors"
)

const bucketTasks = "tasks"

// State is the lifecycle position of a task
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateWarning   State = "warning" // hub answered, but not with QUEUED
	StateFailed    State = "failed"
)

// Done reports whether the task will not be attempted again
func (s State) Done() bool {
	return s == StateSucceeded || s == StateWarning || s == StateFailed
}

// Task is one outbound command
type Task struct {
	ID            string    `json:"id"`
	Seq           uint64    `json:"seq"`
	Command       string    `json:"command"`
	State         State     `json:"state"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
	Result        []string  `json:"result,omitempty"`
	Position      *int      `json:"queue_position,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
}

// Store persists tasks in a bbolt bucket
type Store struct {
	db    *bolt.DB
	owned bool
	now   func() time.Time
}

// NewStore keeps tasks in an already open database
func NewStore(db *bolt.DB, clock func() time.Time) (*Store, error) {
	if clock == nil {
		clock = time.Now
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketTasks))
		return err
	}); err != nil {
		return nil, errors.NewQueueError("init bucket", err, "")
	}
	return &Store{db: db, now: clock}, nil
}

// OpenStore opens a dedicated queue database at path
func OpenStore(path string, clock func() time.Time) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.NewQueueError("open", err, "")
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.NewQueueError("open", err, "")
	}
	s, err := NewStore(db, clock)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Close releases the database if the store opened it
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Enqueue stores a new pending task for command
func (s *Store) Enqueue(command string) (Task, error) {
	now := s.now()
	task := Task{
		ID:            uuid.NewString(),
		Command:       command,
		State:         StatePending,
		CreatedAt:     now,
		UpdatedAt:     now,
		NextAttemptAt: now,
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketTasks))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		task.Seq = seq
		raw, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return b.Put([]byte(task.ID), raw)
	}); err != nil {
		return Task{}, errors.NewQueueError("enqueue", err, task.ID)
	}
	return task, nil
}

// Get returns the task with id, or an error wrapping errors.ErrNotFound
func (s *Store) Get(id string) (Task, error) {
	var task Task
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketTasks)).Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("task %s: %w", id, errors.ErrNotFound)
		}
		return json.Unmarshal(raw, &task)
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return Task{}, err
		}
		return Task{}, errors.NewQueueError("get", err, id)
	}
	return task, nil
}

// List returns tasks oldest first. An empty state lists all of them.
func (s *Store) List(state State) ([]Task, error) {
	return s.filter(func(t Task) bool { return state == "" || t.State == state })
}

// Due returns pending tasks whose next attempt is at or before now, oldest first
func (s *Store) Due(now time.Time) ([]Task, error) {
	return s.filter(func(t Task) bool {
		return t.State == StatePending && !t.NextAttemptAt.After(now)
	})
}

// Update writes task back, stamping UpdatedAt
func (s *Store) Update(task Task) error {
	task.UpdatedAt = s.now()
	return s.put(task)
}

// ResetRunning returns tasks interrupted mid-send to pending
func (s *Store) ResetRunning() (int, error) {
	reset := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketTasks))
		var interrupted []Task
		if err := b.ForEach(func(_, v []byte) error {
			var t Task
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if t.State == StateRunning {
				interrupted = append(interrupted, t)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, t := range interrupted {
			t.State = StatePending
			t.UpdatedAt = s.now()
			raw, err := json.Marshal(t)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(t.ID), raw); err != nil {
				return err
			}
		}
		reset = len(interrupted)
		return nil
	})
	if err != nil {
		return 0, errors.NewQueueError("reset running", err, "")
	}
	return reset, nil
}

func (s *Store) put(task Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return errors.NewQueueError("encode", err, task.ID)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketTasks)).Put([]byte(task.ID), raw)
	}); err != nil {
		return errors.NewQueueError("put", err, task.ID)
	}
	return nil
}

func (s *Store) filter(keep func(Task) bool) ([]Task, error) {
	var tasks []Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketTasks)).ForEach(func(_, v []byte) error {
			var t Task
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if keep(t) {
				tasks = append(tasks, t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.NewQueueError("list", err, "")
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Seq < tasks[j].Seq
	})
	return tasks, nil
}
