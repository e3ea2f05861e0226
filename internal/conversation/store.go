package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"

	"chefassist/internal/channel"
)

var (
	ErrNoActiveThread = errors.New("no active thread for scope")
	ErrThreadNotFound = errors.New("thread not found")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Scope identifies a conversation. Channel is part of the identity: the same
// chef and context on two channels are two independent threads.
type Scope struct {
	ChefID      string
	ContextType string
	ContextID   string
	Channel     channel.Channel
}

func (s Scope) key() string {
	return s.ChefID + "\x00" + s.ContextType + "\x00" + s.ContextID + "\x00" + string(s.Channel)
}

// Thread is a persisted conversation. At most one thread per scope is active.
type Thread struct {
	ID          string `gorm:"primary_key;type:varchar(36)"`
	ChefID      string `gorm:"not null;index:idx_conversation_threads_scope"`
	ContextType string `gorm:"not null;index:idx_conversation_threads_scope"`
	ContextID   string `gorm:"not null;index:idx_conversation_threads_scope"`
	Channel     string `gorm:"not null;index:idx_conversation_threads_scope"`
	Active      bool   `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Thread) TableName() string { return "conversation_threads" }

func (t Thread) Scope() Scope {
	return Scope{ChefID: t.ChefID, ContextType: t.ContextType, ContextID: t.ContextID, Channel: channel.Channel(t.Channel)}
}

// Turn is one message in a thread. Turns are append-only.
type Turn struct {
	ID        uint   `gorm:"primary_key"`
	ThreadID  string `gorm:"not null;index:idx_conversation_turns_thread"`
	Role      Role   `gorm:"not null;type:varchar(16)"`
	Content   string `gorm:"type:text"`
	CreatedAt time.Time
}

func (Turn) TableName() string { return "conversation_turns" }

// Store persists threads and turns. Writes for one scope are serialized, so a
// thread's turns always carry strictly increasing timestamps.
type Store struct {
	db    *gorm.DB
	clock func() time.Time

	mu    sync.Mutex
	locks map[string]*scopeLock
}

// scopeLock is dropped from the map once nobody holds or waits for it.
type scopeLock struct {
	mu   sync.Mutex
	refs int
}

type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// NewStore does not migrate; call Migrate once at startup.
func NewStore(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, clock: time.Now, locks: make(map[string]*scopeLock)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the tables plus a partial unique index that makes a second
// active thread per scope impossible at the database level.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Thread{}, &Turn{}).Error; err != nil {
		return fmt.Errorf("migrate conversation tables: %w", err)
	}
	err := s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_conversation_threads_active
		ON conversation_threads (chef_id, context_type, context_id, channel) WHERE active`).Error
	if err != nil {
		return fmt.Errorf("create active thread index: %w", err)
	}
	return nil
}

func (s *Store) lock(sc Scope) func() {
	key := sc.key()
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &scopeLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// ActiveThread returns the scope's active thread without creating one.
func (s *Store) ActiveThread(ctx context.Context, sc Scope) (Thread, error) {
	if err := ctx.Err(); err != nil {
		return Thread{}, err
	}
	return findActive(s.db, sc)
}

// GetOrCreateActiveThread returns the active thread for a scope, creating it on
// first use.
func (s *Store) GetOrCreateActiveThread(ctx context.Context, sc Scope) (Thread, error) {
	if err := ctx.Err(); err != nil {
		return Thread{}, err
	}
	defer s.lock(sc)()

	var thread Thread
	err := s.inTx(func(tx *gorm.DB) error {
		var err error
		thread, err = getOrCreate(tx, sc, s.now())
		return err
	})
	return thread, err
}

// StartNewConversation deactivates the scope's active thread and creates a new
// active one in the same transaction. Earlier threads keep their history.
func (s *Store) StartNewConversation(ctx context.Context, sc Scope) (Thread, error) {
	if err := ctx.Err(); err != nil {
		return Thread{}, err
	}
	defer s.lock(sc)()

	var thread Thread
	err := s.inTx(func(tx *gorm.DB) error {
		err := tx.Model(&Thread{}).
			Where("chef_id = ? AND context_type = ? AND context_id = ? AND channel = ? AND active = ?",
				sc.ChefID, sc.ContextType, sc.ContextID, string(sc.Channel), true).
			Update("active", false).Error
		if err != nil {
			return fmt.Errorf("deactivate thread: %w", err)
		}
		thread, err = create(tx, sc, s.now())
		return err
	})
	return thread, err
}

// AppendTurn adds one message to a thread.
func (s *Store) AppendTurn(ctx context.Context, threadID string, role Role, content string) (Turn, error) {
	if err := ctx.Err(); err != nil {
		return Turn{}, err
	}
	var thread Thread
	if err := s.db.Where("id = ?", threadID).First(&thread).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return Turn{}, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
		}
		return Turn{}, fmt.Errorf("load thread: %w", err)
	}
	defer s.lock(thread.Scope())()

	var turn Turn
	err := s.inTx(func(tx *gorm.DB) error {
		var err error
		turn, err = appendTurn(tx, threadID, role, content, s.now())
		return err
	})
	return turn, err
}

// AppendExchange writes a user message and the assistant reply to the scope's
// active thread as one unit, creating the thread if needed.
func (s *Store) AppendExchange(ctx context.Context, sc Scope, user, assistant string) (Thread, error) {
	if err := ctx.Err(); err != nil {
		return Thread{}, err
	}
	defer s.lock(sc)()

	var thread Thread
	err := s.inTx(func(tx *gorm.DB) error {
		var err error
		now := s.now()
		if thread, err = getOrCreate(tx, sc, now); err != nil {
			return err
		}
		if _, err = appendTurn(tx, thread.ID, RoleUser, user, now); err != nil {
			return err
		}
		_, err = appendTurn(tx, thread.ID, RoleAssistant, assistant, now)
		return err
	})
	return thread, err
}

// History returns a thread's turns oldest first.
func (s *Store) History(ctx context.Context, threadID string) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var turns []Turn
	err := s.db.Where("thread_id = ?", threadID).Order("created_at asc").Order("id asc").Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return turns, nil
}

// Threads lists every thread of a scope, newest first.
func (s *Store) Threads(ctx context.Context, sc Scope) ([]Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var threads []Thread
	err := scoped(s.db, sc).Order("created_at desc").Find(&threads).Error
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return threads, nil
}

func (s *Store) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

// inTx runs fn in a transaction. fn must only use the tx handle: with a
// single-connection pool any query on s.db would wait forever.
func (s *Store) inTx(fn func(tx *gorm.DB) error) error {
	tx := s.db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin transaction: %w", tx.Error)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func scoped(db *gorm.DB, sc Scope) *gorm.DB {
	return db.Where("chef_id = ? AND context_type = ? AND context_id = ? AND channel = ?",
		sc.ChefID, sc.ContextType, sc.ContextID, string(sc.Channel))
}

func findActive(db *gorm.DB, sc Scope) (Thread, error) {
	var thread Thread
	err := scoped(db, sc).Where("active = ?", true).First(&thread).Error
	if gorm.IsRecordNotFoundError(err) {
		return Thread{}, ErrNoActiveThread
	}
	if err != nil {
		return Thread{}, fmt.Errorf("load active thread: %w", err)
	}
	return thread, nil
}

func getOrCreate(tx *gorm.DB, sc Scope, now time.Time) (Thread, error) {
	thread, err := findActive(tx, sc)
	if err == nil {
		return thread, nil
	}
	if !errors.Is(err, ErrNoActiveThread) {
		return Thread{}, err
	}
	return create(tx, sc, now)
}

func create(tx *gorm.DB, sc Scope, now time.Time) (Thread, error) {
	thread := Thread{
		ID:          uuid.NewString(),
		ChefID:      sc.ChefID,
		ContextType: sc.ContextType,
		ContextID:   sc.ContextID,
		Channel:     string(sc.Channel),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Create(&thread).Error; err != nil {
		return Thread{}, fmt.Errorf("create thread: %w", err)
	}
	return thread, nil
}

// appendTurn stamps the turn strictly after the thread's latest turn, so a
// coarse or repeated clock cannot reorder history.
func appendTurn(tx *gorm.DB, threadID string, role Role, content string, now time.Time) (Turn, error) {
	var last Turn
	err := tx.Where("thread_id = ?", threadID).Order("created_at desc").Order("id desc").First(&last).Error
	if err != nil && !gorm.IsRecordNotFoundError(err) {
		return Turn{}, fmt.Errorf("load last turn: %w", err)
	}
	if err == nil && !now.After(last.CreatedAt) {
		now = last.CreatedAt.Add(time.Microsecond)
	}
	turn := Turn{ThreadID: threadID, Role: role, Content: content, CreatedAt: now}
	if err := tx.Create(&turn).Error; err != nil {
		return Turn{}, fmt.Errorf("append turn: %w", err)
	}
	return turn, nil
}
