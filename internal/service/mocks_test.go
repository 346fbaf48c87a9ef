package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/edupaila/community-server-go/internal/database"
	"github.com/edupaila/community-server-go/internal/mailer"
	"github.com/edupaila/community-server-go/internal/model"
	"github.com/edupaila/community-server-go/internal/repository"
	"github.com/edupaila/community-server-go/internal/sse"
)

// memPasscodeRepo keeps passcodes in memory with the same unused-row
// semantics as the SQL implementation.
type memPasscodeRepo struct {
	mu     sync.Mutex
	rows   []*model.Passcode
	seq    int
	locked []string
	err    error
}

func newMemPasscodeRepo() *memPasscodeRepo {
	return &memPasscodeRepo{}
}

func (r *memPasscodeRepo) WithTx(tx *sqlx.Tx) repository.PasscodeRepository {
	return r
}

func (r *memPasscodeRepo) LockOwner(ctx context.Context, owner string, purpose model.PasscodePurpose) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = append(r.locked, string(purpose)+":"+owner)
	return r.err
}

func (r *memPasscodeRepo) DeleteUnused(ctx context.Context, owner string, purpose model.PasscodePurpose) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	var kept []*model.Passcode
	var n int64
	for _, p := range r.rows {
		if p.Owner == owner && p.Purpose == purpose && p.UsedAt == nil {
			n++
			continue
		}
		kept = append(kept, p)
	}
	r.rows = kept
	return n, nil
}

func (r *memPasscodeRepo) Create(ctx context.Context, params model.CreatePasscodeParams) (*model.Passcode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.seq++
	p := &model.Passcode{
		ID:        fmt.Sprintf("pc-%d", r.seq),
		Owner:     params.Owner,
		Code:      params.Code,
		Purpose:   params.Purpose,
		ExpiresAt: params.ExpiresAt,
		CreatedAt: time.Now(),
	}
	r.rows = append(r.rows, p)
	cp := *p
	return &cp, nil
}

func (r *memPasscodeRepo) FindUnused(ctx context.Context, owner string, purpose model.PasscodePurpose, code string) (*model.Passcode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for i := len(r.rows) - 1; i >= 0; i-- {
		p := r.rows[i]
		if p.Owner == owner && p.Purpose == purpose && p.Code == code && p.UsedAt == nil {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memPasscodeRepo) MarkUsed(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	for _, p := range r.rows {
		if p.ID == id && p.UsedAt == nil {
			now := time.Now()
			p.UsedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (r *memPasscodeRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.rows {
		if p.ID == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *memPasscodeRepo) DeleteStale(ctx context.Context, usedBefore time.Time) (int64, error) {
	return 0, nil
}

func (r *memPasscodeRepo) unused(owner string, purpose model.PasscodePurpose) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.rows {
		if p.Owner == owner && p.Purpose == purpose && p.UsedAt == nil {
			n++
		}
	}
	return n
}

// expire backdates every stored passcode.
func (r *memPasscodeRepo) expire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rows {
		p.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

// inlineTx runs the callback without a real transaction.
type inlineTx struct {
	mu sync.Mutex
}

func (t *inlineTx) WithTx(ctx context.Context, fn database.TxFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(nil)
}

type mockAccountRepo struct {
	mock.Mock
}

func (m *mockAccountRepo) WithTx(tx *sqlx.Tx) repository.AccountRepository {
	return m
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *mockAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *mockAccountRepo) FindByEmails(ctx context.Context, emails []string) ([]model.Account, error) {
	args := m.Called(ctx, emails)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Account), args.Error(1)
}

func (m *mockAccountRepo) ListEmailsByRole(ctx context.Context, role model.Role) ([]string, error) {
	args := m.Called(ctx, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockAccountRepo) Create(ctx context.Context, params model.CreateAccountParams) (*model.Account, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *mockAccountRepo) UpsertVerified(ctx context.Context, email, displayName string) (*model.Account, error) {
	args := m.Called(ctx, email, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *mockAccountRepo) EnsureAdmin(ctx context.Context, email, displayName string) (*model.Account, error) {
	args := m.Called(ctx, email, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

type mockBroadcastRepo struct {
	mock.Mock
}

func (m *mockBroadcastRepo) Create(ctx context.Context, params model.CreateBroadcastParams) (*model.Broadcast, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Broadcast), args.Error(1)
}

func (m *mockBroadcastRepo) FindByID(ctx context.Context, id string) (*model.Broadcast, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Broadcast), args.Error(1)
}

func (m *mockBroadcastRepo) FindAll(ctx context.Context, limit, offset int) ([]model.Broadcast, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Broadcast), args.Error(1)
}

func (m *mockBroadcastRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Verify(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockMailer) Send(ctx context.Context, msg mailer.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

// sentTo returns the recipients of every Send call in order.
func (m *mockMailer) sentTo() []string {
	var out []string
	for _, c := range m.Calls {
		if c.Method == "Send" {
			out = append(out, c.Arguments.Get(1).(mailer.Message).To)
		}
	}
	return out
}

type stubLimiter struct {
	allowed bool
	keys    []string
}

func (l *stubLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	l.keys = append(l.keys, key)
	return l.allowed, time.Now().Add(window)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []sse.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, operatorID string, event sse.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

