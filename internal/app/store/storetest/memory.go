// Package storetest provides an in-memory store.Store for service tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fatflowers/subscriptions/internal/app/store"
	"github.com/fatflowers/subscriptions/internal/models"
	"github.com/fatflowers/subscriptions/pkg/types"
)

type state struct {
	users map[string]models.User
	plans map[string]models.Plan
	subs  map[string]models.Subscription
}

func (s *state) clone() *state {
	c := &state{
		users: make(map[string]models.User, len(s.users)),
		plans: make(map[string]models.Plan, len(s.plans)),
		subs:  make(map[string]models.Subscription, len(s.subs)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.plans {
		c.plans[k] = v
	}
	for k, v := range s.subs {
		c.subs[k] = *v.Clone()
	}
	return c
}

// Memory is a transactional in-memory store. Transactions are serialized and run
// against a copy of the state that replaces the original only on success.
type Memory struct {
	mu    sync.Mutex
	state *state
	fail  map[string]error
}

func NewMemory() *Memory {
	return &Memory{
		state: &state{
			users: map[string]models.User{},
			plans: map[string]models.Plan{},
			subs:  map[string]models.Subscription{},
		},
		fail: map[string]error{},
	}
}

// FailOn makes every call of the named method return err until cleared with a nil err.
func (m *Memory) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, method)
		return
	}
	m.fail[method] = err
}

func (m *Memory) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{st: m.state.clone(), fail: m.fail}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.st
	return nil
}

// auto runs a single operation in its own transaction.
func (m *Memory) auto(fn func(tx *memTx) error) error {
	return m.Transaction(context.Background(), func(tx store.Store) error {
		return fn(tx.(*memTx))
	})
}

func (m *Memory) GetUser(ctx context.Context, id string) (u *models.User, err error) {
	err = m.auto(func(tx *memTx) error { u, err = tx.GetUser(ctx, id); return err })
	return u, err
}

func (m *Memory) GetUserByLogin(ctx context.Context, login string) (u *models.User, err error) {
	err = m.auto(func(tx *memTx) error { u, err = tx.GetUserByLogin(ctx, login); return err })
	return u, err
}

func (m *Memory) CreateUser(ctx context.Context, u *models.User) error {
	return m.auto(func(tx *memTx) error { return tx.CreateUser(ctx, u) })
}

func (m *Memory) GetPlan(ctx context.Context, id string) (p *models.Plan, err error) {
	err = m.auto(func(tx *memTx) error { p, err = tx.GetPlan(ctx, id); return err })
	return p, err
}

func (m *Memory) GetPlanByName(ctx context.Context, name string) (p *models.Plan, err error) {
	err = m.auto(func(tx *memTx) error { p, err = tx.GetPlanByName(ctx, name); return err })
	return p, err
}

func (m *Memory) ListPlans(ctx context.Context, activeOnly bool, page types.Page) (ps []*models.Plan, err error) {
	err = m.auto(func(tx *memTx) error { ps, err = tx.ListPlans(ctx, activeOnly, page); return err })
	return ps, err
}

func (m *Memory) CreatePlan(ctx context.Context, p *models.Plan) error {
	return m.auto(func(tx *memTx) error { return tx.CreatePlan(ctx, p) })
}

func (m *Memory) UpdatePlan(ctx context.Context, p *models.Plan) error {
	return m.auto(func(tx *memTx) error { return tx.UpdatePlan(ctx, p) })
}

func (m *Memory) DeletePlan(ctx context.Context, id string) error {
	return m.auto(func(tx *memTx) error { return tx.DeletePlan(ctx, id) })
}

func (m *Memory) CountSubscriptionsByPlan(ctx context.Context, planID string) (n int64, err error) {
	err = m.auto(func(tx *memTx) error { n, err = tx.CountSubscriptionsByPlan(ctx, planID); return err })
	return n, err
}

func (m *Memory) GetSubscription(ctx context.Context, id string) (s *models.Subscription, err error) {
	err = m.auto(func(tx *memTx) error { s, err = tx.GetSubscription(ctx, id); return err })
	return s, err
}

func (m *Memory) GetActiveSubscription(ctx context.Context, userID string) (s *models.Subscription, err error) {
	err = m.auto(func(tx *memTx) error { s, err = tx.GetActiveSubscription(ctx, userID); return err })
	return s, err
}

func (m *Memory) ListSubscriptions(ctx context.Context, q store.SubscriptionQuery) (ss []*models.Subscription, err error) {
	err = m.auto(func(tx *memTx) error { ss, err = tx.ListSubscriptions(ctx, q); return err })
	return ss, err
}

func (m *Memory) CreateSubscription(ctx context.Context, s *models.Subscription) error {
	return m.auto(func(tx *memTx) error { return tx.CreateSubscription(ctx, s) })
}

func (m *Memory) UpdateSubscription(ctx context.Context, s *models.Subscription) error {
	return m.auto(func(tx *memTx) error { return tx.UpdateSubscription(ctx, s) })
}

func (m *Memory) ListOverdueSubscriptions(ctx context.Context, now time.Time) (ss []*models.Subscription, err error) {
	err = m.auto(func(tx *memTx) error { ss, err = tx.ListOverdueSubscriptions(ctx, now); return err })
	return ss, err
}

// memTx operates on a private copy of the state; it is never shared between goroutines.
type memTx struct {
	st   *state
	fail map[string]error
}

func (t *memTx) check(method string) error {
	if err, ok := t.fail[method]; ok {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Transaction on a transaction-bound store joins the outer transaction.
func (t *memTx) Transaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func notFound(what string) error {
	return fmt.Errorf("get %s: %w", what, store.ErrNotFound)
}

func (t *memTx) GetUser(_ context.Context, id string) (*models.User, error) {
	if err := t.check("GetUser"); err != nil {
		return nil, err
	}
	u, ok := t.st.users[id]
	if !ok {
		return nil, notFound("user")
	}
	return &u, nil
}

func (t *memTx) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	if err := t.check("GetUserByLogin"); err != nil {
		return nil, err
	}
	for _, u := range t.st.users {
		if u.Username == login || u.Email == login {
			return &u, nil
		}
	}
	return nil, notFound("user")
}

func (t *memTx) CreateUser(_ context.Context, u *models.User) error {
	if err := t.check("CreateUser"); err != nil {
		return err
	}
	for _, existing := range t.st.users {
		if existing.ID == u.ID || existing.Email == u.Email || existing.Username == u.Username {
			return fmt.Errorf("create user: %w", store.ErrDuplicate)
		}
	}
	stampCreate(&u.CreatedAt, &u.UpdatedAt)
	t.st.users[u.ID] = *u
	return nil
}

func (t *memTx) GetPlan(_ context.Context, id string) (*models.Plan, error) {
	if err := t.check("GetPlan"); err != nil {
		return nil, err
	}
	p, ok := t.st.plans[id]
	if !ok {
		return nil, notFound("plan")
	}
	return &p, nil
}

func (t *memTx) GetPlanByName(_ context.Context, name string) (*models.Plan, error) {
	if err := t.check("GetPlanByName"); err != nil {
		return nil, err
	}
	for _, p := range t.st.plans {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, notFound("plan")
}

func (t *memTx) ListPlans(_ context.Context, activeOnly bool, page types.Page) ([]*models.Plan, error) {
	if err := t.check("ListPlans"); err != nil {
		return nil, err
	}
	var out []*models.Plan
	for _, p := range t.st.plans {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, page), nil
}

func (t *memTx) CreatePlan(_ context.Context, p *models.Plan) error {
	if err := t.check("CreatePlan"); err != nil {
		return err
	}
	for _, existing := range t.st.plans {
		if existing.ID == p.ID || existing.Name == p.Name {
			return fmt.Errorf("create plan: %w", store.ErrDuplicate)
		}
	}
	stampCreate(&p.CreatedAt, &p.UpdatedAt)
	t.st.plans[p.ID] = *p
	return nil
}

func (t *memTx) UpdatePlan(_ context.Context, p *models.Plan) error {
	if err := t.check("UpdatePlan"); err != nil {
		return err
	}
	old, ok := t.st.plans[p.ID]
	if !ok {
		return fmt.Errorf("update plan: %w", store.ErrNotFound)
	}
	for _, existing := range t.st.plans {
		if existing.ID != p.ID && existing.Name == p.Name {
			return fmt.Errorf("update plan: %w", store.ErrDuplicate)
		}
	}
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	t.st.plans[p.ID] = *p
	return nil
}

func (t *memTx) DeletePlan(_ context.Context, id string) error {
	if err := t.check("DeletePlan"); err != nil {
		return err
	}
	if _, ok := t.st.plans[id]; !ok {
		return fmt.Errorf("delete plan: %w", store.ErrNotFound)
	}
	delete(t.st.plans, id)
	return nil
}

func (t *memTx) CountSubscriptionsByPlan(_ context.Context, planID string) (int64, error) {
	if err := t.check("CountSubscriptionsByPlan"); err != nil {
		return 0, err
	}
	var n int64
	for _, s := range t.st.subs {
		if s.PlanID == planID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) GetSubscription(_ context.Context, id string) (*models.Subscription, error) {
	if err := t.check("GetSubscription"); err != nil {
		return nil, err
	}
	s, ok := t.st.subs[id]
	if !ok {
		return nil, notFound("subscription")
	}
	return s.Clone(), nil
}

func (t *memTx) GetActiveSubscription(_ context.Context, userID string) (*models.Subscription, error) {
	if err := t.check("GetActiveSubscription"); err != nil {
		return nil, err
	}
	for _, s := range t.st.subs {
		if s.UserID == userID && s.Status == types.SubscriptionStatusActive {
			return s.Clone(), nil
		}
	}
	return nil, notFound("subscription")
}

func (t *memTx) ListSubscriptions(_ context.Context, q store.SubscriptionQuery) ([]*models.Subscription, error) {
	if err := t.check("ListSubscriptions"); err != nil {
		return nil, err
	}
	var out []*models.Subscription
	for _, s := range t.st.subs {
		if q.UserID != "" && s.UserID != q.UserID {
			continue
		}
		if q.PlanID != "" && s.PlanID != q.PlanID {
			continue
		}
		if q.Status != "" && s.Status != q.Status {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, q.Page), nil
}

// violatesSingleActive mirrors the partial unique index on subscription(user_id) WHERE status='active'.
func (t *memTx) violatesSingleActive(s *models.Subscription) bool {
	if s.Status != types.SubscriptionStatusActive {
		return false
	}
	for _, existing := range t.st.subs {
		if existing.ID != s.ID && existing.UserID == s.UserID && existing.Status == types.SubscriptionStatusActive {
			return true
		}
	}
	return false
}

func (t *memTx) CreateSubscription(_ context.Context, s *models.Subscription) error {
	if err := t.check("CreateSubscription"); err != nil {
		return err
	}
	if _, ok := t.st.subs[s.ID]; ok || t.violatesSingleActive(s) {
		return fmt.Errorf("create subscription: %w", store.ErrDuplicate)
	}
	stampCreate(&s.CreatedAt, &s.UpdatedAt)
	t.st.subs[s.ID] = *s.Clone()
	return nil
}

func (t *memTx) UpdateSubscription(_ context.Context, s *models.Subscription) error {
	if err := t.check("UpdateSubscription"); err != nil {
		return err
	}
	old, ok := t.st.subs[s.ID]
	if !ok {
		return fmt.Errorf("update subscription: %w", store.ErrNotFound)
	}
	if t.violatesSingleActive(s) {
		return fmt.Errorf("update subscription: %w", store.ErrDuplicate)
	}
	s.UserID = old.UserID
	s.CreatedAt = old.CreatedAt
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	t.st.subs[s.ID] = *s.Clone()
	return nil
}

func (t *memTx) ListOverdueSubscriptions(_ context.Context, now time.Time) ([]*models.Subscription, error) {
	if err := t.check("ListOverdueSubscriptions"); err != nil {
		return nil, err
	}
	var out []*models.Subscription
	for _, s := range t.st.subs {
		if s.Status == types.SubscriptionStatusActive && s.EndDate.Before(now) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return out, nil
}

func stampCreate(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = *created
	}
}

func paginate[T any](items []T, page types.Page) []T {
	page = page.Normalize()
	if page.Skip >= len(items) {
		return nil
	}
	end := min(page.Skip+page.Limit, len(items))
	return items[page.Skip:end]
}

var _ store.Store = (*Memory)(nil)
var _ store.Store = (*memTx)(nil)
