package queue

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/manojawesome/AQueueMan/internal/models"
	"github.com/manojawesome/AQueueMan/internal/snapshot"

	"github.com/google/uuid"
)

// Engine owns one tenant's queue state: business config, departments, the
// active token pool, the completed archive, and the token counter. A single
// mutex linearizes every mutator so the per-department invariants hold
// ("at most one serving token", waiting order); every mutator writes the
// full snapshot back through the store before returning.
type Engine struct {
	mu       sync.Mutex
	tenantID string
	store    snapshot.Store

	config      models.BusinessConfig
	departments []models.Department
	queue       []models.Token
	completed   []models.Token
	counter     int

	now func() time.Time
}

func NewEngine(tenantID string, store snapshot.Store, snap models.Snapshot) *Engine {
	counter := snap.TokenCounter
	if counter < 1 {
		counter = 1
	}
	e := &Engine{
		tenantID:    tenantID,
		store:       store,
		config:      snap.BusinessConfig,
		departments: snap.Departments,
		queue:       snap.Queue,
		completed:   snap.CompletedTokens,
		counter:     counter,
		now:         func() time.Time { return time.Now().UTC() },
	}
	e.sortQueue()
	return e
}

type GenerateTokenInput struct {
	CustomerName    string
	DepartmentID    string
	Priority        string
	AppointmentTime *time.Time
	ServiceType     string
}

type DepartmentSpec struct {
	Name        string
	Color       string
	AvgWaitTime int
	TokenPrefix string
}

// DepartmentUpdate carries a partial update; nil fields are left untouched.
type DepartmentUpdate struct {
	Name        *string
	Color       *string
	AvgWaitTime *int
	TokenPrefix *string
}

// GenerateToken allocates the next counter value, builds a waiting token for
// the department, and inserts it into the pool in priority order.
func (e *Engine) GenerateToken(ctx context.Context, input GenerateTokenInput) (models.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dept := e.findDepartment(input.DepartmentID)
	if dept == nil {
		return models.Token{}, ErrDepartmentNotFound
	}

	priority := input.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	prefix := dept.TokenPrefix
	if prefix == "" {
		prefix = fallbackPrefix(dept.ID)
	}

	prev := e.snapshotLocked()
	token := models.Token{
		ID:                fmt.Sprintf("%s-%03d", prefix, e.counter),
		Number:            e.counter,
		CustomerName:      input.CustomerName,
		DepartmentID:      dept.ID,
		DepartmentName:    dept.Name,
		Priority:          priority,
		Status:            models.StatusWaiting,
		CreatedAt:         e.now(),
		AppointmentTime:   input.AppointmentTime,
		ServiceType:       input.ServiceType,
		EstimatedWaitTime: dept.AvgWaitTime,
	}

	e.queue = append(e.queue, token)
	e.sortQueue()
	e.counter++

	if err := e.saveOrRevert(ctx, prev); err != nil {
		return models.Token{}, err
	}
	return token, nil
}

// CallNext promotes the head of the department's waiting sub-queue to
// serving and points the department's currentServing at it.
func (e *Engine) CallNext(ctx context.Context, departmentID string) (models.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, token := range e.queue {
		if token.DepartmentID == departmentID && token.Status == models.StatusWaiting {
			idx = i
			break
		}
	}
	if idx == -1 {
		return models.Token{}, ErrNoToken
	}

	prev := e.snapshotLocked()
	served := e.now()
	e.queue[idx].Status = models.StatusServing
	e.queue[idx].ServedAt = &served

	if dept := e.findDepartment(departmentID); dept != nil {
		id := e.queue[idx].ID
		dept.CurrentServing = &id
	}

	token := e.queue[idx]
	if err := e.saveOrRevert(ctx, prev); err != nil {
		return models.Token{}, err
	}
	return token, nil
}

// CompleteToken moves an active token to the head of the archive and clears
// its department's currentServing when it was the one being served.
// Completing an id that is no longer active reports ErrTokenNotFound and
// changes nothing.
func (e *Engine) CompleteToken(ctx context.Context, tokenID string) (models.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.findToken(tokenID)
	if idx == -1 {
		return models.Token{}, ErrTokenNotFound
	}

	prev := e.snapshotLocked()
	token := e.queue[idx]
	completed := e.now()
	token.Status = models.StatusCompleted
	token.CompletedAt = &completed

	e.queue = append(e.queue[:idx], e.queue[idx+1:]...)
	e.completed = append([]models.Token{token}, e.completed...)
	e.clearServing(token.ID)

	if err := e.saveOrRevert(ctx, prev); err != nil {
		return models.Token{}, err
	}
	return token, nil
}

// CancelToken discards an active token without archiving it. Cancelling the
// token a department is serving also clears the department's currentServing
// pointer, so the registry never references a removed token.
func (e *Engine) CancelToken(ctx context.Context, tokenID string) (models.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.findToken(tokenID)
	if idx == -1 {
		return models.Token{}, ErrTokenNotFound
	}

	prev := e.snapshotLocked()
	token := e.queue[idx]
	e.queue = append(e.queue[:idx], e.queue[idx+1:]...)
	e.clearServing(token.ID)

	if err := e.saveOrRevert(ctx, prev); err != nil {
		return models.Token{}, err
	}
	return token, nil
}

func (e *Engine) UpdateBusinessConfig(ctx context.Context, config models.BusinessConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.snapshotLocked()
	e.config = config
	return e.saveOrRevert(ctx, prev)
}

// AddDepartment appends a department with a fresh id and no serving token.
func (e *Engine) AddDepartment(ctx context.Context, spec DepartmentSpec) (models.Department, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.snapshotLocked()
	dept := models.Department{
		ID:          uuid.NewString(),
		Name:        spec.Name,
		Color:       spec.Color,
		AvgWaitTime: spec.AvgWaitTime,
		TokenPrefix: spec.TokenPrefix,
	}
	e.departments = append(e.departments, dept)

	if err := e.saveOrRevert(ctx, prev); err != nil {
		return models.Department{}, err
	}
	return dept, nil
}

func (e *Engine) UpdateDepartment(ctx context.Context, departmentID string, update DepartmentUpdate) (models.Department, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dept := e.findDepartment(departmentID)
	if dept == nil {
		return models.Department{}, ErrDepartmentNotFound
	}

	prev := e.snapshotLocked()
	if update.Name != nil {
		dept.Name = *update.Name
	}
	if update.Color != nil {
		dept.Color = *update.Color
	}
	if update.AvgWaitTime != nil {
		dept.AvgWaitTime = *update.AvgWaitTime
	}
	if update.TokenPrefix != nil {
		dept.TokenPrefix = *update.TokenPrefix
	}

	if err := e.saveOrRevert(ctx, prev); err != nil {
		return models.Department{}, err
	}
	return cloneDepartment(*dept), nil
}

// RemoveDepartment deletes the department and discards every active token
// that references it. Discarded tokens are not archived.
func (e *Engine) RemoveDepartment(ctx context.Context, departmentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i := range e.departments {
		if e.departments[i].ID == departmentID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrDepartmentNotFound
	}

	prev := e.snapshotLocked()
	e.departments = append(e.departments[:idx], e.departments[idx+1:]...)

	kept := e.queue[:0]
	for _, token := range e.queue {
		if token.DepartmentID != departmentID {
			kept = append(kept, token)
		}
	}
	e.queue = kept

	return e.saveOrRevert(ctx, prev)
}

// GetDepartmentQueue returns all active tokens of the department, in queue
// order.
func (e *Engine) GetDepartmentQueue(departmentID string) []models.Token {
	e.mu.Lock()
	defer e.mu.Unlock()

	var tokens []models.Token
	for _, token := range e.queue {
		if token.DepartmentID == departmentID {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// GetTokenPosition returns the 1-based rank of a waiting token among its
// department's waiting tokens, and 0 for anything not actively waiting.
func (e *Engine) GetTokenPosition(tokenID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.findToken(tokenID)
	if idx == -1 || e.queue[idx].Status != models.StatusWaiting {
		return 0
	}

	position := 0
	for _, token := range e.queue {
		if token.DepartmentID != e.queue[idx].DepartmentID || token.Status != models.StatusWaiting {
			continue
		}
		position++
		if token.ID == tokenID {
			return position
		}
	}
	return 0
}

func (e *Engine) GetQueueStats() models.QueueStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := models.QueueStats{TotalCompleted: len(e.completed)}
	for _, token := range e.queue {
		switch token.Status {
		case models.StatusWaiting:
			stats.TotalWaiting++
		case models.StatusServing:
			stats.TotalServing++
		}
	}
	if len(e.departments) > 0 {
		total := 0
		for _, dept := range e.departments {
			total += dept.AvgWaitTime
		}
		stats.AvgWaitTime = int(math.Round(float64(total) / float64(len(e.departments))))
	}
	return stats
}

// FindToken searches active tokens first, then the archive, matching token
// ids case-insensitively by substring.
func (e *Engine) FindToken(query string) (models.Token, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return models.Token{}, false
	}
	for _, token := range e.queue {
		if strings.Contains(strings.ToLower(token.ID), needle) {
			return token, true
		}
	}
	for _, token := range e.completed {
		if strings.Contains(strings.ToLower(token.ID), needle) {
			return token, true
		}
	}
	return models.Token{}, false
}

func (e *Engine) GetDepartment(departmentID string) (models.Department, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dept := e.findDepartment(departmentID)
	if dept == nil {
		return models.Department{}, false
	}
	return cloneDepartment(*dept), true
}

// Departments returns the registry in insertion order.
func (e *Engine) Departments() []models.Department {
	e.mu.Lock()
	defer e.mu.Unlock()

	departments := make([]models.Department, 0, len(e.departments))
	for _, dept := range e.departments {
		departments = append(departments, cloneDepartment(dept))
	}
	return departments
}

func (e *Engine) BusinessConfig() models.BusinessConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// CompletedTokens returns the archive, most recently completed first.
func (e *Engine) CompletedTokens() []models.Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Token(nil), e.completed...)
}

// Snapshot returns a copy of the full durable state.
func (e *Engine) Snapshot() models.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() models.Snapshot {
	departments := make([]models.Department, 0, len(e.departments))
	for _, dept := range e.departments {
		departments = append(departments, cloneDepartment(dept))
	}
	return models.Snapshot{
		BusinessConfig:  e.config,
		Departments:     departments,
		Queue:           append([]models.Token(nil), e.queue...),
		CompletedTokens: append([]models.Token(nil), e.completed...),
		TokenCounter:    e.counter,
	}
}

// saveOrRevert persists the mutated state; on failure it restores the
// pre-mutation snapshot so memory never drifts ahead of storage.
func (e *Engine) saveOrRevert(ctx context.Context, prev models.Snapshot) error {
	if err := e.store.Save(ctx, e.tenantID, e.snapshotLocked()); err != nil {
		e.config = prev.BusinessConfig
		e.departments = prev.Departments
		e.queue = prev.Queue
		e.completed = prev.CompletedTokens
		e.counter = prev.TokenCounter
		return err
	}
	return nil
}

// sortQueue re-applies the ordering rule to the whole active pool: priority
// rank descending, then creation time ascending, then token number ascending.
func (e *Engine) sortQueue() {
	sort.SliceStable(e.queue, func(i, j int) bool {
		a, b := e.queue[i], e.queue[j]
		if ra, rb := models.PriorityRank(a.Priority), models.PriorityRank(b.Priority); ra != rb {
			return ra > rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Number < b.Number
	})
}

func (e *Engine) findToken(tokenID string) int {
	for i, token := range e.queue {
		if token.ID == tokenID {
			return i
		}
	}
	return -1
}

func (e *Engine) findDepartment(departmentID string) *models.Department {
	for i := range e.departments {
		if e.departments[i].ID == departmentID {
			return &e.departments[i]
		}
	}
	return nil
}

func (e *Engine) clearServing(tokenID string) {
	for i := range e.departments {
		if e.departments[i].CurrentServing != nil && *e.departments[i].CurrentServing == tokenID {
			e.departments[i].CurrentServing = nil
		}
	}
}

func cloneDepartment(dept models.Department) models.Department {
	if dept.CurrentServing != nil {
		id := *dept.CurrentServing
		dept.CurrentServing = &id
	}
	return dept
}

func fallbackPrefix(departmentID string) string {
	prefix := departmentID
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return strings.ToUpper(prefix)
}
