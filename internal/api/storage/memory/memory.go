// Package memory is an in-process storage.Repository for local development
// and tests. Operations are serialised; WithTx snapshots the whole dataset
// and restores it when the callback fails.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/cuongbtq/gigmarket-be/internal/api/storage"
)

type dataset struct {
	users        map[string]model.User
	jobs         map[string]model.Job
	applications map[string]model.Application
	submissions  map[string]model.Submission
	messages     map[string]model.Message
	escrows      map[string]model.Escrow
}

func newDataset() *dataset {
	return &dataset{
		users:        map[string]model.User{},
		jobs:         map[string]model.Job{},
		applications: map[string]model.Application{},
		submissions:  map[string]model.Submission{},
		messages:     map[string]model.Message{},
		escrows:      map[string]model.Escrow{},
	}
}

func (d *dataset) clone() *dataset {
	return &dataset{
		users:        maps.Clone(d.users),
		jobs:         maps.Clone(d.jobs),
		applications: maps.Clone(d.applications),
		submissions:  maps.Clone(d.submissions),
		messages:     maps.Clone(d.messages),
		escrows:      maps.Clone(d.escrows),
	}
}

type shared struct {
	txMu sync.Mutex
	data *dataset
}

// Store implements storage.Repository in memory.
type Store struct {
	s    *shared
	inTx bool
}

var _ storage.Repository = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{s: &shared{data: newDataset()}}
}

func (m *Store) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.s.txMu.Lock()
	return m.s.txMu.Unlock
}

// WithTx serialises fn against every other operation on the store.
func (m *Store) WithTx(ctx context.Context, fn func(tx storage.Repository) error) error {
	if m.inTx {
		return fn(m)
	}

	m.s.txMu.Lock()
	defer m.s.txMu.Unlock()

	snapshot := m.s.data.clone()
	if err := fn(&Store{s: m.s, inTx: true}); err != nil {
		m.s.data = snapshot
		return err
	}
	return nil
}

func (m *Store) UpsertUser(ctx context.Context, user *model.User) error {
	defer m.lock()()

	u := cloneUser(*user)
	if existing, ok := m.s.data.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
		u.Role = existing.Role
	}
	m.s.data.users[u.ID] = u
	return nil
}

func (m *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	defer m.lock()()

	u, ok := m.s.data.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	u = cloneUser(u)
	return &u, nil
}

func (m *Store) GetUsers(ctx context.Context, ids []string) (map[string]model.User, error) {
	defer m.lock()()

	out := make(map[string]model.User, len(ids))
	for _, id := range ids {
		if u, ok := m.s.data.users[id]; ok {
			out[id] = cloneUser(u)
		}
	}
	return out, nil
}

func (m *Store) CreateJob(ctx context.Context, job *model.Job) error {
	defer m.lock()()

	if _, ok := m.s.data.jobs[job.ID]; ok {
		return fmt.Errorf("create job: %w", storage.ErrDuplicate)
	}
	m.s.data.jobs[job.ID] = cloneJob(*job)
	return nil
}

func (m *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	defer m.lock()()
	return m.getJob(id)
}

func (m *Store) GetJobForUpdate(ctx context.Context, id string) (*model.Job, error) {
	defer m.lock()()
	return m.getJob(id)
}

func (m *Store) getJob(id string) (*model.Job, error) {
	j, ok := m.s.data.jobs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	j = cloneJob(j)
	return &j, nil
}

func (m *Store) UpdateJob(ctx context.Context, job *model.Job) error {
	defer m.lock()()

	existing, ok := m.s.data.jobs[job.ID]
	if !ok {
		return storage.ErrNotFound
	}
	j := cloneJob(*job)
	j.EmployerID = existing.EmployerID
	j.CreatedAt = existing.CreatedAt
	m.s.data.jobs[job.ID] = j
	return nil
}

func (m *Store) DeleteJob(ctx context.Context, id string) error {
	defer m.lock()()

	if _, ok := m.s.data.jobs[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.s.data.jobs, id)
	return nil
}

func (m *Store) ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, error) {
	defer m.lock()()

	keyword := strings.ToLower(filter.Keyword)
	var jobs []model.Job
	for _, j := range m.s.data.jobs {
		if filter.Domain != "" && j.Domain != filter.Domain {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.EmployerID != "" && j.EmployerID != filter.EmployerID {
			continue
		}
		if keyword != "" && !matchesKeyword(j, keyword) {
			continue
		}
		if c := filter.Cursor; c != nil && !before(j, c) {
			continue
		}
		jobs = append(jobs, cloneJob(j))
	}

	slices.SortFunc(jobs, func(a, b model.Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})

	if limit := filter.PageSize + 1; len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// before reports whether j sorts after the cursor in newest-first order.
func before(j model.Job, c *storage.JobCursor) bool {
	if j.CreatedAt.Equal(c.CreatedAt) {
		return j.ID < c.JobID
	}
	return j.CreatedAt.Before(c.CreatedAt)
}

func matchesKeyword(j model.Job, keyword string) bool {
	if strings.Contains(strings.ToLower(j.Title), keyword) ||
		strings.Contains(strings.ToLower(j.Description), keyword) {
		return true
	}
	for _, skill := range j.Skills {
		if strings.Contains(strings.ToLower(skill), keyword) {
			return true
		}
	}
	return false
}

func (m *Store) GetJobsByIDs(ctx context.Context, ids []string) (map[string]model.Job, error) {
	defer m.lock()()

	out := make(map[string]model.Job, len(ids))
	for _, id := range ids {
		if j, ok := m.s.data.jobs[id]; ok {
			out[id] = cloneJob(j)
		}
	}
	return out, nil
}

func (m *Store) CreateApplication(ctx context.Context, app *model.Application) error {
	defer m.lock()()

	for _, a := range m.s.data.applications {
		if a.JobID == app.JobID && a.FreelancerID == app.FreelancerID {
			return fmt.Errorf("create application: %w", storage.ErrDuplicate)
		}
	}
	m.s.data.applications[app.ID] = *app
	return nil
}

func (m *Store) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	defer m.lock()()

	a, ok := m.s.data.applications[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &a, nil
}

func (m *Store) FindApplication(ctx context.Context, jobID, freelancerID string) (*model.Application, error) {
	defer m.lock()()

	for _, a := range m.s.data.applications {
		if a.JobID == jobID && a.FreelancerID == freelancerID {
			return &a, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *Store) ListApplicationsByJob(ctx context.Context, jobID string) ([]model.Application, error) {
	defer m.lock()()
	return m.listApplications(func(a model.Application) bool { return a.JobID == jobID }), nil
}

func (m *Store) ListApplicationsByFreelancer(ctx context.Context, freelancerID string) ([]model.Application, error) {
	defer m.lock()()
	return m.listApplications(func(a model.Application) bool { return a.FreelancerID == freelancerID }), nil
}

func (m *Store) listApplications(keep func(model.Application) bool) []model.Application {
	var out []model.Application
	for _, a := range m.s.data.applications {
		if keep(a) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b model.Application) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out
}

func (m *Store) CountApplicationsByJob(ctx context.Context, jobID string) (int, error) {
	defer m.lock()()

	n := 0
	for _, a := range m.s.data.applications {
		if a.JobID == jobID {
			n++
		}
	}
	return n, nil
}

func (m *Store) UpdateApplicationStatus(ctx context.Context, id string, status domain.ApplicationStatus, at time.Time) error {
	defer m.lock()()

	a, ok := m.s.data.applications[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = at
	m.s.data.applications[id] = a
	return nil
}

func (m *Store) RejectPendingApplications(ctx context.Context, jobID, exceptID string, at time.Time) (int64, error) {
	defer m.lock()()

	var n int64
	for id, a := range m.s.data.applications {
		if a.JobID != jobID || id == exceptID || a.Status != domain.ApplicationStatusPending {
			continue
		}
		a.Status = domain.ApplicationStatusRejected
		a.UpdatedAt = at
		m.s.data.applications[id] = a
		n++
	}
	return n, nil
}

func (m *Store) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	defer m.lock()()

	m.s.data.submissions[sub.ID] = cloneSubmission(*sub)
	return nil
}

func (m *Store) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	defer m.lock()()

	s, ok := m.s.data.submissions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	s = cloneSubmission(s)
	return &s, nil
}

func (m *Store) ListSubmissionsByJob(ctx context.Context, jobID string) ([]model.Submission, error) {
	defer m.lock()()

	var out []model.Submission
	for _, s := range m.s.data.submissions {
		if s.JobID == jobID {
			out = append(out, cloneSubmission(s))
		}
	}
	slices.SortFunc(out, func(a, b model.Submission) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (m *Store) UpdateSubmission(ctx context.Context, sub *model.Submission) error {
	defer m.lock()()

	existing, ok := m.s.data.submissions[sub.ID]
	if !ok {
		return storage.ErrNotFound
	}
	existing.Status = sub.Status
	existing.Feedback = sub.Feedback
	existing.UpdatedAt = sub.UpdatedAt
	m.s.data.submissions[sub.ID] = existing
	return nil
}

func (m *Store) CreateMessage(ctx context.Context, msg *model.Message) error {
	defer m.lock()()

	m.s.data.messages[msg.ID] = *msg
	return nil
}

func (m *Store) ListMessagesByJob(ctx context.Context, jobID string) ([]model.Message, error) {
	defer m.lock()()

	var out []model.Message
	for _, msg := range m.s.data.messages {
		if msg.JobID == jobID {
			out = append(out, msg)
		}
	}
	slices.SortFunc(out, func(a, b model.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *Store) MarkMessagesRead(ctx context.Context, jobID, receiverID string) (int64, error) {
	defer m.lock()()

	var n int64
	for id, msg := range m.s.data.messages {
		if msg.JobID == jobID && msg.ReceiverID == receiverID && !msg.Read {
			msg.Read = true
			m.s.data.messages[id] = msg
			n++
		}
	}
	return n, nil
}

func (m *Store) CreateEscrow(ctx context.Context, escrow *model.Escrow) error {
	defer m.lock()()

	for _, e := range m.s.data.escrows {
		if e.JobID == escrow.JobID {
			return fmt.Errorf("create escrow: %w", storage.ErrDuplicate)
		}
	}
	m.s.data.escrows[escrow.ID] = cloneEscrow(*escrow)
	return nil
}

func (m *Store) GetEscrow(ctx context.Context, id string) (*model.Escrow, error) {
	defer m.lock()()
	return m.getEscrow(id)
}

func (m *Store) GetEscrowForUpdate(ctx context.Context, id string) (*model.Escrow, error) {
	defer m.lock()()
	return m.getEscrow(id)
}

func (m *Store) getEscrow(id string) (*model.Escrow, error) {
	e, ok := m.s.data.escrows[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	e = cloneEscrow(e)
	return &e, nil
}

func (m *Store) GetEscrowByJob(ctx context.Context, jobID string) (*model.Escrow, error) {
	defer m.lock()()

	for _, e := range m.s.data.escrows {
		if e.JobID == jobID {
			e = cloneEscrow(e)
			return &e, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *Store) UpdateEscrow(ctx context.Context, escrow *model.Escrow) error {
	defer m.lock()()

	if _, ok := m.s.data.escrows[escrow.ID]; !ok {
		return storage.ErrNotFound
	}
	m.s.data.escrows[escrow.ID] = cloneEscrow(*escrow)
	return nil
}

func (m *Store) ListPendingEscrows(ctx context.Context, limit int) ([]model.Escrow, error) {
	defer m.lock()()

	var out []model.Escrow
	for _, e := range m.s.data.escrows {
		if e.PendingAction != nil {
			out = append(out, cloneEscrow(e))
		}
	}
	slices.SortFunc(out, func(a, b model.Escrow) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneUser(u model.User) model.User {
	u.Skills = slices.Clone(u.Skills)
	return u
}

func cloneJob(j model.Job) model.Job {
	j.Skills = slices.Clone(j.Skills)
	j.FreelancerID = clonePtr(j.FreelancerID)
	j.EscrowContract = clonePtr(j.EscrowContract)
	j.CompletedAt = clonePtr(j.CompletedAt)
	return j
}

func cloneSubmission(s model.Submission) model.Submission {
	s.Attachments = slices.Clone(s.Attachments)
	return s
}

func cloneEscrow(e model.Escrow) model.Escrow {
	e.PendingAction = clonePtr(e.PendingAction)
	e.PendingSubmissionID = clonePtr(e.PendingSubmissionID)
	return e
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
