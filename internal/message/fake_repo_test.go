package message

import (
	"context"
	"sort"
	"sync"

	"sayhi/internal/model"
	"sayhi/internal/repository"
)

// memRepo 内存版消息仓储，仅供测试。
type memRepo struct {
	mu          sync.Mutex
	rows        map[string]model.Message
	insertCalls int
	fetchErr    error
	insertErr   error
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[string]model.Message)}
}

func (r *memRepo) InsertUnique(ctx context.Context, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertCalls++
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, ok := r.rows[msg.ID]; ok {
		return repository.ErrDuplicate
	}
	r.rows[msg.ID] = *msg
	return nil
}

func (r *memRepo) Exists(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	return ok, nil
}

func owner(m model.Message, role model.Role) string {
	if role == model.RoleReceiver {
		return m.ReceiverUserID
	}
	return m.UserID
}

func counterpart(m model.Message, role model.Role) string {
	if role == model.RoleReceiver {
		return m.UserID
	}
	return m.ReceiverUserID
}

func (r *memRepo) FindOwned(ctx context.Context, id string, role model.Role, ownerID string) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok || owner(m, role) != ownerID {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r *memRepo) Fetch(ctx context.Context, q repository.MessageQuery, mark *repository.MarkReadOnFetch) (repository.MessagePage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetchErr != nil {
		return repository.MessagePage{}, r.fetchErr
	}
	matched := make([]model.Message, 0)
	for _, m := range r.rows {
		if owner(m, q.Role) != q.ViewerID {
			continue
		}
		if q.CounterpartID != "" && counterpart(m, q.Role) != q.CounterpartID {
			continue
		}
		if q.UnreadOnly && m.RetrieveTime != "" {
			continue
		}
		matched = append(matched, m)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.CreateTime == b.CreateTime {
			return a.ID < b.ID
		}
		if q.Desc {
			return a.CreateTime > b.CreateTime
		}
		return a.CreateTime < b.CreateTime
	})

	page := repository.MessagePage{Count: int64(len(matched)), Items: make([]model.Message, 0)}
	for i := q.Offset; i < len(matched) && len(page.Items) < q.Limit; i++ {
		m := matched[i]
		if mark != nil {
			m.RetrieveTime = mark.RetrieveTime
			r.rows[m.ID] = m
		}
		page.Items = append(page.Items, m)
	}
	return page, nil
}

func (r *memRepo) UpdateText(ctx context.Context, id, senderID, text string, editTime int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok || m.UserID != senderID {
		return repository.ErrNotFound
	}
	m.Message = text
	m.EditTime = editTime
	r.rows[id] = m
	return nil
}

func (r *memRepo) SetRetrieveTime(ctx context.Context, id, receiverID, retrieveTime string, editTime int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok || m.ReceiverUserID != receiverID {
		return repository.ErrNotFound
	}
	m.RetrieveTime = retrieveTime
	m.EditTime = editTime
	r.rows[id] = m
	return nil
}

func (r *memRepo) DeleteOwned(ctx context.Context, id string, role model.Role, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok || owner(m, role) != ownerID {
		return repository.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

// vanishingRepo 在 FindOwned 之后立即删除目标行，模拟读写之间的并发删除。
type vanishingRepo struct {
	*memRepo
}

func (r vanishingRepo) FindOwned(ctx context.Context, id string, role model.Role, ownerID string) (*model.Message, error) {
	m, err := r.memRepo.FindOwned(ctx, id, role, ownerID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	delete(r.rows, id)
	r.mu.Unlock()
	return m, nil
}

type mockClaims struct {
	claimFunc    func(ctx context.Context, id string) (bool, error)
	claimCalls   int
	releaseCalls int
}

func (m *mockClaims) Claim(ctx context.Context, id string) (bool, error) {
	m.claimCalls++
	if m.claimFunc == nil {
		return true, nil
	}
	return m.claimFunc(ctx, id)
}

func (m *mockClaims) Release(ctx context.Context, id string) error {
	m.releaseCalls++
	return nil
}
