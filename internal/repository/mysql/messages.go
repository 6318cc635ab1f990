package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sayhi/internal/model"
	"sayhi/internal/repository"
)

var messageSortColumns = map[string]struct{}{
	"create_time":   {},
	"edit_time":     {},
	"retrieve_time": {},
	"id":            {},
}

// MessageRepo 消息表仓储。
type MessageRepo struct {
	db *gorm.DB
}

// NewMessageRepo 创建消息仓储。
func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ repository.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) InsertUnique(ctx context.Context, msg *model.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("insert message: %w", translate(err))
	}
	return nil
}

func (r *MessageRepo) Exists(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count message: %w", err)
	}
	return n > 0, nil
}

func (r *MessageRepo) FindOwned(ctx context.Context, id string, role model.Role, ownerID string) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Where(ownerColumn(role)+" = ?", ownerID).
		First(&msg).Error
	if err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

// Fetch 查询一页消息；mark 非空时在同一事务内把本页消息的 retrieve_time 置为 mark.RetrieveTime。
func (r *MessageRepo) Fetch(ctx context.Context, q repository.MessageQuery, mark *repository.MarkReadOnFetch) (repository.MessagePage, error) {
	var page repository.MessagePage
	run := func(tx *gorm.DB) error {
		if err := scopeMessages(tx.WithContext(ctx), q).Count(&page.Count).Error; err != nil {
			return fmt.Errorf("count messages: %w", err)
		}
		items := make([]model.Message, 0)
		err := scopeMessages(tx.WithContext(ctx), q).
			Order(clause.OrderByColumn{Column: clause.Column{Name: sortColumn(q.OrderBy)}, Desc: q.Desc}).
			Offset(q.Offset).
			Limit(q.Limit).
			Find(&items).Error
		if err != nil {
			return fmt.Errorf("find messages: %w", err)
		}
		if mark != nil && len(items) > 0 {
			ids := make([]string, 0, len(items))
			for _, m := range items {
				ids = append(ids, m.ID)
			}
			err := tx.WithContext(ctx).Model(&model.Message{}).
				Where("id IN ?", ids).
				Update("retrieve_time", mark.RetrieveTime).Error
			if err != nil {
				return fmt.Errorf("mark messages retrieved: %w", err)
			}
			for i := range items {
				items[i].RetrieveTime = mark.RetrieveTime
			}
		}
		page.Items = items
		return nil
	}

	var err error
	if mark == nil {
		err = run(r.db)
	} else {
		err = r.db.WithContext(ctx).Transaction(run)
	}
	if err != nil {
		return repository.MessagePage{}, err
	}
	return page, nil
}

func (r *MessageRepo) UpdateText(ctx context.Context, id, senderID, text string, editTime int64) error {
	res := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND userid = ?", id, senderID).
		Updates(map[string]any{"message": text, "edit_time": editTime})
	if res.Error != nil {
		return fmt.Errorf("update message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) SetRetrieveTime(ctx context.Context, id, receiverID, retrieveTime string, editTime int64) error {
	res := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND receiver_userid = ?", id, receiverID).
		Updates(map[string]any{"retrieve_time": retrieveTime, "edit_time": editTime})
	if res.Error != nil {
		return fmt.Errorf("update retrieve_time: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) DeleteOwned(ctx context.Context, id string, role model.Role, ownerID string) error {
	res := r.db.WithContext(ctx).
		Where("id = ?", id).
		Where(ownerColumn(role)+" = ?", ownerID).
		Delete(&model.Message{})
	if res.Error != nil {
		return fmt.Errorf("delete message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scopeMessages(db *gorm.DB, q repository.MessageQuery) *gorm.DB {
	db = db.Model(&model.Message{}).Where(ownerColumn(q.Role)+" = ?", q.ViewerID)
	if q.CounterpartID != "" {
		db = db.Where(counterpartColumn(q.Role)+" = ?", q.CounterpartID)
	}
	if q.UnreadOnly {
		db = db.Where("retrieve_time = ?", "")
	}
	return db
}

func ownerColumn(role model.Role) string {
	if role == model.RoleReceiver {
		return "receiver_userid"
	}
	return "userid"
}

func counterpartColumn(role model.Role) string {
	if role == model.RoleReceiver {
		return "userid"
	}
	return "receiver_userid"
}

func sortColumn(name string) string {
	if _, ok := messageSortColumns[name]; ok {
		return name
	}
	return "create_time"
}
