package mysql

import (
	"context"
	"fmt"
	"math/rand"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sayhi/internal/model"
	"sayhi/internal/repository"
)

// 同名用户的最大候选数，用户名不唯一，登录时逐个比对密码。
const maxUsernameCandidates = 20

var userSortColumns = map[string]struct{}{
	"create_time": {},
	"edit_time":   {},
	"username":    {},
	"id":          {},
}

// UserRepo 用户表仓储。
type UserRepo struct {
	db *gorm.DB
}

// NewUserRepo 创建用户仓储。
func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ repository.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("create user: %w", translate(err))
	}
	return nil
}

func (r *UserRepo) FindByUserID(ctx context.Context, userID string) (*model.User, error) {
	return r.first(ctx, "userid = ?", userID)
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *UserRepo) FindAllByUsername(ctx context.Context, username string) ([]model.User, error) {
	users := make([]model.User, 0)
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("id").
		Limit(maxUsernameCandidates).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("find users by username: %w", err)
	}
	return users, nil
}

func (r *UserRepo) List(ctx context.Context, q repository.UserQuery) ([]model.User, int64, error) {
	scope := func() *gorm.DB {
		db := r.db.WithContext(ctx).Model(&model.User{})
		if q.Status != "" {
			db = db.Where("status = ?", q.Status)
		}
		return db
	}
	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	col := q.OrderBy
	if _, ok := userSortColumns[col]; !ok {
		col = "create_time"
	}
	users := make([]model.User, 0)
	err := scope().
		Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: q.Desc}).
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

func (r *UserRepo) Update(ctx context.Context, userID string, changes repository.UserChanges) error {
	fields := map[string]any{"edit_time": changes.EditTime}
	setString := func(col string, v *string) {
		if v != nil {
			fields[col] = *v
		}
	}
	setString("username", changes.Username)
	setString("realname", changes.Realname)
	setString("email", changes.Email)
	setString("password", changes.Password)
	setString("gender", changes.Gender)
	setString("avatar", changes.Avatar)
	setString("status", changes.Status)
	if changes.Age != nil {
		fields["age"] = *changes.Age
	}

	err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("userid = ?", userID).
		Updates(fields).Error
	if err != nil {
		return fmt.Errorf("update user: %w", translate(err))
	}
	return nil
}

func (r *UserRepo) Delete(ctx context.Context, userID string) error {
	res := r.db.WithContext(ctx).Where("userid = ?", userID).Delete(&model.User{})
	if res.Error != nil {
		return fmt.Errorf("delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// PickRandom 以随机偏移量取一个非 excludeUserID 的用户。
func (r *UserRepo) PickRandom(ctx context.Context, excludeUserID string) (*model.User, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("userid <> ?", excludeUserID).
		Count(&total).Error
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if total == 0 {
		return nil, repository.ErrNotFound
	}

	users := make([]model.User, 0, 1)
	err = r.db.WithContext(ctx).
		Where("userid <> ?", excludeUserID).
		Order("id").
		Offset(rand.Intn(int(total))).
		Limit(1).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("pick random user: %w", err)
	}
	if len(users) == 0 {
		return nil, repository.ErrNotFound
	}
	return &users[0], nil
}

func (r *UserRepo) first(ctx context.Context, query string, arg any) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where(query, arg).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}
