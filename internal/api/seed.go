package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"sayhi/internal/api/auth"
	"sayhi/internal/message"
	"sayhi/internal/model"
	"sayhi/internal/repository"
)

const (
	demoPassword     = "sayhi-demo"
	demoWelcomeMsgID = "demo-welcome"
)

var demoUsers = []model.User{
	{Username: "alice", Realname: "Alice", Email: "alice@sayhi.local", Gender: "female"},
	{Username: "bob", Realname: "Bob", Email: "bob@sayhi.local", Gender: "male"},
}

// SeedDemoData 初始化演示账号与一条欢迎消息，可重复执行。
func (s *Server) SeedDemoData(ctx context.Context) error {
	ids := make([]string, 0, len(demoUsers))
	for _, tmpl := range demoUsers {
		u, err := s.ensureDemoUser(ctx, tmpl)
		if err != nil {
			return err
		}
		ids = append(ids, u.UserID)
	}

	_, err := s.messages.Send(ctx, message.SendRequest{
		ID:         demoWelcomeMsgID,
		SenderID:   ids[1],
		ReceiverID: ids[0],
		Text:       "Hi Alice, welcome to SayHi!",
	})
	if err != nil && !errors.Is(err, message.ErrDuplicateID) {
		return fmt.Errorf("seed welcome message: %w", err)
	}
	s.logger.Info("demo data ready", slog.Int("users", len(ids)))
	return nil
}

func (s *Server) ensureDemoUser(ctx context.Context, tmpl model.User) (*model.User, error) {
	existing, err := s.users.FindByEmail(ctx, tmpl.Email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("seed lookup %s: %w", tmpl.Email, err)
	}

	hash, err := auth.HashPassword(demoPassword)
	if err != nil {
		return nil, err
	}
	now := nowMillis()
	u := tmpl
	u.UserID = uuid.NewString()
	u.Password = hash
	u.Status = model.UserStatusActive
	u.CreateTime = now
	u.EditTime = now
	if err := s.users.Create(ctx, &u); err != nil {
		return nil, fmt.Errorf("seed create %s: %w", tmpl.Email, err)
	}
	return &u, nil
}
