package service

import (
	"context"
	"errors"

	"github.com/vs316/schema-weaver-sub001/internal/model"
)

// ErrNoSession 当前没有登录会话
var ErrNoSession = errors.New("未登录")

// StaticSessionProvider 使用固定身份（来自配置）充当认证协作方
type StaticSessionProvider struct {
	Session *model.Session
}

// NewStaticSessionProvider 创建固定会话；userID 为空时 CurrentSession 返回 ErrNoSession
func NewStaticSessionProvider(userID, email string) StaticSessionProvider {
	if userID == "" {
		return StaticSessionProvider{}
	}
	return StaticSessionProvider{Session: &model.Session{UserID: userID, Email: email}}
}

func (p StaticSessionProvider) CurrentSession(ctx context.Context) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Session == nil || p.Session.UserID == "" {
		return nil, ErrNoSession
	}
	s := *p.Session
	return &s, nil
}
