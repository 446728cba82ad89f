package service

import (
	"context"

	"github.com/vs316/schema-weaver-sub001/internal/eventbus"
	"github.com/vs316/schema-weaver-sub001/internal/model"
	"github.com/vs316/schema-weaver-sub001/internal/schema"
)

// 仓储/外部依赖的最小接口集合（ISP）

type SessionProvider interface {
	CurrentSession(ctx context.Context) (*model.Session, error)
}

type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*schema.Profile, error)
	Create(ctx context.Context, p *schema.Profile) error
}

type DiagramRepository interface {
	ListByTeam(ctx context.Context, teamID string) ([]schema.Diagram, error)
	Create(ctx context.Context, d *schema.Diagram) error
	Update(ctx context.Context, id string, update schema.DiagramUpdate) (*schema.Diagram, error)
	Delete(ctx context.Context, id string) error
}

// ChangeSubscriber 实时变更频道；ctx 结束即退订
type ChangeSubscriber interface {
	Subscribe(ctx context.Context, topic string, buffer int) <-chan eventbus.Event
}
