package service

import (
	"log/slog"

	"huddle.app/relay/internal/metrics"
	"huddle.app/relay/internal/queue"
	"huddle.app/relay/internal/store"
)

type ServicesConfig struct {
	Stores    *store.Stores
	TxRunner  TxRunner
	Router    Router
	Producer  queue.Producer
	Announcer Announcer
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type Services struct {
	cfg ServicesConfig
}

func NewServices(cfg ServicesConfig) *Services {
	return &Services{cfg: cfg}
}

func (s *Services) Messages() MessageService {
	return NewMessageService(MessageServiceDeps{
		Conversations: s.cfg.Stores.Conversations(),
		Members:       s.cfg.Stores.Members(),
		Messages:      s.cfg.Stores.Messages(),
		Records:       s.cfg.Stores.InteractionRecords(),
		TxRunner:      s.cfg.TxRunner,
		Router:        s.cfg.Router,
		Producer:      s.cfg.Producer,
		Announcer:     s.cfg.Announcer,
		Metrics:       s.cfg.Metrics,
		Logger:        s.cfg.Logger,
	})
}

func (s *Services) Interactions() InteractionService {
	return NewInteractionService(s.cfg.Stores.InteractionRecords(), s.cfg.Stores.Messages())
}
