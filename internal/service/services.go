package service

import (
	"chat_session/internal/config"
	"chat_session/internal/repository"
	"chat_session/pkg/logger"
)

type Services struct {
	Rooms     RoomService
	VoteKick  VoteKickService
	History   HistoryService
	Heartbeat *HeartbeatMonitor
}

func NewServices(repos *repository.Repositories, cfg *config.Config, log logger.Logger) *Services {
	history := NewHistoryService(repos.History, cfg.Session, log)
	rooms := NewRoomService(repos.Presence, repos.RateLimit, repos.Audit, history, cfg.Session, log)
	voteKick := NewVoteKickService(repos.Vote, repos.Presence, repos.User, repos.Audit, rooms, cfg.Session, log)
	heartbeat := NewHeartbeatMonitor(repos.Presence, rooms, voteKick, cfg.Session, log)

	return &Services{
		Rooms:     rooms,
		VoteKick:  voteKick,
		History:   history,
		Heartbeat: heartbeat,
	}
}
