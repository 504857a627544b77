package scheduling

import (
	"context"
	"strings"
)

type RoomInput struct {
	Name      string
	Capacity  int
	Equipment []string
}

func (s *Service) ListRooms(ctx context.Context) ([]Room, error) {
	rooms, err := s.repo.ListActiveRooms(ctx)
	if err != nil {
		return nil, wrapStore("list rooms", err)
	}
	return rooms, nil
}

// CreateRoom registers a new active room. Capacity defaults to 1.
func (s *Service) CreateRoom(ctx context.Context, actor Actor, in RoomInput) (*Room, error) {
	if !actor.IsAdmin() {
		return nil, ErrNotAdmin
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("missing_fields", "room name is required")
	}
	if in.Capacity < 0 {
		return nil, invalid("invalid_capacity", "capacity must be positive")
	}
	capacity := in.Capacity
	if capacity == 0 {
		capacity = 1
	}
	equipment := in.Equipment
	if equipment == nil {
		equipment = []string{}
	}

	room, err := s.repo.CreateRoom(ctx, Room{
		Name:      name,
		Capacity:  capacity,
		Equipment: equipment,
		IsActive:  true,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, wrapStore("create room", err)
	}

	s.logEvent(ctx, EventRoomCreated, &actor.UserID, nil, map[string]any{
		"room":     room.Name,
		"capacity": room.Capacity,
	})
	return room, nil
}
