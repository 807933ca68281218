package webhook

import (
	"context"
	"sort"
	"sync"
)

type StubChannelRepository struct {
	mu   sync.Mutex
	data map[string]Channel
}

func NewStubChannelRepository() *StubChannelRepository {
	return &StubChannelRepository{data: map[string]Channel{}}
}

func (s *StubChannelRepository) Store(ctx context.Context, channel Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[channel.ChannelId] = channel
	return nil
}

func (s *StubChannelRepository) Delete(ctx context.Context, channelId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[channelId]; !ok {
		return ErrChannelNotFound
	}
	delete(s.data, channelId)
	return nil
}

func (s *StubChannelRepository) Get(ctx context.Context, channelId string) (Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	channel, ok := s.data[channelId]
	if !ok {
		return Channel{}, ErrChannelNotFound
	}
	return channel, nil
}

func (s *StubChannelRepository) FindAll(ctx context.Context) ([]Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var channels []Channel
	for _, channel := range s.data {
		channels = append(channels, channel)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].CreatedAt.Before(channels[j].CreatedAt) })
	return channels, nil
}
