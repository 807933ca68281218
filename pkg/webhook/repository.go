package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

var ErrChannelNotFound = errors.New("channel not found")

type ChannelRepository interface {
	Store(ctx context.Context, channel Channel) error
	Delete(ctx context.Context, channelId string) error
	Get(ctx context.Context, channelId string) (Channel, error)
	FindAll(ctx context.Context) ([]Channel, error)
}

type ChannelRepositoryImpl struct {
	db *sql.DB
}

func NewChannelRepository(db *sql.DB) *ChannelRepositoryImpl {
	return &ChannelRepositoryImpl{db: db}
}

func (r *ChannelRepositoryImpl) Store(ctx context.Context, channel Channel) error {
	query := `INSERT INTO watch_channel (channel_id, resource_id, calendar_id, expiration, created_at)
				VALUES ($1, $2, $3, $4, $5)`
	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		err := fmt.Errorf("could not prepare query: %w", err)
		log.Error(err)
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		channel.ChannelId,
		channel.ResourceId,
		channel.CalendarId,
		channel.Expiration.Unix(),
		channel.CreatedAt.Unix(),
	)
	if err != nil {
		err := fmt.Errorf("could not execute query: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *ChannelRepositoryImpl) Delete(ctx context.Context, channelId string) error {
	query := `DELETE FROM watch_channel WHERE channel_id = $1`
	result, err := r.db.ExecContext(ctx, query, channelId)
	if err != nil {
		err := fmt.Errorf("could not execute query: %w", err)
		log.Error(err)
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		err := fmt.Errorf("could not get rows affected: %w", err)
		log.Error(err)
		return err
	}
	if rowsAffected == 0 {
		return ErrChannelNotFound
	}
	return nil
}

func (r *ChannelRepositoryImpl) Get(ctx context.Context, channelId string) (Channel, error) {
	query := `SELECT channel_id, resource_id, calendar_id, expiration, created_at
				FROM watch_channel WHERE channel_id = $1`
	row := r.db.QueryRowContext(ctx, query, channelId)
	channel, err := scanChannel(row)
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		return Channel{}, ErrChannelNotFound
	} else if err != nil {
		err := fmt.Errorf("could not query channel: %w", err)
		log.Error(err)
		return Channel{}, err
	}
	return channel, nil
}

func (r *ChannelRepositoryImpl) FindAll(ctx context.Context) ([]Channel, error) {
	query := `SELECT channel_id, resource_id, calendar_id, expiration, created_at
				FROM watch_channel ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		err := fmt.Errorf("could not query channels: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			err := fmt.Errorf("could not scan channel: %w", err)
			log.Error(err)
			return nil, err
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("error iterating over rows: %w", err)
		log.Error(err)
		return nil, err
	}
	return channels, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (Channel, error) {
	var channel Channel
	var expiration, createdAt int64
	if err := row.Scan(
		&channel.ChannelId,
		&channel.ResourceId,
		&channel.CalendarId,
		&expiration,
		&createdAt,
	); err != nil {
		return Channel{}, err
	}
	channel.Expiration = time.Unix(expiration, 0)
	channel.CreatedAt = time.Unix(createdAt, 0)
	return channel, nil
}
