package consumer

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Session owns the connection and channel a Consumer reads from.
type Session struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// Dial opens a connection and a channel to url.
func Dial(url string) (*Session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %w", ErrSetup, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: open channel: %w", ErrSetup, err)
	}
	return &Session{Conn: conn, Channel: ch}, nil
}

// Close closes the channel, then the connection.
func (s *Session) Close() error {
	chErr := s.Channel.Close()
	if err := s.Conn.Close(); err != nil {
		return err
	}
	return chErr
}
