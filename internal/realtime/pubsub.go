package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// PubSubProvider определяет интерфейс провайдера публикации/подписки,
// через который доставляются события change feed комнаты.
// Семантика доставки — at-most-once: без повторной доставки и без replay
// после реконнекта; клиент, переподключившийся после разрыва, обязан
// перечитать текущее состояние комнаты явно.
type PubSubProvider interface {
	// Publish публикует сообщение в указанный канал
	Publish(channel string, message []byte) error

	// Subscribe подписывается на указанный канал и возвращает канал для сообщений.
	// Подписка живёт до отмены ctx.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)

	// Ping проверяет живость соединения с брокером
	Ping(ctx context.Context) error

	// Close закрывает все соединения и освобождает ресурсы
	Close() error
}

// NoOpPubSub реализует PubSubProvider для офлайн-режима (тесты, одиночная
// отладка без Redis). Публикации уходят в никуда, подписки молчат.
type NoOpPubSub struct{}

// Publish реализует метод PubSubProvider.Publish для NoOpPubSub
func (p *NoOpPubSub) Publish(channel string, message []byte) error {
	return nil
}

// Subscribe реализует метод PubSubProvider.Subscribe для NoOpPubSub
func (p *NoOpPubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	// Возвращаем пустой канал, который никогда не получит сообщения
	msgCh := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(msgCh)
	}()
	return msgCh, nil
}

// Ping реализует метод PubSubProvider.Ping для NoOpPubSub
func (p *NoOpPubSub) Ping(ctx context.Context) error {
	return nil
}

// Close реализует метод PubSubProvider.Close для NoOpPubSub
func (p *NoOpPubSub) Close() error {
	return nil
}

// RedisPubSub реализует PubSubProvider с использованием Redis.
// Каждый вызов Subscribe открывает собственную подписку: подписки
// независимы и закрываются отменой контекста подписчика, без общего
// мутабельного состояния между комнатами.
type RedisPubSub struct {
	client        redis.UniversalClient
	ctx           context.Context
	cancel        context.CancelFunc
	subscriptions sync.Map // активные подписки (*redis.PubSub), для Close
}

// NewRedisPubSub создает новый Redis Pub/Sub провайдер, используя существующий UniversalClient.
func NewRedisPubSub(client redis.UniversalClient) (*RedisPubSub, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil for RedisPubSub")
	}

	// Проверяем соединение клиента перед использованием
	ctx, cancelCheck := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelCheck()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("provided redis client failed ping check: %w", err)
	}

	ctxPubSub, cancelPubSub := context.WithCancel(context.Background())

	return &RedisPubSub{
		client: client,
		ctx:    ctxPubSub,
		cancel: cancelPubSub,
	}, nil
}

// Publish публикует сообщение в указанный канал
func (p *RedisPubSub) Publish(channel string, message []byte) error {
	cmd := p.client.Publish(p.ctx, channel, message)
	if err := cmd.Err(); err != nil {
		log.Printf("[RedisPubSub] Ошибка публикации в канал '%s': %v", channel, err)
		return fmt.Errorf("failed to publish to Redis channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe подписывается на указанный канал Redis
func (p *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := p.client.Subscribe(p.ctx, channel)

	// Ждем подтверждения подписки
	if _, err := pubsub.Receive(p.ctx); err != nil {
		pubsub.Close()
		log.Printf("[RedisPubSub] Ошибка подтверждения подписки на канал '%s': %v", channel, err)
		return nil, fmt.Errorf("failed to subscribe to Redis channel %s: %w", channel, err)
	}

	key := fmt.Sprintf("%s/%p", channel, pubsub)
	p.subscriptions.Store(key, pubsub)
	log.Printf("[RedisPubSub] Подписка на канал '%s' установлена", channel)

	msgCh := make(chan []byte, 100) // Буферизированный канал

	// Горутина читает сообщения из Redis и пересылает подписчику
	go func() {
		defer func() {
			p.subscriptions.Delete(key)
			pubsub.Close()
			close(msgCh)
			log.Printf("[RedisPubSub] Подписка на канал '%s' закрыта", channel)
		}()

		redisCh := pubsub.Channel()
		for {
			select {
			case msg, ok := <-redisCh:
				if !ok {
					log.Printf("[RedisPubSub] Канал '%s' закрыт со стороны Redis", channel)
					return
				}
				// Пересылаем сообщение подписчику; переполненный буфер
				// роняет сообщение (at-most-once, без блокировки фида)
				select {
				case msgCh <- []byte(msg.Payload):
				default:
					log.Printf("[RedisPubSub] Буфер подписчика канала '%s' переполнен, сообщение отброшено", channel)
				}
			case <-ctx.Done():
				return
			case <-p.ctx.Done():
				return
			}
		}
	}()

	return msgCh, nil
}

// Ping проверяет соединение с Redis
func (p *RedisPubSub) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close закрывает все активные подписки и клиента Redis
func (p *RedisPubSub) Close() error {
	log.Println("[RedisPubSub] Закрытие провайдера и всех подписок...")
	p.cancel()

	var lastErr error
	p.subscriptions.Range(func(key, value interface{}) bool {
		if pubsub, ok := value.(*redis.PubSub); ok {
			if err := pubsub.Close(); err != nil {
				lastErr = err
			}
		}
		return true
	})

	if p.client != nil {
		if err := p.client.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
