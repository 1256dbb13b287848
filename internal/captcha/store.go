package captcha

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// VerifyResult описывает исход проверки ответа на CAPTCHA-задание.
type VerifyResult int

const (
	// VerifyNoChallenge — для сессии нет выданного задания, проверка не требуется.
	VerifyNoChallenge VerifyResult = iota
	// VerifyConsumed — ответ верен, задание погашено.
	VerifyConsumed
	// VerifyMismatch — ответ неверен, задание остаётся активным.
	VerifyMismatch
)

const challengeTTL = 10 * time.Minute

// Сценарий сравнивает и гасит ответ атомарно: два параллельных верных ответа
// не могут погасить одно задание дважды. Неверный ответ задание не гасит.
var verifyScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v == false then
  return 0
end
if v == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return -1
`)

// Store хранит ожидаемые ответы CAPTCHA в Redis с ключом по сессии пользователя.
type Store struct {
	rdb *redis.Client
}

// NewStore создаёт хранилище ответов и проверяет соединение с Redis.
func NewStore(addr string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Store{rdb: rdb}, nil
}

// Issue записывает ожидаемый ответ для сессии, заменяя предыдущее задание.
func (s *Store) Issue(ctx context.Context, sessionKey, answer string) error {
	if err := s.rdb.Set(ctx, challengeKey(sessionKey), answer, challengeTTL).Err(); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

// Verify атомарно проверяет ответ для сессии. Верный ответ гасит задание,
// неверный оставляет его активным для повторной попытки.
func (s *Store) Verify(ctx context.Context, sessionKey, answer string) (VerifyResult, error) {
	res, err := verifyScript.Run(ctx, s.rdb, []string{challengeKey(sessionKey)}, answer).Int()
	if err != nil {
		return VerifyNoChallenge, fmt.Errorf("verify challenge: %w", err)
	}

	switch res {
	case 1:
		return VerifyConsumed, nil
	case -1:
		return VerifyMismatch, nil
	default:
		return VerifyNoChallenge, nil
	}
}

// Close закрывает соединение с Redis.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func challengeKey(sessionKey string) string {
	return "captcha:" + sessionKey
}
