package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/tokopulse/tokopulse/engine"
	"github.com/tokopulse/tokopulse/utils"
)

// RedisCredentialProvider implements engine.CredentialProvider on top of the
// session store the account-connection flow writes into. The engine never
// creates or refreshes sessions; it only reads them.
type RedisCredentialProvider struct {
	rc     *redis.Client
	prefix string
	logger *log.Logger
}

func NewRedisCredentialProvider(rc *redis.Client, prefix string, logger *log.Logger) *RedisCredentialProvider {
	if prefix == "" {
		prefix = "tokopulse"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RedisCredentialProvider{rc: rc, prefix: prefix, logger: logger}
}

func (p *RedisCredentialProvider) sessionKey(tokoID int64) string {
	return fmt.Sprintf("%s:session:%d", p.prefix, tokoID)
}

// GetSession loads the shop's session. A missing key, an unparsable value, and
// an expired session all collapse into ErrSessionUnavailable: to the engine
// they mean the same thing, the shop cannot be acted on right now.
func (p *RedisCredentialProvider) GetSession(ctx context.Context, tokoID int64) (*engine.TokoSession, error) {
	raw, err := p.rc.Get(ctx, p.sessionKey(tokoID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("toko %d: %w", tokoID, engine.ErrSessionUnavailable)
		}
		return nil, fmt.Errorf("toko %d: session read: %w", tokoID, err)
	}

	var session engine.TokoSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		p.logger.Printf("services: toko=%d corrupt session payload: %v", tokoID, err)
		return nil, fmt.Errorf("toko %d: %w", tokoID, engine.ErrSessionUnavailable)
	}
	if !session.ExpiresAt.IsZero() && session.ExpiresAt.Before(utils.UTCNow()) {
		return nil, fmt.Errorf("toko %d: session expired: %w", tokoID, engine.ErrSessionUnavailable)
	}
	if session.TokoID == 0 {
		session.TokoID = tokoID
	}
	return &session, nil
}
