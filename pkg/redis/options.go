package redis

import (
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// AsynqOptions returns the queue connection for the configured URL
func (c *Config) AsynqOptions() (*asynq.RedisClientOpt, error) {
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}

	return AsynqClientOpt(opts), nil
}

// AsynqClientOpt gives the queue client the connection settings of an
// existing go-redis client, so locks, cache and queue share one server
func AsynqClientOpt(opt *redis.Options) *asynq.RedisClientOpt {
	return &asynq.RedisClientOpt{
		Network:      opt.Network,
		Addr:         opt.Addr,
		Username:     opt.Username,
		Password:     opt.Password,
		DB:           opt.DB,
		DialTimeout:  opt.DialTimeout,
		ReadTimeout:  opt.ReadTimeout,
		WriteTimeout: opt.WriteTimeout,
		PoolSize:     opt.PoolSize,
		TLSConfig:    opt.TLSConfig,
	}
}
