package redis

import (
	"fmt"
	"time"

	"github.com/copresent/copresent/store"
	"github.com/gomodule/redigo/redis"
)

// Config represents the Redis store config structure.
type Config struct {
	Address     string        `koanf:"address"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	ActiveConns int           `koanf:"active_conns"`
	IdleConns   int           `koanf:"idle_conns"`
	Timeout     time.Duration `koanf:"timeout"`

	PrefixPresentation string `koanf:"prefix_presentation"`
}

// Redis represents the Redis implementation of the Store interface.
type Redis struct {
	cfg  *Config
	pool *redis.Pool
}

type presentation struct {
	ID        string `redis:"id"`
	Creator   string `redis:"creator"`
	CreatedAt string `redis:"created_at"`
}

// New returns a new Redis store.
func New(cfg Config) (*Redis, error) {
	pool := &redis.Pool{
		Wait:      true,
		MaxActive: cfg.ActiveConns,
		MaxIdle:   cfg.IdleConns,
		Dial: func() (redis.Conn, error) {
			return redis.Dial(
				"tcp",
				cfg.Address,
				redis.DialPassword(cfg.Password),
				redis.DialConnectTimeout(cfg.Timeout),
				redis.DialReadTimeout(cfg.Timeout),
				redis.DialWriteTimeout(cfg.Timeout),
				redis.DialDatabase(cfg.DB),
			)
		},
	}

	// Test connection.
	c := pool.Get()
	defer c.Close()

	if err := c.Err(); err != nil {
		return nil, err
	}
	return &Redis{cfg: &cfg, pool: pool}, nil
}

// AddPresentation adds a presentation to the store.
func (r *Redis) AddPresentation(p store.Presentation, ttl time.Duration) error {
	c := r.pool.Get()
	defer c.Close()

	key := fmt.Sprintf(r.cfg.PrefixPresentation, p.ID)
	c.Send("HMSET", key,
		"creator", p.Creator,
		"created_at", p.CreatedAt.Format(time.RFC3339))
	c.Send("EXPIRE", key, int(ttl.Seconds()))
	return c.Flush()
}

// ExtendPresentationTTL extends a presentation's TTL.
func (r *Redis) ExtendPresentationTTL(id string, ttl time.Duration) error {
	c := r.pool.Get()
	defer c.Close()

	c.Send("EXPIRE", fmt.Sprintf(r.cfg.PrefixPresentation, id), int(ttl.Seconds()))
	return c.Flush()
}

// GetPresentation gets a presentation from the store.
func (r *Redis) GetPresentation(id string) (store.Presentation, error) {
	c := r.pool.Get()
	defer c.Close()

	var (
		out store.Presentation
		p   presentation
		key = fmt.Sprintf(r.cfg.PrefixPresentation, id)
	)
	res, err := redis.Values(c.Do("HGETALL", key))
	if err != nil {
		return out, err
	}
	if err := redis.ScanStruct(res, &p); err != nil {
		return out, err
	}

	t, err := time.Parse(time.RFC3339, p.CreatedAt)
	if err != nil {
		return out, store.ErrPresentationNotFound
	}
	return store.Presentation{
		ID:        id,
		Creator:   p.Creator,
		CreatedAt: t,
	}, nil
}

// PresentationExists checks if a presentation exists in the store.
func (r *Redis) PresentationExists(id string) (bool, error) {
	c := r.pool.Get()
	defer c.Close()

	ok, err := redis.Bool(c.Do("EXISTS", fmt.Sprintf(r.cfg.PrefixPresentation, id)))
	if err != nil && err != redis.ErrNil {
		return false, err
	}
	return ok, nil
}

// RemovePresentation deletes a presentation from the store.
func (r *Redis) RemovePresentation(id string) error {
	c := r.pool.Get()
	defer c.Close()

	_, err := redis.Bool(c.Do("DEL", fmt.Sprintf(r.cfg.PrefixPresentation, id)))
	return err
}
