package main

import (
	"context"
	"fmt"

	"github.com/rbaliyan/event/v3/transport/channel"
	"github.com/rbaliyan/inbox"
	"github.com/rbaliyan/inbox/store"
	"github.com/rbaliyan/inbox/store/file"
	"github.com/rbaliyan/inbox/store/memory"
	mongostore "github.com/rbaliyan/inbox/store/mongo"
	"github.com/rbaliyan/inbox/store/postgres"
	redisstore "github.com/rbaliyan/inbox/store/redis"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// openStore builds the session store named by store.type.
func (a *app) openStore() (store.Store, error) {
	cfg := a.cfg.Store

	switch cfg.Type {
	case "memory":
		return memory.New(), nil

	case "file":
		opts := []file.Option{file.WithLogger(a.logger)}
		key, ok, err := cfg.SealKeyBytes()
		if err != nil {
			return nil, err
		}
		if ok {
			opts = append(opts, file.WithSealKey(key))
		}
		return file.New(cfg.Path, opts...), nil

	case "redis":
		opts := []redisstore.Option{
			redisstore.WithTimeout(cfg.Timeout),
			redisstore.WithLogger(a.logger),
		}
		if cfg.Namespace != "" {
			opts = append(opts, redisstore.WithPrefix(redisstore.DefaultPrefix+cfg.Namespace+":"))
		}
		return redisstore.New(a.redisClient(cfg.Addr), opts...), nil

	case "postgres":
		opts := []postgres.Option{
			postgres.WithTimeout(cfg.Timeout),
			postgres.WithLogger(a.logger),
		}
		if cfg.Namespace != "" {
			opts = append(opts, postgres.WithNamespace(cfg.Namespace))
		}
		return postgres.Open(cfg.DSN, opts...)

	case "mongo":
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		a.closers = append(a.closers, client.Disconnect)
		opts := []mongostore.Option{
			mongostore.WithDatabase(cfg.Database),
			mongostore.WithTimeout(cfg.Timeout),
			mongostore.WithLogger(a.logger),
		}
		if cfg.Namespace != "" {
			opts = append(opts, mongostore.WithNamespace(cfg.Namespace))
		}
		return mongostore.New(client, opts...), nil
	}
	return nil, fmt.Errorf("unknown store type %q", cfg.Type)
}

// eventOptions selects the event transport named by events.transport.
func (a *app) eventOptions() []inbox.Option {
	switch a.cfg.Events.Transport {
	case "channel":
		return []inbox.Option{inbox.WithEventTransport(channel.New())}
	case "redis":
		return []inbox.Option{inbox.WithRedisClient(a.redisClient(a.cfg.EventsRedisAddr()))}
	}
	return nil
}

// redisClient returns one client per address, closed with the app.
func (a *app) redisClient(addr string) goredis.UniversalClient {
	if c, ok := a.redis[addr]; ok {
		return c
	}
	c := goredis.NewClient(&goredis.Options{Addr: addr})
	if a.redis == nil {
		a.redis = make(map[string]goredis.UniversalClient)
	}
	a.redis[addr] = c
	a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	return c
}
