package main

import (
	"context"
	"time"

	"PPresence/data/database/mgo/mongoutil"
	"PPresence/data/database/pg"
	"PPresence/global"
	"PPresence/logger"
	"PPresence/service/kafka"
	"PPresence/service/natsx"
	"PPresence/service/storage"
	redisx "PPresence/service/storage/redis"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// backends 可选的外部依赖，地址为空的不启用
type backends struct {
	rdb      *redis.Client
	presence *storage.RedisPresence
	mongo    *mongoutil.Client
	pg       *pgxpool.Pool
	nats     *natsx.NatsManager
	idem     *natsx.MemIdem
	kafka    *kafka.Producer
}

func openBackends(ctx context.Context, conf global.AppConfig) (*backends, error) {
	b := &backends{}
	if err := b.configRedis(ctx, conf); err != nil {
		b.Close(ctx)
		return nil, err
	}
	if err := b.configMgo(ctx, conf); err != nil {
		b.Close(ctx)
		return nil, err
	}
	if err := b.configPg(ctx, conf); err != nil {
		b.Close(ctx)
		return nil, err
	}
	if err := b.configNats(conf); err != nil {
		b.Close(ctx)
		return nil, err
	}
	if err := b.configKafka(conf); err != nil {
		b.Close(ctx)
		return nil, err
	}
	return b, nil
}

func (b *backends) configRedis(ctx context.Context, conf global.AppConfig) error {
	if conf.Redis.Addr == "" {
		logger.Info("[Boot] redis disabled, presence stays node-local")
		return nil
	}
	rdb, err := redisx.NewClient(ctx, redisx.Config{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
		PoolSize: conf.Redis.PoolSize,
	})
	if err != nil {
		return err
	}
	b.rdb = rdb
	b.presence = storage.NewRedisPresence(rdb, conf.GatewayNodeId, conf.Redis.PresenceTTL)
	logger.Info("[Boot] redis ready", zap.String("addr", conf.Redis.Addr), zap.Duration("presence_ttl", b.presence.TTL()))
	return nil
}

func (b *backends) configMgo(ctx context.Context, conf global.AppConfig) error {
	if conf.Mongo.Uri == "" {
		logger.Info("[Boot] mongo disabled, messages kept in memory")
		return nil
	}
	cli, err := mongoutil.NewMongoDB(ctx, &mongoutil.Config{Uri: conf.Mongo.Uri, Database: conf.Mongo.Database})
	if err != nil {
		return err
	}
	b.mongo = cli
	logger.Info("[Boot] mongo ready", zap.String("db", conf.Mongo.Database))
	return nil
}

func (b *backends) configPg(ctx context.Context, conf global.AppConfig) error {
	if conf.Postgres.DSN == "" {
		logger.Info("[Boot] postgres disabled, friend requests kept in memory")
		return nil
	}
	pool, err := pg.NewPool(ctx, conf.Postgres.DSN)
	if err != nil {
		return err
	}
	b.pg = pool
	return nil
}

func (b *backends) configNats(conf global.AppConfig) error {
	if len(conf.Nats.Servers) == 0 {
		logger.Info("[Boot] nats disabled, single gateway mode")
		return nil
	}
	b.idem = natsx.NewMemIdem(5 * time.Minute)
	m, err := natsx.NewNatsManager(natsx.NatsxConfig{
		Servers: conf.Nats.Servers,
		Name:    conf.Nats.Name,
	}, natsx.NatsxIdemMiddleware(b.idem, 0))
	if err != nil {
		return err
	}
	b.nats = m
	logger.Info("[Boot] nats ready", zap.Strings("servers", conf.Nats.Servers))
	return nil
}

func (b *backends) configKafka(conf global.AppConfig) error {
	if len(conf.Kafka.Brokers) == 0 {
		logger.Info("[Boot] kafka disabled, presence audit off")
		return nil
	}
	kc := kafka.DefaultConfig()
	kc.Brokers = conf.Kafka.Brokers
	kc.PresenceTopic = conf.Kafka.PresenceTopic
	p, err := kafka.NewProducer(kc)
	if err != nil {
		return err
	}
	b.kafka = p
	return nil
}

// Close 逆序释放
func (b *backends) Close(ctx context.Context) {
	if b.kafka != nil {
		if err := b.kafka.Close(); err != nil {
			logger.Warn("[Boot] kafka close", zap.Error(err))
		}
	}
	if b.nats != nil {
		if err := b.nats.Close(); err != nil {
			logger.Warn("[Boot] nats close", zap.Error(err))
		}
	}
	if b.idem != nil {
		b.idem.Close()
	}
	if b.pg != nil {
		b.pg.Close()
	}
	if b.mongo != nil {
		if err := b.mongo.Close(ctx); err != nil {
			logger.Warn("[Boot] mongo close", zap.Error(err))
		}
	}
	if b.rdb != nil {
		if err := b.rdb.Close(); err != nil {
			logger.Warn("[Boot] redis close", zap.Error(err))
		}
	}
}
