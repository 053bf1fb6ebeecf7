package global

import (
	"time"

	"PPresence/tools"
)

// MessageGatewayConfig 默认配置，LoadFromEnv 在此基础上覆盖
var MessageGatewayConfig = AppConfig{
	GatewayNodeId: "msg_gw-1",
	HttpAddr:      ":8080",
	Jwt: JwtConfig{
		Secret: "mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o=",
		Alg:    "HS256",
		TTL:    2 * time.Hour,
	},
	Conn: ConnConfig{
		SendQueue:      256,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingInterval:   25 * time.Second,
		EnqueueWait:    50 * time.Millisecond,
		MaxMessageSize: 64 * 1024,
	},
	Redis: RedisConfig{
		PoolSize:    20,
		PresenceTTL: 90 * time.Second,
	},
	Mongo: MongoConfig{
		Database: "chat",
	},
	Kafka: KafkaConfig{
		PresenceTopic: "presence_events",
	},
}

// LoadFromEnv 读取环境变量覆盖默认配置
func LoadFromEnv() AppConfig {
	c := MessageGatewayConfig

	c.GatewayNodeId = tools.GetEnv("GATEWAY_ID", c.GatewayNodeId)
	c.HttpAddr = tools.GetEnv("HTTP_ADDR", c.HttpAddr)
	c.FrontendURL = tools.GetEnv("FRONTEND_URL", c.FrontendURL)
	c.Debug = tools.GetEnvBool("GIN_DEBUG", c.Debug)

	c.Jwt.Secret = tools.GetEnv("JWT_SECRET", c.Jwt.Secret)
	c.Jwt.Alg = tools.GetEnv("JWT_ALG", c.Jwt.Alg)

	c.Conn.SendQueue = tools.GetEnvInt("WS_SEND_QUEUE", c.Conn.SendQueue)
	c.Conn.WriteWait = tools.GetEnvMillis("WS_WRITE_WAIT_MS", c.Conn.WriteWait)
	c.Conn.PongWait = tools.GetEnvMillis("WS_PONG_WAIT_MS", c.Conn.PongWait)
	c.Conn.PingInterval = tools.GetEnvMillis("WS_PING_INTERVAL_MS", c.Conn.PingInterval)
	c.Conn.EnqueueWait = tools.GetEnvMillis("WS_ENQUEUE_WAIT_MS", c.Conn.EnqueueWait)
	c.Conn.MaxMessageSize = int64(tools.GetEnvInt("WS_MAX_MESSAGE_BYTES", int(c.Conn.MaxMessageSize)))

	c.Redis.Addr = tools.GetEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = tools.GetEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = tools.GetEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.PresenceTTL = time.Duration(tools.GetEnvInt("PRESENCE_TTL_SEC", int(c.Redis.PresenceTTL/time.Second))) * time.Second

	c.Mongo.Uri = tools.GetEnv("MONGO_URI", c.Mongo.Uri)
	c.Mongo.Database = tools.GetEnv("MONGO_DB", c.Mongo.Database)

	c.Postgres.DSN = tools.GetEnv("DATABASE_URL", c.Postgres.DSN)

	c.Nats.Servers = tools.GetEnvList("NATS_SERVERS", c.Nats.Servers)
	c.Nats.Name = tools.GetEnv("NATS_NAME", c.GatewayNodeId)

	c.Kafka.Brokers = tools.GetEnvList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.PresenceTopic = tools.GetEnv("KAFKA_PRESENCE_TOPIC", c.Kafka.PresenceTopic)

	// ping 间隔必须小于读超时，否则空闲连接会被误判
	if c.Conn.PingInterval <= 0 || c.Conn.PingInterval >= c.Conn.PongWait {
		c.Conn.PingInterval = c.Conn.PongWait * 9 / 10
	}
	return c
}

func GetJwtSecret() []byte {
	return []byte(LoadFromEnv().Jwt.Secret)
}
