package global

import "time"

// AppConfig 网关进程的全部配置；后端地址留空即表示不启用
type AppConfig struct {
	GatewayNodeId string // 节点ID，redis presence 的 field、nats 头里都会带上
	HttpAddr      string // http/ws 监听地址
	FrontendURL   string // 允许的 websocket Origin，空表示不校验
	Debug         bool   // gin debug 模式

	Jwt      JwtConfig
	Conn     ConnConfig
	Redis    RedisConfig
	Mongo    MongoConfig
	Postgres PostgresConfig
	Nats     NatsConfig
	Kafka    KafkaConfig
}

type JwtConfig struct {
	Secret string
	Alg    string
	TTL    time.Duration
}

// ConnConfig 单连接的写队列与超时
type ConnConfig struct {
	SendQueue      int           // 每个连接的待发送队列长度
	WriteWait      time.Duration // 单次写超时
	PongWait       time.Duration // 读超时，收到 pong/ping 时续期
	PingInterval   time.Duration // 控制帧 ping 间隔，必须小于 PongWait
	EnqueueWait    time.Duration // 队列满时最多等待多久，超时视为慢连接
	MaxMessageSize int64
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	PresenceTTL time.Duration
}

type MongoConfig struct {
	Uri      string
	Database string
}

type PostgresConfig struct {
	DSN string
}

type NatsConfig struct {
	Servers []string
	Name    string
}

type KafkaConfig struct {
	Brokers       []string
	PresenceTopic string
}
