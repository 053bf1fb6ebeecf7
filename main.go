package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PPresence/global"
	"PPresence/logger"
	"PPresence/middleware"
	midsec "PPresence/middleware/security"
	friendhandler "PPresence/module/friend/handler"
	friendservice "PPresence/module/friend/service"
	friendstore "PPresence/module/friend/store"
	msghandler "PPresence/module/message/handler"
	msgservice "PPresence/module/message/service"
	msgstore "PPresence/module/message/store"
	"PPresence/service/chat"
	"PPresence/service/cluster"
	"PPresence/service/kafka"
	"PPresence/service/session"
	"PPresence/tools/ids"
	"PPresence/tools/safe"
	"PPresence/tools/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownWait = 10 * time.Second

func main() {
	defer logger.Sync()

	conf := global.LoadFromEnv()
	ids.SetNodeID(ids.NodeIDFromString(conf.GatewayNodeId))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, conf)
	if err != nil {
		logger.Error("[Boot] backend init failed", zap.Error(err))
		os.Exit(1)
	}
	defer b.Close(context.Background())

	mgr := session.NewManager()
	chatHub := mgr.Hub(session.TopicChat)
	friendHub := mgr.Hub(session.TopicFriendRequests)

	if b.presence != nil {
		for _, h := range mgr.Hubs() {
			h.AddObserver(b.presence)
		}
		safe.SafeGo("presence-refresh", func() { b.presence.RunRefresher(ctx, mgr.Hubs()) })
	}
	if b.kafka != nil {
		audit := kafka.NewPresenceLog(b.kafka, conf.Kafka.PresenceTopic, conf.GatewayNodeId)
		for _, h := range mgr.Hubs() {
			h.AddObserver(audit)
		}
	}

	var (
		msgNotifier    msgservice.Notifier    = chatHub
		friendNotifier friendservice.Notifier = friendHub
	)
	if b.nats != nil {
		relay := cluster.NewRelay(conf.GatewayNodeId, b.nats, mgr.Hubs()...)
		if err := relay.Start(); err != nil {
			logger.Error("[Boot] cluster relay failed", zap.Error(err))
			os.Exit(1)
		}
		var lookup cluster.NodeLookup
		if b.presence != nil {
			lookup = b.presence
		}
		msgNotifier = relay.Notifier(chatHub, lookup)
		friendNotifier = relay.Notifier(friendHub, lookup)
	}

	var msgSt msgstore.Store = msgstore.NewMemoryStore()
	if b.mongo != nil {
		ms := msgstore.NewMongoStore(b.mongo.GetDB())
		if err := ms.EnsureIndexes(ctx); err != nil {
			logger.Warn("[Boot] message indexes", zap.Error(err))
		}
		msgSt = ms
	}
	var friendSt friendstore.Store = friendstore.NewMemoryStore()
	if b.pg != nil {
		ps := friendstore.NewPgStore(b.pg)
		if err := ps.EnsureSchema(ctx); err != nil {
			logger.Error("[Boot] friend schema", zap.Error(err))
			os.Exit(1)
		}
		friendSt = ps
	}

	var msgOpts []msgservice.Option
	if b.presence != nil {
		msgOpts = append(msgOpts, msgservice.WithPresenceLookup(b.presence.Lookup(session.TopicChat)))
	}
	msgH := msghandler.NewMessageHandler(msgservice.NewMessageService(msgSt, msgNotifier, msgOpts...))
	friendH := friendhandler.NewFriendHandler(friendservice.NewFriendService(friendSt, friendNotifier))

	verifier := security.NewVerifier(security.Options{
		Secret: []byte(conf.Jwt.Secret),
		Alg:    conf.Jwt.Alg,
		TTL:    conf.Jwt.TTL,
	})

	if conf.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.AccessLog(), middleware.Manager().Use())

	routes := middleware.NewRoutes(r, midsec.Middleware(verifier, midsec.DefaultOptions()))
	msgH.Register(routes)
	friendH.Register(routes)

	frames := chat.NewFrameRouter()
	msgH.RegisterFrames(frames)
	connConf := chat.ConnConfFrom(conf.Conn)
	origin := chat.WithCheckOrigin(middleware.AllowOrigin(conf.FrontendURL))
	r.GET("/chat", chat.NewHandler(chatHub, verifier, connConf, origin, chat.WithInbound(frames.Handle)).HandleWS)
	r.GET("/ws/friend", chat.NewHandler(friendHub, verifier, connConf, origin).HandleWS)
	r.GET("/healthz", func(c *gin.Context) {
		global.Reply(c, gin.H{"node": conf.GatewayNodeId, "topics": mgr.Stats()}, nil)
	})

	srv := &http.Server{Addr: conf.HttpAddr, Handler: r}
	safe.SafeGo("http-server", func() {
		logger.Info("[Boot] listening", zap.String("addr", conf.HttpAddr), zap.String("node", conf.GatewayNodeId))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("[Boot] http server", zap.Error(err))
			stop()
		}
	})

	<-ctx.Done()
	logger.Info("[Boot] shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	// 先停止接入再关 hub，关 hub 会关闭所有连接并通知观察者下线
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("[Boot] http shutdown", zap.Error(err))
	}
	mgr.Close()
}
