package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"sayhi/internal/api/auth"
	"sayhi/internal/api/middleware"
	"sayhi/internal/config"
	"sayhi/internal/message"
	"sayhi/internal/model"
	"sayhi/internal/pkg/dedup"
	"sayhi/internal/pkg/metrics"
	"sayhi/internal/repository"
	mysqlrepo "sayhi/internal/repository/mysql"
	"sayhi/internal/session"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、会话权威、消息引擎以及 Gin 路由引擎。
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *gorm.DB
	rdb      *redis.Client
	router   *gin.Engine
	auth     *auth.Handler
	sessions SessionAuthority
	users    repository.UserRepository
	messages MessageService
}

// SessionAuthority 会话 token 的签发、校验与吊销。
type SessionAuthority interface {
	middleware.TokenValidator
	auth.TokenIssuer
	Revoke(ctx context.Context, userID string) error
}

// MessageService 消息收发与已读回执。
type MessageService interface {
	Send(ctx context.Context, req message.SendRequest) (*model.Message, error)
	QueryAsSender(ctx context.Context, senderID string, opts message.ListOptions) (message.Page, error)
	QueryAsReceiver(ctx context.Context, receiverID string, opts message.ListOptions) (message.Page, error)
	QueryLatest(ctx context.Context, role model.Role, viewerID string, filter message.Filter) (message.Page, error)
	Update(ctx context.Context, id, senderID, text string) (*model.Message, error)
	MarkRetrieved(ctx context.Context, id, receiverID, retrieveTime string) (*model.Message, error)
	Delete(ctx context.Context, id string, role model.Role, ownerID string) (*model.Message, error)
}

// Deps 是路由层依赖的业务组件。
type Deps struct {
	Users    repository.UserRepository
	Messages MessageService
	Sessions SessionAuthority
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库（按配置执行自动迁移）
// 2. 连接 Redis 并创建会话权威与消息 ID 占位器
// 3. 组装消息引擎
// 4. 初始化 Gin 路由引擎
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := mysqlrepo.Open(cfg.MySQL.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MySQL.AutoMigrate {
		if err := mysqlrepo.AutoMigrate(db); err != nil {
			return nil, err
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	sessions := session.NewAuthority(
		session.NewRedisStore(rdb),
		cfg.Session.TokenTTL,
		logger,
		session.WithClockSkew(cfg.Session.ClockSkew),
	)
	exchange := message.NewExchange(
		mysqlrepo.NewMessageRepo(db),
		dedup.NewMessageClaims(rdb, cfg.Message.SendDedupWindow),
		message.WithMaxPageSize(cfg.Message.MaxPageSize),
		message.WithLogger(logger),
	)

	metrics.InitMetrics()
	gin.SetMode(gin.ReleaseMode)

	s := newServer(cfg, logger, Deps{
		Users:    mysqlrepo.NewUserRepo(db),
		Messages: exchange,
		Sessions: sessions,
	})
	s.db = db
	s.rdb = rdb
	return s, nil
}

func newServer(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	r := gin.New()
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.ErrorHandler(cfg.App.IsProduction(), logger))
	r.Use(cors.New(corsConfig(cfg.CORS)))
	r.Use(middleware.SessionToken(middleware.DefaultAuthPolicy(), deps.Sessions, logger))

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		router:   r,
		auth:     auth.NewHandler(deps.Users, deps.Sessions, logger),
		sessions: deps.Sessions,
		users:    deps.Users,
		messages: deps.Messages,
	}
	s.registerRoutes()
	return s
}

func corsConfig(c config.CORSConfig) cors.Config {
	cc := cors.Config{
		AllowMethods: []string{"GET", "HEAD", "PUT", "POST", "DELETE", "PATCH"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept",
			middleware.HeaderUserID, middleware.HeaderToken, middleware.HeaderTokenTimestamp,
		},
		ExposeHeaders: []string{headerTotalCount},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range c.AllowOrigins {
		if strings.TrimSpace(o) == "*" {
			cc.AllowAllOrigins = true
			return cc
		}
	}
	cc.AllowOrigins = c.AllowOrigins
	if len(cc.AllowOrigins) == 0 {
		cc.AllowAllOrigins = true
	}
	return cc
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if closeErr := sqlDB.Close(); closeErr != nil && firstErr == nil {
			firstErr = closeErr
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。鉴权由全局 SessionToken 中间件按路径决定。
func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	s.router.POST("/login", s.auth.Login)
	s.router.POST("/checkUserAuth", s.auth.CheckUserAuth)
	s.router.GET("/randomPickUsers", s.handleRandomPickUsers)

	users := s.router.Group("/api/v1/users")
	users.POST("", s.auth.Register)
	users.GET("", s.handleListUsers)
	users.GET("/:id", s.handleGetUser)
	users.PUT("", s.handleUpdateUser)
	users.PUT("/:id", s.handleUpdateUser)
	users.PATCH("", s.handleUpdateUser)
	users.PATCH("/:id", s.handleUpdateUser)
	users.DELETE("/:id", s.handleDeleteUser)

	messages := s.router.Group("/api/v1/messages")
	messages.GET("", s.handleListSent)
	messages.GET("/new", s.handleLatestSent)
	messages.GET("/:id", s.handleConversationSent)
	messages.POST("", s.handleSendMessage)
	messages.PUT("", s.handleUpdateMessage)
	messages.PUT("/:id", s.handleUpdateMessage)
	messages.PATCH("", s.handleUpdateMessage)
	messages.PATCH("/:id", s.handleUpdateMessage)
	messages.DELETE("/:id", s.handleDeleteSent)

	notifications := s.router.Group("/api/v1/notifications")
	notifications.GET("", s.handleListReceived)
	notifications.GET("/new", s.handleLatestReceived)
	notifications.GET("/:id", s.handleConversationReceived)
	notifications.PUT("/:id", s.handleAcknowledge)
	notifications.PATCH("/:id", s.handleAcknowledge)
	notifications.DELETE("/:id", s.handleDeleteReceived)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
