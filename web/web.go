// Package web provides the HTTP server of the members site, including routing,
// templates, the session store and background job scheduling.
package web

import (
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/memberpanel/memberpanel/config"
	"github.com/memberpanel/memberpanel/logger"
	"github.com/memberpanel/memberpanel/util/common"
	"github.com/memberpanel/memberpanel/util/crypto"
	"github.com/memberpanel/memberpanel/util/metrics"
	"github.com/memberpanel/memberpanel/util/random"
	"github.com/memberpanel/memberpanel/web/cache"
	"github.com/memberpanel/memberpanel/web/controller"
	"github.com/memberpanel/memberpanel/web/entity"
	"github.com/memberpanel/memberpanel/web/job"
	"github.com/memberpanel/memberpanel/web/locale"
	"github.com/memberpanel/memberpanel/web/middleware"
	"github.com/memberpanel/memberpanel/web/network"
	"github.com/memberpanel/memberpanel/web/service"
	"github.com/memberpanel/memberpanel/web/session"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"go.uber.org/atomic"
	"gorm.io/gorm"
)

//go:embed assets
var assetsFS embed.FS

//go:embed html/*
var htmlFS embed.FS

//go:embed translation/*
var i18nFS embed.FS

var startTime = time.Now()

var welcomeImages = []string{"welcome_1.svg", "welcome_2.svg", "welcome_3.svg"}

type wrapAssetsFS struct {
	embed.FS
}

func (f *wrapAssetsFS) Open(name string) (fs.File, error) {
	file, err := f.FS.Open("assets/" + name)
	if err != nil {
		return nil, err
	}
	return &wrapAssetsFile{File: file}, nil
}

type wrapAssetsFile struct {
	fs.File
}

func (f *wrapAssetsFile) Stat() (fs.FileInfo, error) {
	info, err := f.File.Stat()
	if err != nil {
		return nil, err
	}
	return &wrapAssetsFileInfo{FileInfo: info}, nil
}

// wrapAssetsFileInfo reports the process start as modification time so embedded
// assets get a Last-Modified header.
type wrapAssetsFileInfo struct {
	fs.FileInfo
}

func (f *wrapAssetsFileInfo) ModTime() time.Time {
	return startTime
}

// Server is the members site web server with its services, controllers and scheduled jobs.
type Server struct {
	httpServer *http.Server
	listener   net.Listener

	db    *gorm.DB
	redis *cache.Redis
	store *cache.RedisStore

	userService  *service.UserService
	authService  *service.AuthService
	roleService  *service.RoleService
	auditService *service.AuditLogService

	index   *controller.IndexController
	members *controller.MembersController
	admin   *controller.AdminController
	health  *controller.HealthController

	cron    *cron.Cron
	running *atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a web server backed by db.
func NewServer(db *gorm.DB) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		db:      db,
		running: atomic.NewBool(false),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Server) initServices() {
	s.userService = service.NewUserService(s.db)
	s.auditService = service.NewAuditLogService(s.db)
	s.authService = service.NewAuthService(s.userService, crypto.NewHasher(config.GetBcryptCost()))
	s.roleService = service.NewRoleService(s.userService, s.auditService)
}

// sessionKeys returns the cookie signing key. Without a configured secret a random key
// is used and sessions do not survive a restart.
func sessionKeys() [][]byte {
	secret := config.GetSessionSecret()
	if secret == "" {
		logger.Warning("MEMBERS_SESSION_SECRET is not set, signing sessions with a random key")
		secret = random.Seq(32)
	}
	return [][]byte{[]byte(secret)}
}

// getHtmlFiles walks the local `web/html` directory and returns a list of
// template file paths. Used only in debug/development mode.
func (s *Server) getHtmlFiles() ([]string, error) {
	files := make([]string, 0)
	dir, _ := os.Getwd()
	err := fs.WalkDir(os.DirFS(dir), "web/html", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// getHtmlTemplate parses embedded HTML templates from the bundled `htmlFS`.
func (s *Server) getHtmlTemplate(funcMap template.FuncMap) (*template.Template, error) {
	t := template.New("").Funcs(funcMap)
	err := fs.WalkDir(htmlFS, "html", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			newT, err := t.ParseFS(htmlFS, path+"/*.html")
			if err != nil {
				// ignore folders without matches
				return nil
			}
			t = newT
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// initRouter initializes Gin, registers middleware, templates, static assets,
// controllers and returns the configured engine.
func (s *Server) initRouter() (*gin.Engine, error) {
	if config.IsDebug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.DefaultWriter = io.Discard
		gin.DefaultErrorWriter = io.Discard
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.Default()
	if err := engine.SetTrustedProxies(config.GetTrustedProxies()); err != nil {
		return nil, err
	}

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := entity.RegisterValidations(v); err != nil {
			return nil, err
		}
	}

	if domain := config.GetDomain(); domain != "" {
		engine.Use(middleware.DomainValidatorMiddleware(domain))
	}
	engine.Use(middleware.RequestID(), middleware.Metrics())
	engine.Use(gzip.Gzip(
		gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/metrics", "/healthz"}),
	))

	s.store = cache.NewRedisStore(s.redis.Client(), sessionKeys()...)
	engine.Use(sessions.Sessions(session.CookieName, s.store))

	if err := locale.InitLocalizer(i18nFS); err != nil {
		return nil, err
	}
	engine.Use(locale.LocalizerMiddleware())

	// i18n in templates
	funcMap := template.FuncMap{"i18n": locale.I18n}
	engine.SetFuncMap(funcMap)

	// Static files & templates
	if config.IsDebug() {
		files, err := s.getHtmlFiles()
		if err != nil {
			return nil, err
		}
		engine.LoadHTMLFiles(files...)
		engine.StaticFS("/assets", http.FS(os.DirFS("web/assets")))
	} else {
		tpl, err := s.getHtmlTemplate(funcMap)
		if err != nil {
			return nil, err
		}
		engine.SetHTMLTemplate(tpl)
		engine.StaticFS("/assets", http.FS(&wrapAssetsFS{FS: assetsFS}))
	}

	formLimit, err := middleware.RateLimit(s.redis.Client(), "forms", config.GetLoginRate())
	if err != nil {
		return nil, err
	}

	g := engine.Group("/")
	s.index = controller.NewIndexController(g, s.authService, s.auditService, formLimit)
	s.members = controller.NewMembersController(g, welcomeImages)
	s.admin = controller.NewAdminController(g, s.userService, s.roleService, s.auditService)
	s.health = controller.NewHealthController(g, s, s.redis)

	engine.GET("/metrics", middleware.RequireAdmin(s.roleService), gin.WrapH(metrics.Handler()))

	// 404 handler
	engine.NoRoute(controller.NotFound)

	return engine, nil
}

// startTask schedules the background jobs.
func (s *Server) startTask() {
	s.cron = cron.New(cron.WithSeconds())

	if _, err := s.cron.AddJob("@every 5m", job.NewCheckpointJob(s.db)); err != nil {
		logger.Warning("Add checkpoint job failed: ", err)
	}
	if _, err := s.cron.AddJob("@every 30s", job.NewSessionGaugeJob(s.store)); err != nil {
		logger.Warning("Add session gauge job failed: ", err)
	}
	if _, err := s.cron.AddJob("@daily", job.NewAuditCleanupJob(s.auditService, config.GetAuditRetentionDays())); err != nil {
		logger.Warning("Add audit cleanup job failed: ", err)
	}

	s.cron.Start()
}

// Start initializes and starts the web server.
func (s *Server) Start() (err error) {
	defer func() {
		if err != nil {
			_ = s.Stop()
		}
	}()

	s.redis, err = cache.Connect(s.ctx, config.GetRedisAddr(), config.GetRedisPassword())
	if err != nil {
		return err
	}
	s.initServices()

	engine, err := s.initRouter()
	if err != nil {
		return err
	}

	listenAddr := net.JoinHostPort(config.GetListen(), strconv.Itoa(config.GetPort()))
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}

	certFile, keyFile := config.GetCertFile(), config.GetKeyFile()
	if certFile != "" || keyFile != "" {
		if cert, err := tls.LoadX509KeyPair(certFile, keyFile); err == nil {
			cfg := &tls.Config{Certificates: []tls.Certificate{cert}}
			listener = network.NewAutoHttpsListener(listener)
			listener = tls.NewListener(listener, cfg)
			logger.Info("Web server running HTTPS on ", listener.Addr())
		} else {
			logger.Error("Error loading certificates: ", err)
			logger.Info("Web server running HTTP on ", listener.Addr())
		}
	} else {
		logger.Info("Web server running HTTP on ", listener.Addr())
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Web server stopped: ", err)
		}
	}()

	s.startTask()
	s.running.Store(true)
	return nil
}

// Stop gracefully shuts down the web server, the cron jobs and the redis connection.
func (s *Server) Stop() error {
	s.running.Store(false)
	if s.cron != nil {
		s.cron.Stop()
	}

	var err1, err2, err3 error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err1 = s.httpServer.Shutdown(ctx)
		cancel()
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			err2 = err
		}
	}
	if s.redis != nil {
		err3 = s.redis.Close()
	}
	s.cancel()
	return common.Combine(err1, err2, err3)
}

// IsRunning reports whether Start completed and Stop has not been called since.
func (s *Server) IsRunning() bool { return s.running.Load() }
