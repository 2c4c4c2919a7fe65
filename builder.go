package lexauth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/lexauth/apikey"
	"github.com/MrEthical07/lexauth/fieldenc"
	"github.com/MrEthical07/lexauth/internal/audit"
	"github.com/MrEthical07/lexauth/internal/queue"
	"github.com/MrEthical07/lexauth/internal/rate"
	"github.com/MrEthical07/lexauth/jwt"
	"github.com/MrEthical07/lexauth/mfa"
	"github.com/MrEthical07/lexauth/password"
	"github.com/MrEthical07/lexauth/permission"
	"github.com/MrEthical07/lexauth/session"
)

// Builder assembles an [Engine]. A Builder is single use.
type Builder struct {
	config   Config
	store    Store
	sessions SessionStore
	redis    redis.UniversalClient
	mailer   EmailSender
	sink     audit.Sink
	logger   *slog.Logger
	now      func() time.Time

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the account, role, API key and backup code store.
func (b *Builder) WithStore(s Store) *Builder {
	b.store = s
	return b
}

// WithSessionStore sets the session store. It takes precedence over the
// Redis-backed store created by WithRedis.
func (b *Builder) WithSessionStore(s SessionStore) *Builder {
	b.sessions = s
	return b
}

// WithRedis enables the Redis session store and the attempt limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMailer sets the sender for password reset mail.
func (b *Builder) WithMailer(m EmailSender) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink sets where audit events are delivered.
func (b *Builder) WithAuditSink(s AuditSink) *Builder {
	b.sink = s
	return b
}

// WithLogger sets the logger for best-effort failures.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}

	sessions := b.sessions
	if sessions == nil {
		if b.redis == nil {
			return nil, errors.New("session store or redis client required")
		}
		sessions = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- CREDENTIALS --------
	hasher, err := password.New(cfg.Password.Hash)
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash("lexauth-dummy-password")
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		Secret:        []byte(cfg.JWT.Secret),
		PublicKey:     []byte(cfg.JWT.PublicKey),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Clock:         now,
	})
	if err != nil {
		return nil, err
	}

	fields, err := fieldenc.New(cfg.fieldSecret())
	if err != nil {
		return nil, err
	}

	totp, err := mfa.NewManager(cfg.MFA)
	if err != nil {
		return nil, err
	}

	// -------- PERMISSIONS --------
	registry, err := permission.DefaultCatalog().Registry()
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		store:     b.store,
		sessions:  sessions,
		hasher:    hasher,
		tokens:    tokens,
		fields:    fields,
		mfa:       totp,
		keys:      apikey.NewManager(hasher),
		registry:  registry,
		mailer:    b.mailer,
		logger:    logger,
		now:       now,
		dummyHash: dummyHash,
	}

	if b.redis != nil && cfg.RateLimit.Enabled {
		engine.limiter = rate.New(b.redis, cfg.RateLimit.Config)
	}
	engine.audit = audit.NewDispatcher(cfg.Audit, b.sink)
	if b.mailer != nil {
		engine.outbound = queue.New(cfg.Mail.BufferSize, cfg.Mail.SendTimeout, engine.deliver)
	}
	engine.flows = engine.flowDeps()

	b.built = true
	return engine, nil
}
