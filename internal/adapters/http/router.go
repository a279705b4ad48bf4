package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/adapters/auth"
	"github.com/dkeye/Huddle/internal/adapters/pubsub"
	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/adapters/storage"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
)

const (
	sessionName = "HuddleSessions"
	keyUserID   = "uid"
	keyName     = "name"
	identityKey = "identity"
)

type Deps struct {
	Hub    *pubsub.Hub
	Store  *storage.BadgerStore
	Tokens *auth.Issuer
}

// IdentityResponse is the body of the identity endpoint.
type IdentityResponse struct {
	domain.Identity
	Token string `json:"token,omitempty"`
}

// IdentityMiddleware exposes the identity kept in the cookie session, if any,
// under the "identity" context key.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		uid, _ := s.Get(keyUserID).(string)
		name, _ := s.Get(keyName).(string)
		if who, err := domain.ParseIdentity(uid, name); err == nil {
			c.Set(identityKey, who)
		}
		c.Next()
	}
}

func sessionIdentity(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	who, ok := v.(domain.Identity)
	return who, ok
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(IdentityMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctl := signal.NewSignalWSController(deps.Hub, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	})

	api := r.Group("/api")
	api.GET("/identity", func(c *gin.Context) { handleIdentity(c, deps.Tokens) })
	api.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Hub.List())
	})

	sess := api.Group("/sessions/:id", sessionParam)
	sess.GET("/signal", func(c *gin.Context) {
		session := c.MustGet("session").(domain.SessionID)
		who, err := signalIdentity(c, deps.Tokens)
		if errors.Is(err, auth.ErrInvalidToken) {
			abort(c, http.StatusUnauthorized, err)
			return
		}
		if err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
		ctl.HandleSignal(ctx, c, session, who)
	})

	if deps.Store != nil {
		rec := recordings{store: deps.Store, maxBytes: cfg.Storage.MaxBytes}
		sess.PUT("/recordings", rec.upload)
		sess.GET("/recordings", rec.list)
		api.GET("/recordings/:ref", rec.download)
	}

	return r
}

func sessionParam(c *gin.Context) {
	session, err := domain.ParseSessionID(c.Param("id"))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.Set("session", session)
	c.Next()
}

// handleIdentity returns the identity kept in the cookie session, issuing one
// on first use. A name in the query renames it.
func handleIdentity(c *gin.Context, tokens *auth.Issuer) {
	who, ok := sessionIdentity(c)
	name := c.Query("name")
	switch {
	case !ok:
		if name == "" {
			name = "guest"
		}
		fresh, err := domain.NewIdentity(name)
		if err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
		who = fresh
	case name != "":
		if err := domain.ValidateDisplayName(name); err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
		who.DisplayName = name
	}

	s := sessions.Default(c)
	s.Set(keyUserID, string(who.ID))
	s.Set(keyName, who.DisplayName)
	if err := s.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
		abort(c, http.StatusInternalServerError, err)
		return
	}
	resp := IdentityResponse{Identity: who}
	if tokens != nil {
		token, err := tokens.Issue(who)
		if err != nil {
			abort(c, http.StatusInternalServerError, err)
			return
		}
		resp.Token = token
	}
	c.JSON(http.StatusOK, resp)
}

// signalIdentity accepts, in order, a signed token, explicit uid/name query
// parameters and the cookie session.
func signalIdentity(c *gin.Context, tokens *auth.Issuer) (domain.Identity, error) {
	if raw := c.Query("token"); raw != "" && tokens != nil {
		return tokens.Parse(raw)
	}
	uid, name := c.Query("uid"), c.Query("name")
	if uid == "" {
		if who, ok := sessionIdentity(c); ok {
			if name != "" {
				who.DisplayName = name
			}
			return who, domain.ValidateDisplayName(who.DisplayName)
		}
	}
	return domain.ParseIdentity(uid, name)
}

type recordings struct {
	store    *storage.BadgerStore
	maxBytes int64
}

func (h recordings) upload(c *gin.Context) {
	session := c.MustGet("session").(domain.SessionID)
	body := c.Request.Body
	if h.maxBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.maxBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abort(c, http.StatusRequestEntityTooLarge, storage.ErrTooLarge)
			return
		}
		abort(c, http.StatusBadRequest, err)
		return
	}

	art := storage.ArtifactFromRequest(c.Request.Header, session, data)
	if art.ContentType == "" || art.ContentType == "application/octet-stream" {
		art.ContentType = mimetype.Detect(data).String()
	}
	ref, err := h.store.Store(c.Request.Context(), art)
	if err != nil {
		abort(c, storeStatus(err), err)
		return
	}
	c.JSON(http.StatusCreated, storage.StoreResponse{Ref: ref})
}

func (h recordings) list(c *gin.Context) {
	session := c.MustGet("session").(domain.SessionID)
	list, err := h.store.List(session)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []storage.Recording{}
	}
	c.JSON(http.StatusOK, list)
}

func (h recordings) download(c *gin.Context) {
	rec, data, err := h.store.Get(c.Param("ref"))
	if err != nil {
		abort(c, storeStatus(err), err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+string(rec.Session)+"-"+rec.Ref+`.zip"`)
	c.Data(http.StatusOK, rec.ContentType, data)
}

func storeStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrEmpty):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
