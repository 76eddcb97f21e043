package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/coinvault/internal/auth"
	"github.com/dukerupert/coinvault/internal/campaign"
	"github.com/dukerupert/coinvault/internal/config"
	"github.com/dukerupert/coinvault/internal/email"
	"github.com/dukerupert/coinvault/internal/events"
	"github.com/dukerupert/coinvault/internal/handler"
	"github.com/dukerupert/coinvault/internal/middleware"
	"github.com/dukerupert/coinvault/internal/notify"
	"github.com/dukerupert/coinvault/internal/push"
	"github.com/dukerupert/coinvault/internal/redeem"
	"github.com/dukerupert/coinvault/internal/settlement"
	"github.com/dukerupert/coinvault/internal/snapshot"
	"github.com/dukerupert/coinvault/internal/store"
	"github.com/dukerupert/coinvault/internal/topup"
	"github.com/dukerupert/coinvault/internal/treasury"
	ws "github.com/dukerupert/coinvault/internal/websocket"
)

type Server struct {
	db     *sql.DB
	hub    *ws.Hub
	events events.Publisher

	authn     *middleware.Authenticator
	authH     *handler.AuthHandler
	walletH   *handler.WalletHandler
	voucherH  *handler.VoucherHandler
	codeH     *handler.CodeHandler
	campaignH *handler.CampaignHandler
	treasuryH *handler.TreasuryHandler
	adminH    *handler.AdminHandler
	topupH    *handler.TopupHandler
	pushH     *handler.PushHandler

	sessionStore  *store.SessionStore
	loginLimiter  *middleware.RateLimiter
	redeemLimiter *middleware.RateLimiter
	snapshots     *snapshot.Manager
	logger        *slog.Logger
}

// New builds every service over db. pub carries ledger events to an
// external broker; the websocket hub is always added alongside it.
func New(cfg *config.Config, db *sql.DB, pub events.Publisher, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	if pub == nil {
		pub = events.Nop{}
	}
	fanout := events.Fanout{pub, hub}

	pushSvc := push.NewService(cfg.Push)
	mailer := email.New(cfg.Email, cfg.Server.BaseURL)
	notifier := notify.New(mailer, pushSvc, store.NewPushStore(db), logger)

	engine := settlement.New(db, fanout, logger, cfg.Ledger.EnforceGrantExpiry)
	campaigns := campaign.New(db, notifier, fanout, logger, campaign.Options{
		BaseURL:        cfg.Server.BaseURL,
		CodeExpiryDays: cfg.Ledger.CodeExpiryDays,
		EnforceExpiry:  cfg.Ledger.EnforceGrantExpiry,
	})
	codes := redeem.New(db, notifier, fanout, logger, redeem.Options{
		BaseURL:        cfg.Server.BaseURL,
		CodeExpiryDays: cfg.Ledger.CodeExpiryDays,
	})
	treasurySvc := treasury.New(db, fanout, logger)
	topups := topup.New(cfg.Stripe, db, fanout, logger)
	snapshots := snapshot.NewManager(cfg.S3, cfg.Snapshot, db, logger)

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	secure := strings.HasPrefix(cfg.Server.BaseURL, "https://")

	return &Server{
		db:     db,
		hub:    hub,
		events: fanout,

		authn:     middleware.NewAuthenticator(db, tokens),
		authH:     handler.NewAuthHandler(db, tokens, cfg.Auth.SessionTTL, secure, logger.With("component", "auth")),
		walletH:   handler.NewWalletHandler(engine, campaigns, logger.With("component", "wallet")),
		voucherH:  handler.NewVoucherHandler(db, hub, logger.With("component", "voucher")),
		codeH:     handler.NewCodeHandler(codes, logger.With("component", "code")),
		campaignH: handler.NewCampaignHandler(campaigns, db, logger.With("component", "campaign_handler")),
		treasuryH: handler.NewTreasuryHandler(treasurySvc, logger.With("component", "treasury_handler")),
		adminH:    handler.NewAdminHandler(db, snapshots, logger.With("component", "admin")),
		topupH:    handler.NewTopupHandler(topups, logger.With("component", "topup_handler")),
		pushH:     handler.NewPushHandler(db, pushSvc, logger.With("component", "push_handler")),

		sessionStore:  store.NewSessionStore(db),
		loginLimiter:  middleware.NewRateLimiter(cfg.Rate.LoginPerMinute),
		redeemLimiter: middleware.NewRateLimiter(cfg.Rate.RedeemPerMinute),
		snapshots:     snapshots,
		logger:        logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiters returns the limiters for cleanup tasks.
func (s *Server) RateLimiters() []*middleware.RateLimiter {
	return []*middleware.RateLimiter{s.loginLimiter, s.redeemLimiter}
}

// SnapshotManager returns the snapshot manager.
func (s *Server) SnapshotManager() *snapshot.Manager {
	return s.snapshots
}

// Close disconnects websocket clients and flushes the event publisher.
func (s *Server) Close() {
	s.events.Close()
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	byIP := func(r *http.Request) string { return middleware.RealIP(r) }
	byUser := func(r *http.Request) string { return strconv.FormatInt(auth.UserID(r.Context()), 10) }

	// Public
	mux.Handle("POST /api/auth/register", middleware.RateLimit(s.loginLimiter, byIP)(http.HandlerFunc(s.authH.Register)))
	mux.Handle("POST /api/auth/login", middleware.RateLimit(s.loginLimiter, byIP)(http.HandlerFunc(s.authH.Login)))
	mux.HandleFunc("GET /api/vouchers", s.voucherH.ListActive)
	mux.HandleFunc("POST /webhooks/stripe", s.topupH.Webhook)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", s.healthHandler)

	// Any authenticated caller
	s.authed(mux, "POST /api/auth/logout", "", s.authH.Logout)
	s.authed(mux, "GET /api/auth/me", "", s.authH.Me)
	s.authed(mux, "POST /api/push/subscribe", "", s.pushH.Subscribe)
	s.authed(mux, "DELETE /api/push/subscriptions/{id}", "", s.pushH.Unsubscribe)
	s.authed(mux, "GET /api/push/vapid-key", "", s.pushH.VAPIDKey)
	s.authed(mux, "GET /ws", "", s.hub.HandleWebSocket(nil))

	// Wallet and purchases
	s.authed(mux, "GET /api/wallet", auth.CapViewWallet, s.walletH.Wallet)
	s.authed(mux, "GET /api/wallet/eligibility", auth.CapViewWallet, s.walletH.Eligibility)
	s.authed(mux, "GET /api/vouchers/campaign", auth.CapViewWallet, s.walletH.CampaignVouchers)
	s.authed(mux, "POST /api/wallet/quote", auth.CapPurchase, s.walletH.Quote)
	s.authed(mux, "POST /api/purchases", auth.CapPurchase, s.walletH.Purchase)
	s.authed(mux, "GET /api/purchases", auth.CapPurchase, s.walletH.ListPurchases)
	s.authed(mux, "POST /api/purchases/{id}/redeem", auth.CapPurchase, s.walletH.UsePurchase)
	s.authed(mux, "POST /api/purchases/{id}/assign", auth.CapAssignVouchers, s.walletH.AssignPurchase)

	// Redemption codes
	redeemLimited := middleware.RateLimit(s.redeemLimiter, byUser)(http.HandlerFunc(s.codeH.Redeem))
	s.authed(mux, "POST /api/codes/redeem", auth.CapRedeemCode, redeemLimited.ServeHTTP)
	s.authed(mux, "POST /api/codes", auth.CapIssueCodes, s.codeH.Issue)
	s.authed(mux, "GET /api/codes", auth.CapIssueCodes, s.codeH.ListIssued)

	// Campaigns
	s.authed(mux, "GET /api/campaigns", auth.CapManageCampaigns, s.campaignH.List)
	s.authed(mux, "POST /api/campaigns", auth.CapManageCampaigns, s.campaignH.Create)
	s.authed(mux, "GET /api/campaigns/{id}", auth.CapManageCampaigns, s.campaignH.Get)
	s.authed(mux, "PUT /api/campaigns/{id}", auth.CapManageCampaigns, s.campaignH.Update)
	s.authed(mux, "DELETE /api/campaigns/{id}", auth.CapManageCampaigns, s.campaignH.Delete)
	s.authed(mux, "POST /api/campaigns/{id}/distribute", auth.CapManageCampaigns, s.campaignH.Distribute)
	s.authed(mux, "GET /api/campaigns/{id}/analytics", auth.CapManageCampaigns, s.campaignH.Analytics)
	s.authed(mux, "GET /api/employees", auth.CapManageCampaigns, s.campaignH.Employees)
	s.authed(mux, "GET /api/company/stats", auth.CapManageCampaigns, s.campaignH.CompanyStats)

	// Treasury
	s.authed(mux, "POST /api/coin-requests", auth.CapRequestCoins, s.treasuryH.RequestCoins)
	s.authed(mux, "GET /api/coin-requests", auth.CapApproveCoins, s.treasuryH.ListRequests)
	s.authed(mux, "POST /api/coin-requests/{id}/decision", auth.CapApproveCoins, s.treasuryH.Decide)
	s.authed(mux, "POST /api/admin/coins", auth.CapMintCoins, s.treasuryH.Adjust)
	s.authed(mux, "POST /api/topups/checkout", auth.CapRequestCoins, s.topupH.Checkout)

	// Catalog and audit
	s.authed(mux, "GET /api/admin/vouchers", auth.CapManageCatalog, s.voucherH.List)
	s.authed(mux, "POST /api/admin/vouchers", auth.CapManageCatalog, s.voucherH.Create)
	s.authed(mux, "PUT /api/admin/vouchers/{id}", auth.CapManageCatalog, s.voucherH.Update)
	s.authed(mux, "DELETE /api/admin/vouchers/{id}", auth.CapManageCatalog, s.voucherH.Delete)
	s.authed(mux, "GET /api/admin/codes/{code}", auth.CapViewAudit, s.codeH.Lookup)
	s.authed(mux, "GET /api/admin/activity", auth.CapViewAudit, s.adminH.Activity)
	s.authed(mux, "GET /api/admin/stats", auth.CapViewAudit, s.adminH.PlatformStats)
	s.authed(mux, "POST /api/admin/snapshots", auth.CapManageSnapshots, s.adminH.CreateSnapshot)
	s.authed(mux, "GET /api/admin/snapshots", auth.CapManageSnapshots, s.adminH.ListSnapshots)

	return middleware.AccessLog(s.logger.With("component", "http"))(mux)
}

// authed registers h behind authentication and, when capability is set,
// a capability check.
func (s *Server) authed(mux *http.ServeMux, pattern string, capability auth.Capability, h http.HandlerFunc) {
	var next http.Handler = h
	if capability != "" {
		next = middleware.RequireCapability(capability)(next)
	}
	mux.Handle(pattern, middleware.RequireAuth(s.authn)(next))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status, code = "database unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"clients": s.hub.ClientCount(),
	})
}

// Cleanup removes expired sessions and idle rate limiter entries.
func (s *Server) Cleanup(ctx context.Context, now time.Time) {
	n, err := s.sessionStore.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Error("cleanup expired sessions", "error", err)
	} else if n > 0 {
		s.logger.Info("cleaned up expired sessions", "count", n)
	}
	for _, rl := range s.RateLimiters() {
		rl.Cleanup()
	}
}
