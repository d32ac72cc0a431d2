package httpinterface

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/vaultgate/vaultgate/internal/core/application"
	"github.com/vaultgate/vaultgate/internal/core/domain"
	wstransport "github.com/vaultgate/vaultgate/internal/infrastructure/transport/websocket"
	"github.com/vaultgate/vaultgate/internal/interfaces/http/permissions"
	"github.com/vaultgate/vaultgate/pkg/macaroons"
	"github.com/vaultgate/vaultgate/pkg/wallet"
	"gopkg.in/macaroon-bakery.v2/bakery"
)

const (
	maxBodySize     = 1 << 16
	defaultTokenTTL = 24 * time.Hour

	// MacaroonHeader carries the hex encoded macaroon of a request.
	MacaroonHeader = "Macaroon"
	jsonMediaType  = "application/json"
)

// MacaroonValidator checks that a macaroon grants the given operations.
type MacaroonValidator interface {
	ValidateMacaroon(
		ctx context.Context, macBytes []byte, requiredPermissions ...bakery.Op,
	) error
}

type handler struct {
	unlocker    application.UnlockerService
	broker      application.BrokerService
	macaroons   MacaroonValidator
	permissions map[string][]bakery.Op
	tokenSecret []byte
}

type route struct {
	method string
	path   string
	fn     handlerFunc
}

// NewHandler returns the routes of the operator interface. Every route but
// /metrics requires a macaroon if a validator is given. The token route is
// registered only if a secret is given, the metrics route only if a gatherer
// is given.
func NewHandler(
	unlocker application.UnlockerService, broker application.BrokerService,
	validator MacaroonValidator, tokenSecret []byte,
	gatherer prometheus.Gatherer,
) http.Handler {
	h := &handler{
		unlocker:    unlocker,
		broker:      broker,
		macaroons:   validator,
		permissions: permissions.AllPermissionsByRoute(),
		tokenSecret: tokenSecret,
	}

	routes := []route{
		{http.MethodPost, "/v1/wallet/genseed", h.genSeed},
		{http.MethodPost, "/v1/wallet/init", h.initWallet},
		{http.MethodPost, "/v1/wallet/restore", h.restoreWallet},
		{http.MethodPost, "/v1/wallet/unlock", h.unlockWallet},
		{http.MethodPost, "/v1/wallet/lock", h.lockWallet},
		{http.MethodPost, "/v1/wallet/changepin", h.changePin},
		{http.MethodGet, "/v1/wallet/status", h.status},
		{http.MethodGet, "/v1/wallet/info", h.info},
		{http.MethodPost, "/v1/wallet/account", h.selectAccount},
		{http.MethodPost, "/v1/wallet/network", h.setNetwork},
		{http.MethodGet, "/v1/approvals", h.listApprovals},
		{http.MethodPost, "/v1/approvals/approve", h.approve},
		{http.MethodPost, "/v1/approvals/reject", h.reject},
		{http.MethodGet, "/v1/apps", h.listApps},
		{http.MethodPost, "/v1/apps/disconnect", h.disconnectApp},
	}
	if len(tokenSecret) > 0 {
		routes = append(routes, route{http.MethodPost, "/v1/tokens", h.issueToken})
	}

	mux := http.NewServeMux()
	for _, r := range routes {
		mux.HandleFunc(r.path, h.serve(r.method, r.path, r.fn))
	}
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(
			gatherer, promhttp.HandlerOpts{},
		))
	}
	return mux
}

type handlerFunc func(r *http.Request) (interface{}, error)

func (h *handler) serve(method, path string, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("%s %s", r.Method, r.URL.Path)

		if r.Method != method {
			writeError(w, errMethodNotAllowed)
			return
		}
		if err := h.authorize(r, path); err != nil {
			writeError(w, err)
			return
		}
		if r.Method == http.MethodPost {
			if err := checkContentType(r); err != nil {
				writeError(w, err)
				return
			}
		}

		reply, err := fn(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if reply == nil {
			reply = struct{}{}
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

func (h *handler) authorize(r *http.Request, path string) error {
	if h.macaroons == nil {
		return nil
	}
	ops, ok := h.permissions[path]
	if !ok {
		return fmt.Errorf("%s: unknown permissions required for route", path)
	}

	value := r.Header.Get(MacaroonHeader)
	if value == "" {
		return macaroons.ErrMissingMacaroon
	}
	macBytes, err := hex.DecodeString(value)
	if err != nil {
		return fmt.Errorf("%w: %v", macaroons.ErrInvalidMacaroon, err)
	}
	return h.macaroons.ValidateMacaroon(r.Context(), macBytes, ops...)
}

func checkContentType(r *http.Request) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != jsonMediaType {
		return errUnsupportedMediaType
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Warn("operator request failed")
	}
	writeJSON(w, status, newErrorReply(err))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", jsonMediaType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("failed to write reply")
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}

func (h *handler) genSeed(r *http.Request) (interface{}, error) {
	mnemonic, err := h.unlocker.GenSeed(r.Context())
	if err != nil {
		return nil, err
	}
	return genSeedReply{Mnemonic: mnemonic}, nil
}

func (h *handler) initWallet(r *http.Request) (interface{}, error) {
	var req initWalletRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return nil, h.unlocker.InitWallet(r.Context(), req.mnemonic(), req.Pin)
}

func (h *handler) restoreWallet(r *http.Request) (interface{}, error) {
	var req initWalletRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return nil, h.unlocker.RestoreWallet(r.Context(), req.mnemonic(), req.Pin)
}

func (h *handler) unlockWallet(r *http.Request) (interface{}, error) {
	var req unlockWalletRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if req.Pin == "" {
		return nil, wallet.ErrNullPin
	}
	if err := h.unlocker.UnlockWallet(r.Context(), req.Pin); err != nil {
		return nil, err
	}
	return h.status(r)
}

func (h *handler) lockWallet(r *http.Request) (interface{}, error) {
	return nil, h.unlocker.LockWallet(r.Context())
}

func (h *handler) changePin(r *http.Request) (interface{}, error) {
	var req changePinRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if req.OldPin == "" || req.NewPin == "" {
		return nil, wallet.ErrNullPin
	}
	return nil, h.unlocker.ChangePin(r.Context(), req.OldPin, req.NewPin)
}

func (h *handler) status(r *http.Request) (interface{}, error) {
	return h.unlocker.Status(r.Context())
}

func (h *handler) info(r *http.Request) (interface{}, error) {
	info, err := h.unlocker.Info(r.Context())
	if err != nil {
		return nil, err
	}

	accounts := make([]accountReply, 0, len(info.Accounts))
	for _, account := range info.Accounts {
		accounts = append(accounts, newAccountReply(account))
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Index < accounts[j].Index
	})
	return infoReply{
		Network:       info.Settings.Network,
		ActiveAccount: info.Settings.ActiveAccount,
		Accounts:      accounts,
		Tokens:        info.Settings.Tokens,
	}, nil
}

func (h *handler) selectAccount(r *http.Request) (interface{}, error) {
	var req selectAccountRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	account, err := h.unlocker.SelectAccount(r.Context(), req.Index)
	if err != nil {
		return nil, err
	}
	return newAccountReply(account), nil
}

func (h *handler) setNetwork(r *http.Request) (interface{}, error) {
	var req setNetworkRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	return h.unlocker.SetNetwork(r.Context(), req.Network)
}

func (h *handler) listApprovals(_ *http.Request) (interface{}, error) {
	return listApprovalsReply{Approvals: h.broker.ListPending()}, nil
}

func (h *handler) approve(r *http.Request) (interface{}, error) {
	var req decisionRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, errMissingID
	}
	return nil, h.broker.Approve(r.Context(), req.ID)
}

func (h *handler) reject(r *http.Request) (interface{}, error) {
	var req decisionRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, errMissingID
	}
	return nil, h.broker.Reject(req.ID, req.Reason)
}

func (h *handler) listApps(r *http.Request) (interface{}, error) {
	apps, err := h.broker.ListApps(r.Context())
	if err != nil {
		return nil, err
	}
	reply := listAppsReply{Apps: make([]appReply, 0, len(apps))}
	for _, app := range apps {
		reply.Apps = append(reply.Apps, appReply(app))
	}
	return reply, nil
}

func (h *handler) disconnectApp(r *http.Request) (interface{}, error) {
	var req disconnectAppRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Origin) == "" {
		return nil, errMissingOrigin
	}
	return nil, h.broker.DisconnectApp(r.Context(), req.Origin)
}

func (h *handler) issueToken(r *http.Request) (interface{}, error) {
	var req issueTokenRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Origin) == "" {
		return nil, errMissingOrigin
	}
	ttl := defaultTokenTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	token, err := wstransport.IssueToken(h.tokenSecret, req.Origin, ttl)
	if err != nil {
		return nil, err
	}
	log.WithField("origin", req.Origin).Info("issued websocket token")
	return issueTokenReply{Token: token}, nil
}

func newAccountReply(account wallet.Account) accountReply {
	return accountReply{
		Index:     account.Index,
		Address:   account.Address,
		PublicKey: hex.EncodeToString(account.PublicKey),
	}
}
